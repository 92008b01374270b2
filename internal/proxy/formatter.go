package proxy

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/pkoukk/tiktoken-go"

	"aistudioproxy/internal/logging"
	"aistudioproxy/pkg/models"
)

// StreamDone is the SSE sentinel terminating every streaming response.
const StreamDone = "data: [DONE]\n\n"

const tokenEncoding = "cl100k_base"

var finishReasonStop = "stop"

// Formatter converts raw page text into OpenAI-compatible response and
// chunk shapes. Token counts come from tiktoken with a word-count
// fallback when the encoding is unavailable.
type Formatter struct {
	logger   logging.Logger
	encoding *tiktoken.Tiktoken
}

// NewFormatter creates a formatter, loading the token encoding once.
func NewFormatter() *Formatter {
	logger := logging.GetGlobalLogger()

	encoding, err := tiktoken.GetEncoding(tokenEncoding)
	if err != nil {
		logger.Warn("Token encoding unavailable, falling back to word counts", map[string]interface{}{
			"encoding": tokenEncoding,
			"error":    err.Error(),
		})
		encoding = nil
	}

	return &Formatter{
		logger:   logger,
		encoding: encoding,
	}
}

// CountTokens returns the token count of text, or the word count when
// no encoding is loaded.
func (f *Formatter) CountTokens(text string) int {
	if f.encoding != nil {
		return len(f.encoding.Encode(text, nil, nil))
	}
	return len(strings.Fields(text))
}

// FormatResponse builds the non-streaming chat completion envelope.
func (f *Formatter) FormatResponse(requestID, model, prompt, responseText string) *models.ChatCompletionResponse {
	promptTokens := f.CountTokens(prompt)
	completionTokens := f.CountTokens(responseText)

	return &models.ChatCompletionResponse{
		ID:      requestID,
		Object:  "chat.completion",
		Created: time.Now().Unix(),
		Model:   model,
		Choices: []models.ChatCompletionChoice{
			{
				Index: 0,
				Message: models.ChatMessage{
					Role:    models.RoleAssistant,
					Content: responseText,
				},
				FinishReason: finishReasonStop,
			},
		},
		Usage: models.Usage{
			PromptTokens:     promptTokens,
			CompletionTokens: completionTokens,
			TotalTokens:      promptTokens + completionTokens,
		},
	}
}

// InitialStreamChunk announces the assistant role at stream start.
func (f *Formatter) InitialStreamChunk(requestID, model string) string {
	return f.encodeChunk(requestID, model, models.ChunkDelta{Role: models.RoleAssistant}, nil)
}

// StreamChunk wraps one text fragment.
func (f *Formatter) StreamChunk(requestID, model, fragment string) string {
	return f.encodeChunk(requestID, model, models.ChunkDelta{Content: fragment}, nil)
}

// FinalStreamChunk carries the finish reason and closes the choice.
func (f *Formatter) FinalStreamChunk(requestID, model string) string {
	return f.encodeChunk(requestID, model, models.ChunkDelta{}, &finishReasonStop)
}

// StreamError renders a mid-stream failure as an in-band error chunk.
// Streaming failures never surface as HTTP errors because the headers
// are already committed.
func (f *Formatter) StreamError(message string) string {
	payload := map[string]interface{}{
		"error": map[string]interface{}{
			"message": message,
			"type":    "api_error",
		},
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return "data: {\"error\":{\"message\":\"internal error\",\"type\":\"api_error\"}}\n\n"
	}
	return fmt.Sprintf("data: %s\n\n", data)
}

func (f *Formatter) encodeChunk(requestID, model string, delta models.ChunkDelta, finishReason *string) string {
	chunk := models.ChatCompletionChunk{
		ID:      requestID,
		Object:  "chat.completion.chunk",
		Created: time.Now().Unix(),
		Model:   model,
		Choices: []models.ChunkChoice{
			{
				Index:        0,
				Delta:        delta,
				FinishReason: finishReason,
			},
		},
	}

	data, err := json.Marshal(chunk)
	if err != nil {
		f.logger.Error("Failed to encode stream chunk", map[string]interface{}{
			"request_id": requestID,
			"error":      err.Error(),
		})
		return ""
	}
	return fmt.Sprintf("data: %s\n\n", data)
}
