package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"aistudioproxy/internal/config"
	"aistudioproxy/internal/logging"
	"aistudioproxy/internal/proxy"
	"aistudioproxy/pkg/models"
	"aistudioproxy/pkg/utils"
)

var validate = validator.New()

// errorJSON renders a typed error as the OpenAI-style error envelope.
func errorJSON(c echo.Context, requestID string, err error) error {
	return c.JSON(utils.StatusCode(err), models.ErrorResponse{
		Error: models.ErrorDetail{
			Message: err.Error(),
			Type:    utils.ErrorType(err),
		},
		RequestID: requestID,
		Timestamp: time.Now(),
	})
}

// ChatCompletionsHandler serves POST /v1/chat/completions, dispatching
// to the streaming or non-streaming path based on the request.
func ChatCompletionsHandler(cfg *config.Config, handler *proxy.RequestHandler) echo.HandlerFunc {
	return func(c echo.Context) error {
		requestID, _ := c.Get("request_id").(string)
		logger := logging.GetGlobalLogger().WithField("request_id", requestID)

		var req models.ChatCompletionRequest
		if err := c.Bind(&req); err != nil {
			logger.Warn("Failed to bind chat completion request", map[string]interface{}{
				"error": err.Error(),
			})
			return errorJSON(c, requestID, utils.NewValidationError("invalid request body"))
		}

		if err := validate.Struct(&req); err != nil {
			logger.Warn("Chat completion request validation failed", map[string]interface{}{
				"error": err.Error(),
			})
			return errorJSON(c, requestID, utils.NewValidationError(err.Error()))
		}

		if !utils.Contains(cfg.Models.Supported, req.Model) {
			logger.Warn("Unsupported model requested", map[string]interface{}{
				"model": req.Model,
			})
			return errorJSON(c, requestID, utils.NewModelNotFoundError(req.Model))
		}

		logger.Info("Chat completion request received", map[string]interface{}{
			"model":    req.Model,
			"messages": len(req.Messages),
			"stream":   req.Stream,
		})

		if req.Stream {
			return streamCompletion(c, handler, &req)
		}

		resp, err := handler.HandleRequest(c.Request().Context(), &req)
		if err != nil {
			logger.Error("Chat completion failed", map[string]interface{}{
				"error": err.Error(),
			})
			return errorJSON(c, requestID, err)
		}

		return c.JSON(http.StatusOK, resp)
	}
}

// streamCompletion writes SSE events as they arrive from the handler.
// Once headers are sent the status stays 200; failures show up in-band
// as error chunks.
func streamCompletion(c echo.Context, handler *proxy.RequestHandler, req *models.ChatCompletionRequest) error {
	resp := c.Response()
	resp.Header().Set(echo.HeaderContentType, "text/event-stream")
	resp.Header().Set("Cache-Control", "no-cache")
	resp.Header().Set("Connection", "keep-alive")
	resp.WriteHeader(http.StatusOK)

	flusher, ok := resp.Writer.(http.Flusher)
	if !ok {
		return fmt.Errorf("response writer does not support streaming")
	}

	events := handler.HandleStreamRequest(c.Request().Context(), req)
	for event := range events {
		if _, err := resp.Write([]byte(event)); err != nil {
			return err
		}
		flusher.Flush()
	}
	return nil
}
