package proxy

import (
	"context"
	"io"
	"strings"
	"sync"
	"time"

	"aistudioproxy/internal/browser"
	"aistudioproxy/internal/config"
	"aistudioproxy/internal/logging"
	"aistudioproxy/pkg/models"
	"aistudioproxy/pkg/utils"
)

// Request lifecycle states.
const (
	StatusProcessing = "processing"
	StatusStreaming  = "streaming"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// PageProvider is the slice of the browser manager the handler needs.
type PageProvider interface {
	IsRunning() bool
	GetPage(ctx context.Context) (browser.Page, error)
	ReleasePage(page browser.Page)
	HealthCheck(ctx context.Context) bool
}

// PageDriver is the protocol surface of a page controller.
type PageDriver interface {
	SwitchModel(ctx context.Context, modelName string) error
	SendMessage(ctx context.Context, message string) error
	WaitForResponse(ctx context.Context) (string, error)
	StartStreamingResponse(ctx context.Context) (*browser.ResponseStream, error)
	CheckErrorResponse(ctx context.Context) (string, bool)
}

// requestRecord tracks one in-flight or recently finished request.
type requestRecord struct {
	ID        string
	Model     string
	Status    string
	StartTime time.Time
	EndTime   time.Time
	Usage     *models.Usage
}

func (r *requestRecord) duration() time.Duration {
	if !r.EndTime.IsZero() {
		return r.EndTime.Sub(r.StartTime)
	}
	return time.Since(r.StartTime)
}

// RequestHandler orchestrates one chat completion per page: it bounds
// concurrency with a semaphore, borrows a page, drives the protocol,
// and guarantees the page is released and bookkeeping runs on every
// exit path.
type RequestHandler struct {
	config    *config.Config
	manager   PageProvider
	formatter *Formatter
	logger    logging.Logger
	redis     *utils.RedisClient

	sem chan struct{}

	mu      sync.RWMutex
	records map[string]*requestRecord

	controllerFor func(page browser.Page) PageDriver
}

// NewRequestHandler wires the handler to a started browser manager.
// redisClient may be nil when archiving is disabled.
func NewRequestHandler(cfg *config.Config, manager *browser.Manager, redisClient *utils.RedisClient) *RequestHandler {
	h := &RequestHandler{
		config:    cfg,
		formatter: NewFormatter(),
		logger:    logging.GetGlobalLogger(),
		redis:     redisClient,
		sem:       make(chan struct{}, cfg.Performance.MaxConcurrentRequests),
		records:   make(map[string]*requestRecord),
	}
	if manager != nil {
		h.manager = manager
		h.controllerFor = func(page browser.Page) PageDriver {
			return manager.NewController(page)
		}
	}
	return h
}

// HandleRequest runs the non-streaming protocol and returns the
// completed response. Any failure from the page controller is terminal
// for the request and propagates unchanged.
func (h *RequestHandler) HandleRequest(ctx context.Context, req *models.ChatCompletionRequest) (*models.ChatCompletionResponse, error) {
	select {
	case h.sem <- struct{}{}:
		defer func() { <-h.sem }()
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	if h.manager == nil || !h.manager.IsRunning() {
		return nil, utils.NewServiceUnavailableError("browser is not running")
	}

	requestID := "chatcmpl-" + utils.GenerateRequestID()
	record := h.track(requestID, req.Model, StatusProcessing)

	page, err := h.manager.GetPage(ctx)
	if err != nil {
		h.finish(record, StatusFailed, nil)
		h.scheduleCleanup(requestID)
		return nil, err
	}

	var finalErr error
	defer func() {
		h.manager.ReleasePage(page)
		if finalErr != nil {
			h.finish(record, StatusFailed, nil)
		}
		h.scheduleCleanup(requestID)
	}()

	ctrl := h.controllerFor(page)
	prompt := req.Prompt()

	if finalErr = ctrl.SwitchModel(ctx, req.Model); finalErr != nil {
		return nil, finalErr
	}
	if finalErr = ctrl.SendMessage(ctx, prompt); finalErr != nil {
		return nil, finalErr
	}

	text, err := ctrl.WaitForResponse(ctx)
	if err != nil {
		finalErr = err
		return nil, finalErr
	}

	if errText, found := ctrl.CheckErrorResponse(ctx); found {
		finalErr = utils.NewUpstreamError(errText)
		return nil, finalErr
	}

	resp := h.formatter.FormatResponse(requestID, req.Model, prompt, text)
	h.finish(record, StatusCompleted, &resp.Usage)

	h.logger.Info("Request completed", map[string]interface{}{
		"request_id": requestID,
		"model":      req.Model,
		"duration":   utils.FormatDuration(record.duration()),
	})
	return resp, nil
}

// HandleStreamRequest runs the streaming protocol and returns a channel
// of wire-ready SSE event strings. It never returns an error: failures
// after the stream opens are delivered in-band as an error chunk
// followed by the terminal sentinel.
func (h *RequestHandler) HandleStreamRequest(ctx context.Context, req *models.ChatCompletionRequest) <-chan string {
	out := make(chan string, 16)
	go h.streamRequest(ctx, req, out)
	return out
}

func (h *RequestHandler) streamRequest(ctx context.Context, req *models.ChatCompletionRequest, out chan<- string) {
	defer close(out)

	emit := func(event string) bool {
		if event == "" {
			return true
		}
		select {
		case out <- event:
			return true
		case <-ctx.Done():
			return false
		}
	}
	abort := func(message string) {
		emit(h.formatter.StreamError(message))
		emit(StreamDone)
	}

	select {
	case h.sem <- struct{}{}:
		defer func() { <-h.sem }()
	case <-ctx.Done():
		return
	}

	if h.manager == nil || !h.manager.IsRunning() {
		abort("browser is not running")
		return
	}

	requestID := "chatcmpl-" + utils.GenerateRequestID()
	record := h.track(requestID, req.Model, StatusStreaming)

	page, err := h.manager.GetPage(ctx)
	if err != nil {
		h.finish(record, StatusFailed, nil)
		h.scheduleCleanup(requestID)
		abort(err.Error())
		return
	}

	failed := false
	defer func() {
		h.manager.ReleasePage(page)
		if failed {
			h.finish(record, StatusFailed, nil)
		}
		h.scheduleCleanup(requestID)
	}()

	ctrl := h.controllerFor(page)
	prompt := req.Prompt()

	if err := ctrl.SwitchModel(ctx, req.Model); err != nil {
		failed = true
		abort(err.Error())
		return
	}
	if err := ctrl.SendMessage(ctx, prompt); err != nil {
		failed = true
		abort(err.Error())
		return
	}

	stream, err := ctrl.StartStreamingResponse(ctx)
	if err != nil {
		failed = true
		abort(err.Error())
		return
	}

	if !emit(h.formatter.InitialStreamChunk(requestID, req.Model)) {
		failed = true
		return
	}

	var completion strings.Builder
	for {
		frag, err := stream.Next(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			failed = true
			abort(err.Error())
			return
		}
		completion.WriteString(frag)
		if !emit(h.formatter.StreamChunk(requestID, req.Model, frag)) {
			failed = true
			return
		}
	}

	if errText, found := ctrl.CheckErrorResponse(ctx); found {
		failed = true
		abort(errText)
		return
	}

	emit(h.formatter.FinalStreamChunk(requestID, req.Model))
	emit(StreamDone)

	promptTokens := h.formatter.CountTokens(prompt)
	completionTokens := h.formatter.CountTokens(completion.String())
	h.finish(record, StatusCompleted, &models.Usage{
		PromptTokens:     promptTokens,
		CompletionTokens: completionTokens,
		TotalTokens:      promptTokens + completionTokens,
	})

	h.logger.Info("Streaming request completed", map[string]interface{}{
		"request_id": requestID,
		"model":      req.Model,
		"duration":   utils.FormatDuration(record.duration()),
	})
}

// track registers a new request record.
func (h *RequestHandler) track(requestID, model, status string) *requestRecord {
	record := &requestRecord{
		ID:        requestID,
		Model:     model,
		Status:    status,
		StartTime: time.Now(),
	}
	h.mu.Lock()
	h.records[requestID] = record
	h.mu.Unlock()
	return record
}

// finish moves a record to a terminal status and archives it.
func (h *RequestHandler) finish(record *requestRecord, status string, usage *models.Usage) {
	h.mu.Lock()
	record.Status = status
	record.EndTime = time.Now()
	record.Usage = usage
	h.mu.Unlock()

	if h.redis != nil && h.config.Redis.Enabled {
		snapshot := &models.RequestRecordSnapshot{
			ID:        record.ID,
			Model:     record.Model,
			Status:    status,
			StartTime: record.StartTime,
			Duration:  utils.FormatDuration(record.duration()),
			Usage:     usage,
		}
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), h.config.Redis.Timeout)
			defer cancel()
			if err := h.redis.StoreRequestRecord(ctx, snapshot); err != nil {
				h.logger.Warn("Failed to archive request record", map[string]interface{}{
					"request_id": snapshot.ID,
					"error":      err.Error(),
				})
			}
		}()
	}
}

// scheduleCleanup removes the record from the in-flight table after the
// configured delay, keeping it visible for short-lived introspection.
func (h *RequestHandler) scheduleCleanup(requestID string) {
	time.AfterFunc(h.config.Performance.CleanupDelay, func() {
		h.mu.Lock()
		delete(h.records, requestID)
		h.mu.Unlock()
	})
}

// GetActiveRequestsCount counts requests in processing status only.
// Streaming and terminal requests are excluded.
func (h *RequestHandler) GetActiveRequestsCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	count := 0
	for _, record := range h.records {
		if record.Status == StatusProcessing {
			count++
		}
	}
	return count
}

// GetRequestStats summarizes the tracked request table. Average
// duration covers every tracked record regardless of status.
func (h *RequestHandler) GetRequestStats() models.RequestStats {
	h.mu.RLock()
	defer h.mu.RUnlock()

	stats := models.RequestStats{
		TotalTracked: len(h.records),
	}
	var total time.Duration
	for _, record := range h.records {
		if record.Status == StatusProcessing {
			stats.ActiveRequests++
		}
		total += record.duration()
	}
	if len(h.records) > 0 {
		stats.AverageDuration = total.Seconds() / float64(len(h.records))
	}
	return stats
}

// HealthCheck probes the browser through the manager. With no manager
// attached the handler runs standalone and reports healthy; a manager
// that fails its probe reports false rather than erroring.
func (h *RequestHandler) HealthCheck(ctx context.Context) bool {
	if h.manager == nil {
		return true
	}
	return h.manager.HealthCheck(ctx)
}
