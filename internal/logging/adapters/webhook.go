package adapters

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"aistudioproxy/internal/logging/types"
)

// WebhookAdapter ships log entries to an HTTP log drain in batches.
type WebhookAdapter struct {
	name       string
	config     WebhookConfig
	httpClient *http.Client
	buffer     []map[string]interface{}
	mu         sync.Mutex
	stopCh     chan struct{}
	wg         sync.WaitGroup
	lastError  error
}

// WebhookConfig represents configuration for the webhook adapter
type WebhookConfig struct {
	Endpoint      string            `yaml:"endpoint"`
	AuthToken     string            `yaml:"auth_token"`
	BatchSize     int               `yaml:"batch_size"`
	FlushInterval time.Duration     `yaml:"flush_interval"`
	Timeout       time.Duration     `yaml:"timeout"`
	Headers       map[string]string `yaml:"headers"`
}

// NewWebhookAdapter creates a new webhook adapter
func NewWebhookAdapter(name string, config WebhookConfig) (*WebhookAdapter, error) {
	if config.Endpoint == "" {
		return nil, fmt.Errorf("endpoint is required for webhook adapter")
	}
	if config.BatchSize == 0 {
		config.BatchSize = 100
	}
	if config.FlushInterval == 0 {
		config.FlushInterval = 5 * time.Second
	}
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}

	adapter := &WebhookAdapter{
		name:       name,
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
		buffer:     make([]map[string]interface{}, 0, config.BatchSize),
		stopCh:     make(chan struct{}),
	}

	adapter.wg.Add(1)
	go adapter.flushLoop()

	return adapter, nil
}

// Write buffers a log entry, flushing when the batch is full
func (a *WebhookAdapter) Write(entry *types.LogEntry) error {
	payload := map[string]interface{}{
		"level":   entry.Level.String(),
		"message": entry.Message,
		"dt":      entry.Timestamp.Format(time.RFC3339Nano),
	}
	for k, v := range entry.Fields {
		payload[k] = v
	}

	a.mu.Lock()
	a.buffer = append(a.buffer, payload)
	shouldFlush := len(a.buffer) >= a.config.BatchSize || entry.Level >= types.ErrorLevel
	a.mu.Unlock()

	if shouldFlush {
		return a.Flush()
	}
	return nil
}

// Flush sends all buffered entries to the drain
func (a *WebhookAdapter) Flush() error {
	a.mu.Lock()
	if len(a.buffer) == 0 {
		a.mu.Unlock()
		return nil
	}
	batch := a.buffer
	a.buffer = make([]map[string]interface{}, 0, a.config.BatchSize)
	a.mu.Unlock()

	body, err := json.Marshal(batch)
	if err != nil {
		return fmt.Errorf("failed to marshal log batch: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, a.config.Endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build drain request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if a.config.AuthToken != "" {
		req.Header.Set("Authorization", "Bearer "+a.config.AuthToken)
	}
	for k, v := range a.config.Headers {
		req.Header.Set(k, v)
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		a.mu.Lock()
		a.lastError = err
		a.mu.Unlock()
		return fmt.Errorf("failed to ship log batch: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 400 {
		err := fmt.Errorf("log drain returned status %d", resp.StatusCode)
		a.mu.Lock()
		a.lastError = err
		a.mu.Unlock()
		return err
	}

	a.mu.Lock()
	a.lastError = nil
	a.mu.Unlock()
	return nil
}

func (a *WebhookAdapter) flushLoop() {
	defer a.wg.Done()
	ticker := time.NewTicker(a.config.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			_ = a.Flush()
		case <-a.stopCh:
			_ = a.Flush()
			return
		}
	}
}

// Close flushes remaining entries and stops the background loop
func (a *WebhookAdapter) Close() error {
	close(a.stopCh)
	a.wg.Wait()
	return nil
}

// Health returns the most recent delivery error, if any
func (a *WebhookAdapter) Health() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lastError
}

// Name returns the name of the adapter
func (a *WebhookAdapter) Name() string {
	return a.name
}
