package browser

import (
	"context"
	"fmt"
	"time"

	"aistudioproxy/internal/logging"
	"aistudioproxy/pkg/utils"
)

// AI Studio UI selectors.
const (
	selLoginIndicator = `button[aria-label="Google Account"]`
	selModelMenu      = `button[aria-label="Model"]`
	selChatInput      = `div[aria-label="Chat input"]`
	selSendButton     = `button[aria-label="Send message"]`
	selStopGenerating = `button[aria-label="Stop generating"]`
	selResponseBlock  = `.response-block:last-child`
	selChatHistory    = `.chat-history`
)

// errorSelectors are probed, in order, against the latest response block
// when checking whether the UI reported an error instead of a completion.
var errorSelectors = []string{
	".error-message",
	`[role="alert"]`,
	".MuiAlert-message",
}

const modelSwitchAttempts = 3

// Names of the callback functions the streaming observer script invokes.
const (
	fnResponseChunk = "onResponseChunk"
	fnResponseDone  = "onResponseDone"
)

// PageController drives one AI Studio page through the chat protocol.
// Low-level primitives retry with backoff; higher-level operations map
// failures to typed errors so callers can tell a bad model name apart
// from a flaky selector.
type PageController struct {
	page    Page
	baseURL string
	timeout time.Duration
	retry   utils.RetryConfig
	logger  logging.Logger
}

// NewPageController wraps page with the given base URL, per-operation
// timeout, and retry policy.
func NewPageController(page Page, baseURL string, timeout time.Duration, retry utils.RetryConfig) *PageController {
	return &PageController{
		page:    page,
		baseURL: baseURL,
		timeout: timeout,
		retry:   retry,
		logger:  logging.GetGlobalLogger(),
	}
}

// Page returns the underlying page.
func (c *PageController) Page() Page {
	return c.page
}

// Navigate loads the AI Studio page. It is a no-op when the page is
// already there.
func (c *PageController) Navigate(ctx context.Context) error {
	if c.page.URL() == c.baseURL {
		c.logger.Debug("Already at AI Studio page", map[string]interface{}{
			"url": c.baseURL,
		})
		return nil
	}

	return utils.Retry(ctx, c.retry, func() error {
		opCtx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()
		if err := c.page.Navigate(opCtx, c.baseURL); err != nil {
			c.logger.Error("Failed to navigate to AI Studio", map[string]interface{}{
				"url":   c.baseURL,
				"error": err.Error(),
			})
			return utils.NewTimeoutError(fmt.Sprintf("navigation to %s did not complete", c.baseURL))
		}
		return nil
	})
}

// Click clicks the first element matching selector, retrying with
// backoff and failing with a timeout error on exhaustion.
func (c *PageController) Click(ctx context.Context, selector string) error {
	return utils.Retry(ctx, c.retry, func() error {
		opCtx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()
		if err := c.page.Click(opCtx, selector); err != nil {
			c.logger.Error("Timeout while clicking element", map[string]interface{}{
				"selector": selector,
				"error":    err.Error(),
			})
			return utils.NewTimeoutError(fmt.Sprintf("element %q could not be clicked", selector))
		}
		return nil
	})
}

// Fill replaces the content of the element matching selector with text.
func (c *PageController) Fill(ctx context.Context, selector, text string) error {
	return utils.Retry(ctx, c.retry, func() error {
		opCtx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()
		if err := c.page.Fill(opCtx, selector, text); err != nil {
			c.logger.Error("Timeout while filling element", map[string]interface{}{
				"selector": selector,
				"error":    err.Error(),
			})
			return utils.NewTimeoutError(fmt.Sprintf("element %q could not be filled", selector))
		}
		return nil
	})
}

// WaitForSelector blocks until the element matching selector is visible.
func (c *PageController) WaitForSelector(ctx context.Context, selector string) error {
	return utils.Retry(ctx, c.retry, func() error {
		opCtx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()
		if err := c.page.WaitVisible(opCtx, selector); err != nil {
			c.logger.Error("Timeout while waiting for selector", map[string]interface{}{
				"selector": selector,
				"error":    err.Error(),
			})
			return utils.NewTimeoutError(fmt.Sprintf("element %q did not become visible", selector))
		}
		return nil
	})
}

// waitHidden blocks until no visible element matches selector.
func (c *PageController) waitHidden(ctx context.Context, selector string, timeout time.Duration) error {
	opCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := c.page.WaitHidden(opCtx, selector); err != nil {
		return utils.NewTimeoutError(fmt.Sprintf("element %q did not disappear", selector))
	}
	return nil
}

// IsLoggedIn probes for the signed-in account indicator. A timeout is
// treated as not logged in; this never returns an error.
func (c *PageController) IsLoggedIn(ctx context.Context, timeout time.Duration) bool {
	opCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := c.page.WaitVisible(opCtx, selLoginIndicator); err != nil {
		c.logger.Warn("Login indicator not found, user is not logged in")
		return false
	}
	c.logger.Debug("Login indicator found, user is logged in")
	return true
}

// SwitchModel selects modelName in the model picker and verifies the
// picker reflects it. The whole open-select-verify sequence is retried
// as a unit; failures surface as ModelNotFound or ModelSwitchFailed
// rather than raw timeouts.
func (c *PageController) SwitchModel(ctx context.Context, modelName string) error {
	op := func() error {
		openCtx, cancel := context.WithTimeout(ctx, c.timeout)
		err := c.page.Click(openCtx, selModelMenu)
		cancel()
		if err != nil {
			c.logger.Error("Failed to open model selection menu", map[string]interface{}{
				"error": err.Error(),
			})
			return utils.NewModelSwitchFailedError(modelName, "could not open model selection menu")
		}

		pickCtx, cancel := context.WithTimeout(ctx, c.timeout)
		err = c.page.ClickText(pickCtx, "*", modelName)
		cancel()
		if err != nil {
			c.logger.Error("Model not found in menu", map[string]interface{}{
				"model": modelName,
				"error": err.Error(),
			})
			return utils.NewModelNotFoundError(modelName)
		}

		verifyCtx, cancel := context.WithTimeout(ctx, c.timeout)
		err = c.page.WaitTextVisible(verifyCtx, selModelMenu, modelName)
		cancel()
		if err != nil {
			c.logger.Error("Model switch not reflected in model selector", map[string]interface{}{
				"model": modelName,
				"error": err.Error(),
			})
			return utils.NewModelSwitchFailedError(modelName, "model selector does not reflect the requested model")
		}

		c.logger.Info("Switched model", map[string]interface{}{
			"model": modelName,
		})
		return nil
	}

	return utils.Retry(ctx, c.retry.WithAttempts(modelSwitchAttempts), op)
}

// SendMessage fills the chat input and clicks send. The send click is
// only attempted after the fill succeeded.
func (c *PageController) SendMessage(ctx context.Context, message string) error {
	if err := c.Fill(ctx, selChatInput, message); err != nil {
		return utils.NewChatInputNotFoundError("chat input could not be filled")
	}
	if err := c.Click(ctx, selSendButton); err != nil {
		return utils.NewSendButtonNotFoundError("send button could not be clicked")
	}
	c.logger.Debug("Message submitted", map[string]interface{}{
		"length": len(message),
	})
	return nil
}

// WaitForResponse blocks until generation starts and finishes, then
// extracts the full text of the latest response block.
func (c *PageController) WaitForResponse(ctx context.Context) (string, error) {
	c.logger.Debug("Waiting for response generation to start")
	if err := c.WaitForSelector(ctx, selStopGenerating); err != nil {
		return "", err
	}

	c.logger.Debug("Waiting for response generation to complete")
	if err := c.waitHidden(ctx, selStopGenerating, c.timeout); err != nil {
		return "", err
	}

	text, err := c.page.Text(selResponseBlock)
	if err != nil {
		c.logger.Error("Failed to extract response text", map[string]interface{}{
			"error": err.Error(),
		})
		return "", utils.NewResponseExtractionError("no response block found after generation completed")
	}

	c.logger.Debug("Extracted response text", map[string]interface{}{
		"length": len(text),
	})
	return text, nil
}

// StartStreamingResponse installs a mutation observer in the page and
// returns a stream of incremental text fragments. Each fragment is only
// the newly appended suffix, never the cumulative text. The stream ends
// when the generation indicator disappears; if the indicator is never
// observed, it ends immediately after a best-effort flush.
func (c *PageController) StartStreamingResponse(ctx context.Context) (*ResponseStream, error) {
	stream := NewResponseStream(c.timeout, func(probeCtx context.Context) bool {
		exists, err := c.page.Exists(selStopGenerating)
		return err == nil && !exists
	})

	if err := c.page.Expose(fnResponseChunk, func(payload string) {
		stream.Push(payload)
	}); err != nil {
		return nil, utils.NewResponseExtractionError("could not install streaming chunk callback")
	}
	if err := c.page.Expose(fnResponseDone, func(string) {
		stream.End()
	}); err != nil {
		return nil, utils.NewResponseExtractionError("could not install streaming done callback")
	}

	// If the indicator never shows up the observer script ends the
	// stream on its own, so a miss here is not fatal.
	if err := c.WaitForSelector(ctx, selStopGenerating); err != nil {
		c.logger.Warn("Generation indicator not observed before streaming")
	}

	evalCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	if err := c.page.Eval(evalCtx, streamObserverScript()); err != nil {
		c.logger.Error("Failed to install streaming observer", map[string]interface{}{
			"error": err.Error(),
		})
		return nil, utils.NewResponseExtractionError("could not install streaming observer")
	}

	c.logger.Debug("Streaming observer installed")
	return stream, nil
}

// streamObserverScript builds the in-page script that watches the chat
// history for response growth and forwards text deltas to the exposed
// callbacks.
func streamObserverScript() string {
	return fmt.Sprintf(`() => {
	const container = document.querySelector('%[1]s');
	if (!container) {
		window.%[4]s('');
		return;
	}

	let lastBlock = null;
	let lastText = '';

	const emitDelta = () => {
		if (!lastBlock) return;
		const text = lastBlock.innerText || '';
		if (text.length > lastText.length) {
			window.%[3]s(text.substring(lastText.length));
			lastText = text;
		}
	};

	const watchBlock = (block) => {
		lastBlock = block;
		lastText = '';
		const blockObserver = new MutationObserver(emitDelta);
		blockObserver.observe(block, { childList: true, characterData: true, subtree: true });
		emitDelta();
	};

	const containerObserver = new MutationObserver((mutations) => {
		for (const mutation of mutations) {
			for (const node of mutation.addedNodes) {
				if (node.nodeType === 1 && node.classList.contains('response-block')) {
					watchBlock(node);
				}
			}
		}
	});
	containerObserver.observe(container, { childList: true, subtree: true });

	const existing = container.querySelector('%[5]s');
	if (existing) {
		watchBlock(existing);
	}

	const finish = () => {
		containerObserver.disconnect();
		emitDelta();
		window.%[4]s('');
	};

	if (!document.querySelector('%[2]s')) {
		finish();
		return;
	}

	const doneObserver = new MutationObserver(() => {
		if (!document.querySelector('%[2]s')) {
			doneObserver.disconnect();
			finish();
		}
	});
	doneObserver.observe(document.body, { childList: true, subtree: true });
}`, selChatHistory, selStopGenerating, fnResponseChunk, fnResponseDone, selResponseBlock)
}

// CheckErrorResponse probes the latest response block for known error
// indicators. It returns the first matching error text. Probe failures
// on individual selectors are ignored.
func (c *PageController) CheckErrorResponse(ctx context.Context) (string, bool) {
	for _, sel := range errorSelectors {
		scoped := selResponseBlock + " " + sel
		exists, err := c.page.Exists(scoped)
		if err != nil || !exists {
			continue
		}
		text, err := c.page.Text(scoped)
		if err != nil {
			c.logger.Debug("Could not read error selector", map[string]interface{}{
				"selector": sel,
				"error":    err.Error(),
			})
			continue
		}
		c.logger.Warn("Error response detected", map[string]interface{}{
			"selector": sel,
			"error":    text,
		})
		return text, true
	}
	return "", false
}

// Close releases the underlying page. Safe to call more than once.
func (c *PageController) Close() error {
	return c.page.Close()
}
