package browser

import "context"

// Page is the remote-control capability a PageController drives. The
// production implementation wraps a go-rod page; tests substitute fakes.
type Page interface {
	// URL returns the page's current location.
	URL() string

	// Navigate loads url and blocks until the load event fires.
	Navigate(ctx context.Context, url string) error

	// Click waits for the element matching selector and clicks it.
	Click(ctx context.Context, selector string) error

	// ClickText clicks the element matching selector whose text content
	// equals text exactly.
	ClickText(ctx context.Context, selector, text string) error

	// Fill waits for the element matching selector and types text into it,
	// replacing any existing content.
	Fill(ctx context.Context, selector, text string) error

	// WaitVisible blocks until the element matching selector is visible.
	WaitVisible(ctx context.Context, selector string) error

	// WaitHidden blocks until no visible element matches selector.
	WaitHidden(ctx context.Context, selector string) error

	// WaitTextVisible blocks until an element matching selector with the
	// exact text content is visible.
	WaitTextVisible(ctx context.Context, selector, text string) error

	// Exists reports whether an element currently matches selector,
	// without waiting.
	Exists(selector string) (bool, error)

	// Text returns the inner text of the first element matching selector.
	Text(selector string) (string, error)

	// Eval runs the given JavaScript function in the page.
	Eval(ctx context.Context, js string) error

	// Expose binds fn as a window-level function callable from page
	// JavaScript with a single string argument.
	Expose(name string, fn func(payload string)) error

	// IsClosed reports whether the page has been closed.
	IsClosed() bool

	// Close closes the page. It is safe to call more than once.
	Close() error
}
