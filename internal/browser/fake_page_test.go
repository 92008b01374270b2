package browser

import (
	"context"
	"fmt"
	"sync"
)

// fakePage is a scriptable Page used across this package's tests. All
// hooks default to success; call records are safe for concurrent reads.
type fakePage struct {
	mu sync.Mutex

	url    string
	closed bool

	clicks     []string
	clickTexts []string
	fills      map[string]string
	waits      []string
	exposedFns map[string]func(string)
	evaledJS   []string
	closeCalls int

	clickErr       func(selector string) error
	clickTextErr   func(selector, text string) error
	fillErr        func(selector string) error
	waitVisibleErr func(selector string) error
	waitHiddenErr  func(selector string) error
	textVisibleErr func(selector, text string) error
	existsFn       func(selector string) (bool, error)
	textFn         func(selector string) (string, error)
	navigateErr    error
	evalErr        error
	exposeErr      error
}

func newFakePage() *fakePage {
	return &fakePage{
		fills:      make(map[string]string),
		exposedFns: make(map[string]func(string)),
	}
}

func (p *fakePage) URL() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.url
}

func (p *fakePage) Navigate(ctx context.Context, url string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.navigateErr != nil {
		return p.navigateErr
	}
	p.url = url
	return nil
}

func (p *fakePage) Click(ctx context.Context, selector string) error {
	p.mu.Lock()
	p.clicks = append(p.clicks, selector)
	fn := p.clickErr
	p.mu.Unlock()
	if fn != nil {
		return fn(selector)
	}
	return nil
}

func (p *fakePage) ClickText(ctx context.Context, selector, text string) error {
	p.mu.Lock()
	p.clickTexts = append(p.clickTexts, selector+"|"+text)
	fn := p.clickTextErr
	p.mu.Unlock()
	if fn != nil {
		return fn(selector, text)
	}
	return nil
}

func (p *fakePage) Fill(ctx context.Context, selector, text string) error {
	p.mu.Lock()
	fn := p.fillErr
	p.mu.Unlock()
	if fn != nil {
		if err := fn(selector); err != nil {
			return err
		}
	}
	p.mu.Lock()
	p.fills[selector] = text
	p.mu.Unlock()
	return nil
}

func (p *fakePage) WaitVisible(ctx context.Context, selector string) error {
	p.mu.Lock()
	p.waits = append(p.waits, "visible:"+selector)
	fn := p.waitVisibleErr
	p.mu.Unlock()
	if fn != nil {
		return fn(selector)
	}
	return nil
}

func (p *fakePage) WaitHidden(ctx context.Context, selector string) error {
	p.mu.Lock()
	p.waits = append(p.waits, "hidden:"+selector)
	fn := p.waitHiddenErr
	p.mu.Unlock()
	if fn != nil {
		return fn(selector)
	}
	return nil
}

func (p *fakePage) WaitTextVisible(ctx context.Context, selector, text string) error {
	p.mu.Lock()
	p.waits = append(p.waits, "text:"+selector+"|"+text)
	fn := p.textVisibleErr
	p.mu.Unlock()
	if fn != nil {
		return fn(selector, text)
	}
	return nil
}

func (p *fakePage) Exists(selector string) (bool, error) {
	p.mu.Lock()
	fn := p.existsFn
	p.mu.Unlock()
	if fn != nil {
		return fn(selector)
	}
	return false, nil
}

func (p *fakePage) Text(selector string) (string, error) {
	p.mu.Lock()
	fn := p.textFn
	p.mu.Unlock()
	if fn != nil {
		return fn(selector)
	}
	return "", fmt.Errorf("no element matches %q", selector)
}

func (p *fakePage) Eval(ctx context.Context, js string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.evalErr != nil {
		return p.evalErr
	}
	p.evaledJS = append(p.evaledJS, js)
	return nil
}

func (p *fakePage) Expose(name string, fn func(payload string)) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.exposeErr != nil {
		return p.exposeErr
	}
	p.exposedFns[name] = fn
	return nil
}

func (p *fakePage) IsClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func (p *fakePage) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	p.closeCalls++
	return nil
}

func (p *fakePage) clickCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.clicks) + len(p.clickTexts)
}
