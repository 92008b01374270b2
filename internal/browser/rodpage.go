package browser

import (
	"context"
	"fmt"
	"regexp"
	"sync/atomic"
	"time"

	"github.com/go-rod/rod"
	"github.com/ysmood/gson"
)

// rodPage adapts a go-rod page to the Page capability interface.
type rodPage struct {
	page   *rod.Page
	closed atomic.Bool
}

func newRodPage(page *rod.Page) *rodPage {
	return &rodPage{page: page}
}

func (p *rodPage) URL() string {
	info, err := p.page.Info()
	if err != nil {
		return ""
	}
	return info.URL
}

func (p *rodPage) Navigate(ctx context.Context, url string) error {
	err := rod.Try(func() {
		p.page.Context(ctx).MustNavigate(url).MustWaitLoad()
	})
	if err != nil {
		return fmt.Errorf("failed to navigate to %s: %w", url, err)
	}
	return nil
}

func (p *rodPage) Click(ctx context.Context, selector string) error {
	err := rod.Try(func() {
		p.page.Context(ctx).MustElement(selector).MustClick()
	})
	if err != nil {
		return fmt.Errorf("failed to click %q: %w", selector, err)
	}
	return nil
}

func (p *rodPage) ClickText(ctx context.Context, selector, text string) error {
	pattern := "^" + regexp.QuoteMeta(text) + "$"
	err := rod.Try(func() {
		p.page.Context(ctx).MustElementR(selector, pattern).MustClick()
	})
	if err != nil {
		return fmt.Errorf("failed to click %q with text %q: %w", selector, text, err)
	}
	return nil
}

func (p *rodPage) Fill(ctx context.Context, selector, text string) error {
	err := rod.Try(func() {
		el := p.page.Context(ctx).MustElement(selector)
		el.MustSelectAllText().MustInput(text)
	})
	if err != nil {
		return fmt.Errorf("failed to fill %q: %w", selector, err)
	}
	return nil
}

func (p *rodPage) WaitVisible(ctx context.Context, selector string) error {
	err := rod.Try(func() {
		p.page.Context(ctx).MustElement(selector).MustWaitVisible()
	})
	if err != nil {
		return fmt.Errorf("element %q not visible: %w", selector, err)
	}
	return nil
}

func (p *rodPage) WaitHidden(ctx context.Context, selector string) error {
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()

	for {
		hidden := true
		err := rod.Try(func() {
			has, el, herr := p.page.Has(selector)
			if herr != nil {
				panic(herr)
			}
			if has {
				if visible, verr := el.Visible(); verr == nil && visible {
					hidden = false
				}
			}
		})
		if err == nil && hidden {
			return nil
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("element %q still visible: %w", selector, ctx.Err())
		case <-ticker.C:
		}
	}
}

func (p *rodPage) WaitTextVisible(ctx context.Context, selector, text string) error {
	pattern := "^" + regexp.QuoteMeta(text) + "$"
	err := rod.Try(func() {
		p.page.Context(ctx).MustElementR(selector, pattern).MustWaitVisible()
	})
	if err != nil {
		return fmt.Errorf("element %q with text %q not visible: %w", selector, text, err)
	}
	return nil
}

func (p *rodPage) Exists(selector string) (bool, error) {
	has, _, err := p.page.Has(selector)
	if err != nil {
		return false, fmt.Errorf("failed to query %q: %w", selector, err)
	}
	return has, nil
}

func (p *rodPage) Text(selector string) (string, error) {
	var text string
	err := rod.Try(func() {
		has, el, herr := p.page.Has(selector)
		if herr != nil {
			panic(herr)
		}
		if !has {
			panic(fmt.Errorf("no element matches %q", selector))
		}
		text = el.MustText()
	})
	if err != nil {
		return "", fmt.Errorf("failed to read text of %q: %w", selector, err)
	}
	return text, nil
}

func (p *rodPage) Eval(ctx context.Context, js string) error {
	_, err := p.page.Context(ctx).Eval(js)
	if err != nil {
		return fmt.Errorf("failed to evaluate script: %w", err)
	}
	return nil
}

func (p *rodPage) Expose(name string, fn func(payload string)) error {
	_, err := p.page.Expose(name, func(j gson.JSON) (interface{}, error) {
		fn(j.Str())
		return nil, nil
	})
	if err != nil {
		return fmt.Errorf("failed to expose %q: %w", name, err)
	}
	return nil
}

func (p *rodPage) IsClosed() bool {
	if p.closed.Load() {
		return true
	}
	// A dead page also counts as closed even if Close was never called.
	err := rod.Try(func() {
		p.page.MustInfo()
	})
	if err != nil {
		p.closed.Store(true)
		return true
	}
	return false
}

func (p *rodPage) Close() error {
	if p.closed.Swap(true) {
		return nil
	}
	return p.page.Close()
}
