package browser

import (
	"aistudioproxy/internal/logging"
)

// pagePool holds pre-warmed pages in a bounded channel so requests can
// borrow one without paying page-creation latency.
type pagePool struct {
	pages chan Page
	size  int
}

func newPagePool(size int) *pagePool {
	return &pagePool{
		pages: make(chan Page, size),
		size:  size,
	}
}

// get returns a pooled page, or nil when the pool is empty.
func (p *pagePool) get() Page {
	select {
	case page := <-p.pages:
		return page
	default:
		return nil
	}
}

// put returns a page to the pool. It reports false when the pool is
// already full, in which case the caller owns the page and should
// close it.
func (p *pagePool) put(page Page) bool {
	select {
	case p.pages <- page:
		return true
	default:
		return false
	}
}

// len reports how many pages are currently pooled.
func (p *pagePool) len() int {
	return len(p.pages)
}

// drain empties the pool and closes every page it held.
func (p *pagePool) drain() {
	logger := logging.GetGlobalLogger()
	for {
		select {
		case page := <-p.pages:
			if err := page.Close(); err != nil {
				logger.Warn("Failed to close pooled page", map[string]interface{}{
					"error": err.Error(),
				})
			}
		default:
			return
		}
	}
}
