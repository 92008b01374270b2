package browser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoolGetEmptyReturnsNil(t *testing.T) {
	p := newPagePool(2)
	assert.Nil(t, p.get())
}

func TestPoolPutAndGet(t *testing.T) {
	p := newPagePool(2)
	page := newFakePage()

	require.True(t, p.put(page))
	assert.Equal(t, 1, p.len())

	got := p.get()
	assert.Same(t, page, got.(*fakePage))
	assert.Equal(t, 0, p.len())
}

func TestPoolRejectsWhenFull(t *testing.T) {
	p := newPagePool(2)

	assert.True(t, p.put(newFakePage()))
	assert.True(t, p.put(newFakePage()))
	assert.False(t, p.put(newFakePage()))
	assert.Equal(t, 2, p.len())
}

func TestPoolDrainClosesPages(t *testing.T) {
	p := newPagePool(3)
	pages := []*fakePage{newFakePage(), newFakePage(), newFakePage()}
	for _, page := range pages {
		require.True(t, p.put(page))
	}

	p.drain()

	assert.Equal(t, 0, p.len())
	for _, page := range pages {
		assert.True(t, page.IsClosed())
	}
}
