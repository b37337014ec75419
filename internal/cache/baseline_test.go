package cache

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

type fakeBaselineSource struct {
	calls int
	value float64
}

func (f *fakeBaselineSource) Baseline(symbol string) float64 {
	f.calls++
	return f.value
}

func TestBaselineCacheWithNilClientAlwaysFallsThrough(t *testing.T) {
	src := &fakeBaselineSource{value: 123456.0}
	c := NewBaselineCache(nil, src)

	v1 := c.Baseline(context.Background(), "AAPL")
	v2 := c.Baseline(context.Background(), "AAPL")

	assert.Equal(t, 123456.0, v1)
	assert.Equal(t, 123456.0, v2)
	assert.Equal(t, 2, src.calls, "with no redis client every call falls through to source")
}
