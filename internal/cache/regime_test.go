package cache

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRegimeCacheWithNilClientDelegatesToFetch(t *testing.T) {
	r := NewRegimeCache(nil)

	weak := r.Weak(context.Background(), func(ctx context.Context) (bool, error) {
		return true, nil
	})
	assert.True(t, weak)
}

func TestRegimeCacheFailsOpenOnFetchError(t *testing.T) {
	r := NewRegimeCache(nil)

	weak := r.Weak(context.Background(), func(ctx context.Context) (bool, error) {
		return true, errors.New("snapshot timeout")
	})
	assert.False(t, weak, "a fetch error must fail open (allow the trade)")
}
