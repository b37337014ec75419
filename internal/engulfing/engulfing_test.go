package engulfing

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/uoa-systems/flowwatch/internal/models"
)

type fakeStore struct {
	score models.EngulfingScore
	ok    bool
}

func (f *fakeStore) QueryEngulfing5min(_ context.Context, _ string, _ time.Duration) (models.EngulfingScore, bool) {
	return f.score, f.ok
}

type fakeWatchlist struct {
	members map[string]struct{}
}

func (f *fakeWatchlist) OnDailyWatchlist(symbol string) bool {
	_, ok := f.members[symbol]
	return ok
}

func TestConfirmUsesFiveMinuteHitWithStrength(t *testing.T) {
	store := &fakeStore{score: models.EngulfingScore{Strength: models.StrengthStrong}, ok: true}
	c := New(store, &fakeWatchlist{})

	present, strength := c.Confirm(context.Background(), "NET")
	assert.True(t, present)
	if assert.NotNil(t, strength) {
		assert.Equal(t, models.StrengthStrong, *strength)
	}
}

func TestConfirmFallsBackToDailyWatchlist(t *testing.T) {
	store := &fakeStore{ok: false}
	watchlist := &fakeWatchlist{members: map[string]struct{}{"NET": {}}}
	c := New(store, watchlist)

	present, strength := c.Confirm(context.Background(), "NET")
	assert.True(t, present)
	assert.Nil(t, strength)
}

func TestConfirmReturnsFalseOnDoubleMiss(t *testing.T) {
	store := &fakeStore{ok: false}
	c := New(store, &fakeWatchlist{members: map[string]struct{}{}})

	present, strength := c.Confirm(context.Background(), "NET")
	assert.False(t, present)
	assert.Nil(t, strength)
}

func TestConfirmToleratesNilWatchlist(t *testing.T) {
	store := &fakeStore{ok: false}
	c := New(store, nil)

	present, _ := c.Confirm(context.Background(), "NET")
	assert.False(t, present)
}
