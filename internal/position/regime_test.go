package position

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/uoa-systems/flowwatch/internal/broker"
	"github.com/uoa-systems/flowwatch/internal/cache"
)

type fakeRegimeBroker struct {
	bars     []broker.Bar
	barsErr  error
	price    float64
	priceErr error
}

func (f *fakeRegimeBroker) BarsCtx(_ context.Context, _ string, _ int) ([]broker.Bar, error) {
	return f.bars, f.barsErr
}

func (f *fakeRegimeBroker) SnapshotCtx(_ context.Context, _ string) (float64, error) {
	return f.price, f.priceErr
}

func TestNewRegimeCheckerWeakWhenBelowThreshold(t *testing.T) {
	mkt := &fakeRegimeBroker{bars: []broker.Bar{{Open: 500}}, price: 490} // -2%
	checker := NewRegimeChecker(cache.NewRegimeCache(nil), mkt)
	assert.True(t, checker(context.Background()))
}

func TestNewRegimeCheckerNotWeakWhenFlat(t *testing.T) {
	mkt := &fakeRegimeBroker{bars: []broker.Bar{{Open: 500}}, price: 499} // -0.2%
	checker := NewRegimeChecker(cache.NewRegimeCache(nil), mkt)
	assert.False(t, checker(context.Background()))
}

func TestNewRegimeCheckerFailsOpenOnBarsError(t *testing.T) {
	mkt := &fakeRegimeBroker{barsErr: errors.New("network error")}
	checker := NewRegimeChecker(cache.NewRegimeCache(nil), mkt)
	assert.False(t, checker(context.Background()))
}

func TestNewRegimeCheckerFailsOpenOnSnapshotError(t *testing.T) {
	mkt := &fakeRegimeBroker{bars: []broker.Bar{{Open: 500}}, priceErr: errors.New("timeout")}
	checker := NewRegimeChecker(cache.NewRegimeCache(nil), mkt)
	assert.False(t, checker(context.Background()))
}

func TestNewRegimeCheckerFailsOpenOnZeroOpen(t *testing.T) {
	mkt := &fakeRegimeBroker{bars: []broker.Bar{{Open: 0}}, price: 100}
	checker := NewRegimeChecker(cache.NewRegimeCache(nil), mkt)
	assert.False(t, checker(context.Background()))
}

func TestNewRegimeCheckerFailsOpenOnNoBars(t *testing.T) {
	mkt := &fakeRegimeBroker{bars: nil}
	checker := NewRegimeChecker(cache.NewRegimeCache(nil), mkt)
	assert.False(t, checker(context.Background()))
}
