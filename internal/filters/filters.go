// Package filters implements the ordered, pure-over-Signal predicate chain
// that decides whether a scored trigger becomes a trade candidate.
// Re-architected per §9's design note: exception-driven control flow in
// the source is replaced with an explicit Result{Pass|Reject(reason)} type
// produced by a sequence of small named predicates, mirroring the
// teacher's StateMachine.IsValidTransition decomposition.
//
// Sector concentration (§4.8 #9) and market regime (§4.8 #10) are
// deliberately NOT implemented here: they depend on live account/market
// state and are evaluated by the Position Manager at admission time
// instead (§4.10). This chain covers predicates #1-#8.
package filters

import (
	"github.com/uoa-systems/flowwatch/internal/models"
	"github.com/uoa-systems/flowwatch/internal/reference"
)

// ScoreThreshold is the minimum total score to admit a signal (#2).
const ScoreThreshold = 10

// NotionalMinimum is the floor window notional filter #6 requires.
const NotionalMinimum = 50000.0

// NormalRSIThreshold and BounceRSIThreshold are filter #4's two regimes.
const (
	NormalRSIThreshold = 50.0
	BounceRSIThreshold = 60.0
)

// Rejection reason strings, joined with ';' by the chain if more than one
// predicate were to fail — in practice the chain short-circuits on first
// failure, so callers see exactly one reason.
const (
	ReasonETFExcluded  = "etf_excluded"
	ReasonScoreLow     = "score<10"
	ReasonBelowSMA20   = "below_sma20"
	ReasonRSIHigh      = "rsi_high"
	ReasonBelowSMA50   = "below_sma50"
	ReasonNotionalLow  = "notional_low"
	ReasonCrowdedTrade = "crowded_trade"
	ReasonEarnings     = "earnings_proximity"
	ReasonNoPrice      = "no_price"
)

// defaultETFSet is the hard-coded exclusion list filter #1 checks against
// (Open Question: the source hard-codes this rather than deriving it from
// master_tickers.is_etf, so UOA on an index ETF itself is never a signal).
var defaultETFSet = map[string]struct{}{
	"SPY": {}, "QQQ": {}, "IWM": {}, "DIA": {}, "VXX": {}, "GLD": {}, "SLV": {},
	"XLF": {}, "XLE": {}, "XLK": {}, "TLT": {}, "EEM": {}, "EFA": {}, "HYG": {},
}

// Result is the outcome of running a Signal through the chain.
type Result struct {
	Pass   bool
	Reason string
}

// Chain evaluates signals against #1-#8 in order, short-circuiting on the
// first failed predicate.
type Chain struct {
	ref        *reference.Data
	etfSet     map[string]struct{}
}

// New builds a Chain consulting ref for crowded-trade and earnings lookups.
func New(ref *reference.Data) *Chain {
	return &Chain{ref: ref, etfSet: defaultETFSet}
}

// WithETFSet overrides the hard-coded ETF exclusion set, for tests and for
// forward-compatible configuration.
func (c *Chain) WithETFSet(symbols []string) *Chain {
	set := make(map[string]struct{}, len(symbols))
	for _, s := range symbols {
		set[s] = struct{}{}
	}
	c.etfSet = set
	return c
}

// SetReference swaps in a freshly-loaded reference snapshot, called on the
// daily reference-data reload.
func (c *Chain) SetReference(ref *reference.Data) {
	c.ref = ref
}

// Evaluate runs sig through every predicate in order. effectiveRSIThreshold
// is 60 on a bounce day, 50 otherwise (§4.8 #4), computed once per day by
// the caller's bounce-day check.
func (c *Chain) Evaluate(sig models.Signal, effectiveRSIThreshold float64) Result {
	if !sig.HasSpot || sig.SpotPrice <= 0 {
		return Result{Pass: false, Reason: ReasonNoPrice}
	}
	if _, excluded := c.etfSet[sig.Symbol]; excluded {
		return Result{Pass: false, Reason: ReasonETFExcluded}
	}
	if sig.Score.Total() < ScoreThreshold {
		return Result{Pass: false, Reason: ReasonScoreLow}
	}
	if !sig.HasTA || sig.SpotPrice <= sig.SMA20 {
		return Result{Pass: false, Reason: ReasonBelowSMA20}
	}
	if sig.RSI14 >= effectiveRSIThreshold {
		return Result{Pass: false, Reason: ReasonRSIHigh}
	}
	if sig.SpotPrice <= sig.SMA50 {
		return Result{Pass: false, Reason: ReasonBelowSMA50}
	}
	if sig.Stats.NotionalTotal < NotionalMinimum {
		return Result{Pass: false, Reason: ReasonNotionalLow}
	}
	if c.ref != nil && c.ref.CrowdedTrade(sig.Symbol) {
		return Result{Pass: false, Reason: ReasonCrowdedTrade}
	}
	if c.ref != nil && c.ref.HasUpcomingEarnings(sig.Symbol, sig.TS) {
		return Result{Pass: false, Reason: ReasonEarnings}
	}
	return Result{Pass: true}
}

// EffectiveRSIThreshold returns the #4 threshold for a given bounce-day flag.
func EffectiveRSIThreshold(bounceDay bool) float64 {
	if bounceDay {
		return BounceRSIThreshold
	}
	return NormalRSIThreshold
}
