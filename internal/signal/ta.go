package signal

import "github.com/uoa-systems/flowwatch/internal/broker"

// rsi14 computes a 14-period RSI over bars (chronological, oldest first)
// from the simple average of the last 14 close-to-close gains and losses;
// earlier bars are not used and no Wilder smoothing is applied.
func rsi14(bars []broker.Bar) (float64, bool) {
	const period = 14
	if len(bars) < period+1 {
		return 0, false
	}

	var gainSum, lossSum float64
	for i := len(bars) - period; i < len(bars); i++ {
		delta := bars[i].Close - bars[i-1].Close
		if delta > 0 {
			gainSum += delta
		} else {
			lossSum += -delta
		}
	}
	avgGain := gainSum / period
	avgLoss := lossSum / period

	if avgLoss == 0 {
		return 100, true
	}
	rs := avgGain / avgLoss
	return 100 - (100 / (1 + rs)), true
}

// sma computes a simple moving average of the trailing `period` closes.
func sma(bars []broker.Bar, period int) (float64, bool) {
	if len(bars) < period {
		return 0, false
	}
	var sum float64
	for _, b := range bars[len(bars)-period:] {
		sum += b.Close
	}
	return sum / float64(period), true
}

// computeTA derives RSI-14, SMA-20 and SMA-50 from a daily bar slice
// fetched via the bars REST endpoint, used when both cache layers miss.
func computeTA(bars []broker.Bar) (rsi, sma20, sma50, lastClose float64, ok bool) {
	if len(bars) == 0 {
		return 0, 0, 0, 0, false
	}
	lastClose = bars[len(bars)-1].Close
	r, rOK := rsi14(bars)
	s20, s20OK := sma(bars, 20)
	s50, s50OK := sma(bars, 50)
	if !rOK || !s20OK || !s50OK {
		return 0, 0, 0, lastClose, false
	}
	return r, s20, s50, lastClose, true
}
