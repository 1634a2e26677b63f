// Package indicator holds the pure momentum math used by the buy and sell
// scans. Calculators keep no state between calls; the caller fetches a fresh
// candle window for every evaluation.
package indicator

// RSI computes the Wilder-smoothed Relative Strength Index over a closing
// price series (oldest first). The first period deltas seed the average gain
// and loss; every later delta is folded in with Wilder smoothing. ok is false
// when there is not enough data or the smoothed average loss is zero, in
// which case the index is undefined and no trading signal can be derived.
//
// Callers conventionally pass 3*period closes so the smoothing window has
// room to converge.
func RSI(closes []float64, period int) (rsi float64, ok bool) {
	if period < 1 || len(closes) < period+1 {
		return 0, false
	}

	var gains, losses float64
	for i := 1; i <= period; i++ {
		delta := closes[i] - closes[i-1]
		if delta > 0 {
			gains += delta
		} else {
			losses += -delta
		}
	}
	avgGain := gains / float64(period)
	avgLoss := losses / float64(period)

	for i := period + 1; i < len(closes); i++ {
		delta := closes[i] - closes[i-1]
		var gain, loss float64
		if delta > 0 {
			gain = delta
		}
		if delta < 0 {
			loss = -delta
		}
		avgGain = (avgGain*float64(period-1) + gain) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + loss) / float64(period)
	}

	if avgLoss == 0 {
		return 0, false
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs), true
}
