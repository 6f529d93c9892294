// Package indicator provides technical indicator calculations over price
// series.
//
// Every function is a pure transform: it takes a series ordered by
// ascending timestamp plus a lookback period, owns no state, and returns
// an empty result (never an error) when the input is shorter than the
// minimum window. Callers check for an empty slice rather than relying on
// errors. Input series are never sorted here.
package indicator

import (
	"math"
	"time"

	"nsewatch/internal/domain"
)

// Point is one indicator value at a point in time.
type Point struct {
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
}

// MACDPoint is one MACD observation: the MACD line, its signal line, and
// their difference.
type MACDPoint struct {
	Timestamp time.Time `json:"timestamp"`
	MACD      float64   `json:"macd"`
	Signal    float64   `json:"signal"`
	Histogram float64   `json:"histogram"`
}

// BandPoint is one Bollinger Band observation. Lower <= Middle <= Upper
// holds for any finite standard deviation.
type BandPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Upper     float64   `json:"upper"`
	Middle    float64   `json:"middle"`
	Lower     float64   `json:"lower"`
}

// SMA computes the simple moving average of closing prices over a trailing
// window. Result length is len(data)-period+1.
func SMA(data []domain.PricePoint, period int) []Point {
	if period <= 0 || len(data) < period {
		return nil
	}

	out := make([]Point, 0, len(data)-period+1)
	sum := 0.0
	for i, p := range data {
		sum += p.Close
		if i >= period {
			sum -= data[i-period].Close
		}
		if i >= period-1 {
			out = append(out, Point{Timestamp: p.Timestamp, Value: sum / float64(period)})
		}
	}
	return out
}

// EMA computes the exponential moving average of closing prices. The first
// value is seeded with the SMA of the first period closes; subsequent
// values use the standard 2/(period+1) multiplier.
func EMA(data []domain.PricePoint, period int) []Point {
	if period <= 0 || len(data) < period {
		return nil
	}

	closes := make([]float64, len(data))
	for i, p := range data {
		closes[i] = p.Close
	}
	vals := emaSeries(closes, period)

	out := make([]Point, len(vals))
	for i, v := range vals {
		out[i] = Point{Timestamp: data[period-1+i].Timestamp, Value: v}
	}
	return out
}

// emaSeries is the float-slice core of EMA, reused by MACD for the signal
// line. Result length is len(values)-period+1.
func emaSeries(values []float64, period int) []float64 {
	if period <= 0 || len(values) < period {
		return nil
	}

	seed := 0.0
	for _, v := range values[:period] {
		seed += v
	}
	seed /= float64(period)

	mult := 2.0 / float64(period+1)
	out := make([]float64, 0, len(values)-period+1)
	out = append(out, seed)

	prev := seed
	for _, v := range values[period:] {
		prev = (v-prev)*mult + prev
		out = append(out, prev)
	}
	return out
}

// RSI computes the relative strength index using Wilder's smoothing. The
// first value is based on the average gain/loss over the first period
// deltas, so the result length is len(data)-period.
func RSI(data []domain.PricePoint, period int) []Point {
	if period <= 0 || len(data) < period+1 {
		return nil
	}

	avgGain, avgLoss := 0.0, 0.0
	for i := 1; i <= period; i++ {
		d := data[i].Close - data[i-1].Close
		if d > 0 {
			avgGain += d
		} else {
			avgLoss -= d
		}
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)

	out := make([]Point, 0, len(data)-period)
	out = append(out, Point{Timestamp: data[period].Timestamp, Value: rsiValue(avgGain, avgLoss)})

	for i := period + 1; i < len(data); i++ {
		d := data[i].Close - data[i-1].Close
		gain, loss := 0.0, 0.0
		if d > 0 {
			gain = d
		} else {
			loss = -d
		}
		avgGain = (avgGain*float64(period-1) + gain) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + loss) / float64(period)
		out = append(out, Point{Timestamp: data[i].Timestamp, Value: rsiValue(avgGain, avgLoss)})
	}
	return out
}

// rsiValue converts smoothed average gain/loss into an RSI level. A zero
// average loss pegs RSI at 100.
func rsiValue(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		return 100
	}
	return 100 - 100/(1+avgGain/avgLoss)
}

// MACD computes the MACD line (fast EMA - slow EMA), its signal EMA, and
// the histogram, aligned on the points where all three are defined.
func MACD(data []domain.PricePoint, fast, slow, signal int) []MACDPoint {
	if fast <= 0 || slow <= fast || signal <= 0 || len(data) < slow+signal-1 {
		return nil
	}

	closes := make([]float64, len(data))
	for i, p := range data {
		closes[i] = p.Close
	}

	fastEMA := emaSeries(closes, fast) // length n-fast+1
	slowEMA := emaSeries(closes, slow) // length n-slow+1

	// Align both EMAs on the slow output: fastEMA leads by slow-fast.
	macdLine := make([]float64, len(slowEMA))
	for i := range slowEMA {
		macdLine[i] = fastEMA[i+slow-fast] - slowEMA[i]
	}

	signalLine := emaSeries(macdLine, signal) // length len(macdLine)-signal+1

	out := make([]MACDPoint, len(signalLine))
	for i, sig := range signalLine {
		j := signal - 1 + i // index into macdLine
		out[i] = MACDPoint{
			Timestamp: data[slow-1+j].Timestamp,
			MACD:      macdLine[j],
			Signal:    sig,
			Histogram: macdLine[j] - sig,
		}
	}
	return out
}

// BollingerBands computes the middle SMA band plus upper/lower bands at
// stdDev population standard deviations over the same window.
func BollingerBands(data []domain.PricePoint, period int, stdDev float64) []BandPoint {
	if period <= 0 || len(data) < period {
		return nil
	}

	out := make([]BandPoint, 0, len(data)-period+1)
	for i := period - 1; i < len(data); i++ {
		window := data[i-period+1 : i+1]

		mean := 0.0
		for _, p := range window {
			mean += p.Close
		}
		mean /= float64(period)

		variance := 0.0
		for _, p := range window {
			d := p.Close - mean
			variance += d * d
		}
		sd := math.Sqrt(variance / float64(period))

		out = append(out, BandPoint{
			Timestamp: data[i].Timestamp,
			Upper:     mean + stdDev*sd,
			Middle:    mean,
			Lower:     mean - stdDev*sd,
		})
	}
	return out
}

// Stochastic computes the %K and %D lines of the stochastic oscillator.
// %K is clamped to [0,100]; a zero high-low range reads as a neutral 50.
// %D is the dPeriod SMA of %K, so it is shorter by dPeriod-1.
func Stochastic(data []domain.PricePoint, kPeriod, dPeriod int) (k, d []Point) {
	if kPeriod <= 0 || dPeriod <= 0 || len(data) < kPeriod {
		return nil, nil
	}

	k = make([]Point, 0, len(data)-kPeriod+1)
	for i := kPeriod - 1; i < len(data); i++ {
		hh := math.Inf(-1)
		ll := math.Inf(1)
		for _, p := range data[i-kPeriod+1 : i+1] {
			hh = math.Max(hh, p.High)
			ll = math.Min(ll, p.Low)
		}

		var v float64
		if hh == ll {
			v = 50 // flat market reads as neutral
		} else {
			v = (data[i].Close - ll) / (hh - ll) * 100
			v = math.Max(0, math.Min(100, v))
		}
		k = append(k, Point{Timestamp: data[i].Timestamp, Value: v})
	}

	if len(k) < dPeriod {
		return k, nil
	}
	d = make([]Point, 0, len(k)-dPeriod+1)
	sum := 0.0
	for i, p := range k {
		sum += p.Value
		if i >= dPeriod {
			sum -= k[i-dPeriod].Value
		}
		if i >= dPeriod-1 {
			d = append(d, Point{Timestamp: p.Timestamp, Value: sum / float64(dPeriod)})
		}
	}
	return k, d
}

// ATR computes the average true range: a simple average of the first
// period true ranges, then Wilder-smoothed. Result length is
// len(data)-period.
func ATR(data []domain.PricePoint, period int) []Point {
	if period <= 0 || len(data) < period+1 {
		return nil
	}

	trs := make([]float64, len(data)-1)
	for i := 1; i < len(data); i++ {
		hl := data[i].High - data[i].Low
		hc := math.Abs(data[i].High - data[i-1].Close)
		lc := math.Abs(data[i].Low - data[i-1].Close)
		trs[i-1] = math.Max(hl, math.Max(hc, lc))
	}

	atr := 0.0
	for _, tr := range trs[:period] {
		atr += tr
	}
	atr /= float64(period)

	out := make([]Point, 0, len(data)-period)
	out = append(out, Point{Timestamp: data[period].Timestamp, Value: atr})

	for i := period; i < len(trs); i++ {
		atr = (atr*float64(period-1) + trs[i]) / float64(period)
		out = append(out, Point{Timestamp: data[i+1].Timestamp, Value: atr})
	}
	return out
}

// OBV computes on-balance volume: a running sum seeded with the first
// bar's volume, adding volume on up-closes and subtracting on down-closes.
func OBV(data []domain.PricePoint) []Point {
	if len(data) == 0 {
		return nil
	}

	out := make([]Point, len(data))
	obv := data[0].Volume
	out[0] = Point{Timestamp: data[0].Timestamp, Value: obv}

	for i := 1; i < len(data); i++ {
		switch {
		case data[i].Close > data[i-1].Close:
			obv += data[i].Volume
		case data[i].Close < data[i-1].Close:
			obv -= data[i].Volume
		}
		out[i] = Point{Timestamp: data[i].Timestamp, Value: obv}
	}
	return out
}
