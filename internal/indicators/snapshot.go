// Package indicators condenses raw candles into the compact technical
// snapshot the oracle prompt is built from.
package indicators

import (
	"fmt"
	"strings"

	"github.com/markcheno/go-talib"

	"roma-trading/pkg/exchange/common"
)

// minCandles is the floor below which indicators are too unstable to
// report; Analyze returns a neutral snapshot instead.
const minCandles = 50

// Snapshot is the indicator set for one symbol on one interval.
type Snapshot struct {
	Interval      string
	Price         float64
	PriceChange1h float64
	PriceChange4h float64
	RSI           float64
	RSIPeriod     int
	MACD          float64
	MACDSignal    float64
	MACDHist      float64
	EMA20         float64
	EMA50         float64
	ATR           float64
	Volume        float64
	VolumeAvg     float64
	VolumeRatio   float64
}

// Analyze computes the snapshot from candles, oldest first. The fast
// interval uses RSI(7); everything else uses RSI(14).
func Analyze(candles []common.Candle, interval string) Snapshot {
	s := Snapshot{Interval: interval, RSI: 50, RSIPeriod: 14, VolumeRatio: 1}
	if interval == "3m" {
		s.RSIPeriod = 7
	}
	if len(candles) < minCandles {
		return s
	}

	n := len(candles)
	highs := make([]float64, n)
	lows := make([]float64, n)
	closes := make([]float64, n)
	volumes := make([]float64, n)
	for i, c := range candles {
		highs[i] = c.High
		lows[i] = c.Low
		closes[i] = c.Close
		volumes[i] = c.Volume
	}

	s.Price = closes[n-1]
	if n >= 20 && closes[n-20] > 0 {
		s.PriceChange1h = (closes[n-1] - closes[n-20]) / closes[n-20] * 100
	}
	if n >= 80 && closes[n-80] > 0 {
		s.PriceChange4h = (closes[n-1] - closes[n-80]) / closes[n-80] * 100
	}

	macd, signal, hist := talib.Macd(closes, 12, 26, 9)
	s.MACD = last(macd)
	s.MACDSignal = last(signal)
	s.MACDHist = last(hist)

	if rsi := talib.Rsi(closes, s.RSIPeriod); len(rsi) > 0 {
		if v := rsi[len(rsi)-1]; v == v { // skip NaN
			s.RSI = v
		}
	}

	s.EMA20 = last(talib.Ema(closes, 20))
	s.EMA50 = last(talib.Ema(closes, 50))
	s.ATR = last(talib.Atr(highs, lows, closes, 14))

	s.Volume = volumes[n-1]
	for _, v := range volumes[n-20:] {
		s.VolumeAvg += v
	}
	s.VolumeAvg /= 20
	if s.VolumeAvg > 0 {
		s.VolumeRatio = s.Volume / s.VolumeAvg
	}
	return s
}

func last(vals []float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	v := vals[len(vals)-1]
	if v != v { // NaN
		return 0
	}
	return v
}

// Format renders the fast and slow snapshots for one symbol as compact
// prompt text.
func Format(symbol string, fast, slow Snapshot) string {
	var b strings.Builder
	fmt.Fprintf(&b, "**%s**\n", symbol)
	fmt.Fprintf(&b, "Price: $%.4f\n", fast.Price)
	if fast.PriceChange1h != 0 {
		fmt.Fprintf(&b, "1h: %+.2f%%\n", fast.PriceChange1h)
	}
	fmt.Fprintf(&b, "RSI(%d): %.1f\n", fast.RSIPeriod, fast.RSI)
	fmt.Fprintf(&b, "MACD: %.4f\n", fast.MACD)
	fmt.Fprintf(&b, "EMA20: $%.4f\n", fast.EMA20)
	if fast.VolumeRatio > 1.5 {
		fmt.Fprintf(&b, "Volume: %.1fx avg\n", fast.VolumeRatio)
	}
	if slow.Price > 0 {
		fmt.Fprintf(&b, "\n4h Trend: %+.2f%%\n", slow.PriceChange4h)
		fmt.Fprintf(&b, "RSI(%d): %.1f\n", slow.RSIPeriod, slow.RSI)
		if slow.EMA50 > 0 {
			fmt.Fprintf(&b, "EMA50: $%.4f\n", slow.EMA50)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}
