package indicators

import (
	"strings"
	"testing"

	"roma-trading/pkg/exchange/common"
)

func risingCandles(n int) []common.Candle {
	out := make([]common.Candle, n)
	price := 100.0
	for i := range out {
		out[i] = common.Candle{
			Open:   price,
			High:   price * 1.01,
			Low:    price * 0.995,
			Close:  price * 1.005,
			Volume: 1000,
		}
		price *= 1.005
	}
	out[n-1].Volume = 2000
	return out
}

func TestAnalyzeRisingMarket(t *testing.T) {
	s := Analyze(risingCandles(100), "3m")

	if s.RSIPeriod != 7 {
		t.Errorf("RSI period = %d, want 7 for 3m", s.RSIPeriod)
	}
	if s.RSI <= 50 {
		t.Errorf("RSI = %v, want above 50 in a steady uptrend", s.RSI)
	}
	if s.PriceChange1h <= 0 || s.PriceChange4h <= 0 {
		t.Errorf("price changes = %v / %v, want positive", s.PriceChange1h, s.PriceChange4h)
	}
	if s.EMA20 <= s.EMA50 {
		t.Errorf("EMA20 %v should sit above EMA50 %v in an uptrend", s.EMA20, s.EMA50)
	}
	if s.ATR <= 0 {
		t.Errorf("ATR = %v, want positive", s.ATR)
	}
	if s.VolumeRatio <= 1 {
		t.Errorf("volume ratio = %v, want above 1 for a volume spike", s.VolumeRatio)
	}
	if s.Price != s.EMA20 && s.Price <= 0 {
		t.Errorf("price = %v", s.Price)
	}
}

func TestAnalyzeInsufficientData(t *testing.T) {
	s := Analyze(risingCandles(10), "4h")

	if s.RSI != 50 || s.VolumeRatio != 1 || s.Price != 0 {
		t.Errorf("short history should yield neutral snapshot, got %+v", s)
	}
	if s.RSIPeriod != 14 {
		t.Errorf("RSI period = %d, want 14 for 4h", s.RSIPeriod)
	}
}

func TestFormatIncludesBothTimeframes(t *testing.T) {
	fast := Analyze(risingCandles(100), "3m")
	slow := Analyze(risingCandles(100), "4h")

	got := Format("BTCUSDT", fast, slow)
	for _, want := range []string{"**BTCUSDT**", "RSI(7)", "4h Trend", "RSI(14)", "EMA50"} {
		if !strings.Contains(got, want) {
			t.Errorf("formatted output missing %q:\n%s", want, got)
		}
	}
}

func TestFormatOmitsEmptySlowFrame(t *testing.T) {
	fast := Analyze(risingCandles(100), "3m")
	got := Format("ETHUSDT", fast, Snapshot{})
	if strings.Contains(got, "4h Trend") {
		t.Errorf("empty slow frame should be omitted:\n%s", got)
	}
}
