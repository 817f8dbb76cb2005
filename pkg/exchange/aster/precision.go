package aster

import (
	"context"
	"fmt"
	"net/url"
)

// Precision returns the trading rules for symbol, fetching and caching
// the full exchange info on first use. The cache is replaced atomically
// so concurrent readers never see a partial map.
func (c *Client) Precision(ctx context.Context, symbol string) (Precision, error) {
	if m := c.precision.Load(); m != nil {
		if p, ok := (*m)[symbol]; ok {
			return p, nil
		}
	}
	if err := c.refreshPrecision(ctx); err != nil {
		return Precision{}, err
	}
	if m := c.precision.Load(); m != nil {
		if p, ok := (*m)[symbol]; ok {
			return p, nil
		}
	}
	return Precision{}, fmt.Errorf("symbol %s not found in exchange info", symbol)
}

// InvalidatePrecision drops the cached rules so the next lookup refetches.
// Called after precision-related order rejections: the venue may have
// changed a symbol's filters.
func (c *Client) InvalidatePrecision() {
	c.precision.Store(nil)
}

func (c *Client) refreshPrecision(ctx context.Context) error {
	var info exchangeInfoResponse
	if err := c.public(ctx, "/fapi/v3/exchangeInfo", url.Values{}, &info); err != nil {
		return fmt.Errorf("fetch exchange info: %w", err)
	}

	m := make(map[string]Precision, len(info.Symbols))
	for _, s := range info.Symbols {
		p := Precision{
			Symbol:            s.Symbol,
			PricePrecision:    s.PricePrecision,
			QuantityPrecision: s.QuantityPrecision,
		}
		for _, f := range s.Filters {
			switch filterString(f, "filterType") {
			case "PRICE_FILTER":
				p.TickSize = parseFloat(filterString(f, "tickSize"))
			case "LOT_SIZE":
				p.StepSize = parseFloat(filterString(f, "stepSize"))
				p.MinQuantity = parseFloat(filterString(f, "minQty"))
			}
		}
		m[s.Symbol] = p
	}
	c.precision.Store(&m)
	return nil
}

func filterString(f map[string]any, key string) string {
	if v, ok := f[key].(string); ok {
		return v
	}
	return ""
}
