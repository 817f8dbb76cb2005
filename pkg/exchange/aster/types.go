package aster

import "strconv"

// Balance is the USDT futures account snapshot.
type Balance struct {
	TotalBalance     float64
	AvailableBalance float64
	UnrealizedPnL    float64
}

// Position is one open perp position.
type Position struct {
	Symbol           string
	Side             string // "long" or "short"
	Quantity         float64
	EntryPrice       float64
	MarkPrice        float64
	Leverage         int
	UnrealizedPnL    float64
	LiquidationPrice float64
}

// Precision holds the venue's trading rules for a symbol.
type Precision struct {
	Symbol            string
	PricePrecision    int
	QuantityPrecision int
	TickSize          float64
	StepSize          float64
	MinQuantity       float64
}

// Trade is one fill from the account trade history.
type Trade struct {
	ID            int64
	OrderID       int64
	Symbol        string
	Side          string
	PositionSide  string
	Price         float64
	Quantity      float64
	QuoteQuantity float64
	RealizedPnL   float64
	Commission    float64
	Time          int64
}

// wire types

type positionPayload struct {
	Symbol           string `json:"symbol"`
	PositionAmt      string `json:"positionAmt"`
	EntryPrice       string `json:"entryPrice"`
	MarkPrice        string `json:"markPrice"`
	UnrealizedProfit string `json:"unRealizedProfit"`
	LiquidationPrice string `json:"liquidationPrice"`
	Leverage         string `json:"leverage"`
	PositionSide     string `json:"positionSide"`
}

type orderResponse struct {
	OrderID       int64  `json:"orderId"`
	ClientOrderID string `json:"clientOrderId"`
	Symbol        string `json:"symbol"`
	Status        string `json:"status"`
	Price         string `json:"price"`
	AvgPrice      string `json:"avgPrice"`
	ExecutedQty   string `json:"executedQty"`
}

type tickerPayload struct {
	Symbol string `json:"symbol"`
	Price  string `json:"price"`
}

type tradePayload struct {
	ID           int64  `json:"id"`
	OrderID      int64  `json:"orderId"`
	Symbol       string `json:"symbol"`
	Side         string `json:"side"`
	PositionSide string `json:"positionSide"`
	Price        string `json:"price"`
	Qty          string `json:"qty"`
	QuoteQty     string `json:"quoteQty"`
	RealizedPnl  string `json:"realizedPnl"`
	Commission   string `json:"commission"`
	Time         int64  `json:"time"`
}

type exchangeInfoResponse struct {
	Symbols []symbolInfoPayload `json:"symbols"`
}

type symbolInfoPayload struct {
	Symbol            string `json:"symbol"`
	Status            string `json:"status"`
	PricePrecision    int    `json:"pricePrecision"`
	QuantityPrecision int    `json:"quantityPrecision"`
	// Filters mixes string and numeric values depending on filter type.
	Filters []map[string]any `json:"filters"`
}

type apiErrorPayload struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

// parseFloat tolerates the venue's habit of returning numbers as strings
// and empty strings for absent values.
func parseFloat(s string) float64 {
	if s == "" {
		return 0
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}
