// Package aster is the signed REST client for the Aster perpetual
// futures venue. Authentication is Ethereum-style: every private request
// carries an EIP-191 signature over its parameters instead of an HMAC.
package aster

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"math"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"roma-trading/pkg/exchange/common"
)

// DefaultBaseURL is the production REST endpoint.
const DefaultBaseURL = "https://fapi.asterdex.com"

// Config configures a venue client.
type Config struct {
	BaseURL       string
	UserAddress   string
	SignerAddress string
	PrivateKey    string
	// HedgeMode adds positionSide to orders; required when the account
	// runs dual-side positions.
	HedgeMode bool
	Timeout   time.Duration
	Retry     common.RetryPolicy
	// RequestsPerSecond paces outgoing requests; zero means 8/s.
	RequestsPerSecond float64
}

// Client talks to one Aster account. Safe for concurrent use.
type Client struct {
	baseURL   string
	hedge     bool
	http      *http.Client
	signer    *Signer
	limiter   *rate.Limiter
	retry     common.RetryPolicy
	precision atomic.Pointer[map[string]Precision]
}

// NewClient builds a client and verifies the signing key up front.
func NewClient(cfg Config) (*Client, error) {
	signer, err := NewSigner(cfg.UserAddress, cfg.SignerAddress, cfg.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("aster signer: %w", err)
	}

	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 8
	}
	retry := cfg.Retry
	if retry.MaxAttempts == 0 {
		retry = common.DefaultRetryPolicy()
	}

	return &Client{
		baseURL: baseURL,
		hedge:   cfg.HedgeMode,
		http:    &http.Client{Timeout: timeout},
		signer:  signer,
		limiter: rate.NewLimiter(rate.Limit(rps), int(math.Ceil(rps))),
		retry:   retry,
	}, nil
}

// User returns the account address this client trades for.
func (c *Client) User() string { return c.signer.User() }

// Balance returns the USDT account snapshot. Total balance includes
// unrealized PnL so it reflects true account value.
func (c *Client) Balance(ctx context.Context) (Balance, error) {
	var assets []struct {
		Asset            string `json:"asset"`
		Balance          string `json:"balance"`
		AvailableBalance string `json:"availableBalance"`
		CrossUnPnl       string `json:"crossUnPnl"`
	}
	if err := c.signed(ctx, http.MethodGet, "/fapi/v3/balance", nil, &assets); err != nil {
		return Balance{}, err
	}
	for _, a := range assets {
		if a.Asset != "USDT" {
			continue
		}
		unrealized := parseFloat(a.CrossUnPnl)
		return Balance{
			TotalBalance:     parseFloat(a.Balance) + unrealized,
			AvailableBalance: parseFloat(a.AvailableBalance),
			UnrealizedPnL:    unrealized,
		}, nil
	}
	return Balance{}, nil
}

// Positions returns all non-empty positions.
func (c *Client) Positions(ctx context.Context) ([]Position, error) {
	var payload []positionPayload
	if err := c.signed(ctx, http.MethodGet, "/fapi/v3/positionRisk", nil, &payload); err != nil {
		return nil, err
	}

	var out []Position
	for _, p := range payload {
		amt := parseFloat(p.PositionAmt)
		if amt == 0 {
			continue
		}
		side := "long"
		if amt < 0 {
			side = "short"
		}
		lev := int(parseFloat(p.Leverage))
		if lev < 1 {
			lev = 1
		}
		out = append(out, Position{
			Symbol:           p.Symbol,
			Side:             side,
			Quantity:         math.Abs(amt),
			EntryPrice:       parseFloat(p.EntryPrice),
			MarkPrice:        parseFloat(p.MarkPrice),
			UnrealizedPnL:    parseFloat(p.UnrealizedProfit),
			Leverage:         lev,
			LiquidationPrice: parseFloat(p.LiquidationPrice),
		})
	}
	return out, nil
}

// Price returns the latest traded price for symbol.
func (c *Client) Price(ctx context.Context, symbol string) (float64, error) {
	var t tickerPayload
	params := url.Values{"symbol": {symbol}}
	if err := c.public(ctx, "/fapi/v3/ticker/price", params, &t); err != nil {
		return 0, err
	}
	price := parseFloat(t.Price)
	if price <= 0 {
		return 0, fmt.Errorf("no price for %s", symbol)
	}
	return price, nil
}

// Klines returns up to limit OHLCV bars for the interval, oldest first.
func (c *Client) Klines(ctx context.Context, symbol, interval string, limit int) ([]common.Candle, error) {
	params := url.Values{
		"symbol":   {symbol},
		"interval": {interval},
		"limit":    {strconv.Itoa(limit)},
	}
	var raw [][]json.RawMessage
	if err := c.public(ctx, "/fapi/v3/klines", params, &raw); err != nil {
		return nil, err
	}

	out := make([]common.Candle, 0, len(raw))
	for _, k := range raw {
		if len(k) < 7 {
			continue
		}
		out = append(out, common.Candle{
			OpenTime:  klineInt(k[0]),
			Open:      klineFloat(k[1]),
			High:      klineFloat(k[2]),
			Low:       klineFloat(k[3]),
			Close:     klineFloat(k[4]),
			Volume:    klineFloat(k[5]),
			CloseTime: klineInt(k[6]),
		})
	}
	return out, nil
}

// SetLeverage sets the account leverage for symbol.
func (c *Client) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	params := map[string]string{
		"symbol":   symbol,
		"leverage": strconv.Itoa(leverage),
	}
	return c.signed(ctx, http.MethodPost, "/fapi/v3/leverage", params, nil)
}

// CancelAllOrders cancels every open order for symbol. Stale unfilled
// limit orders hold margin hostage, so this runs before each open.
func (c *Client) CancelAllOrders(ctx context.Context, symbol string) error {
	return c.signed(ctx, http.MethodDelete, "/fapi/v3/allOpenOrders", map[string]string{"symbol": symbol}, nil)
}

// PlaceOrder submits one order and returns the venue ack.
func (c *Client) PlaceOrder(ctx context.Context, req common.OrderRequest) (common.OrderResult, error) {
	prec, err := c.Precision(ctx, req.Symbol)
	if err != nil {
		return common.OrderResult{}, err
	}

	params := map[string]string{
		"symbol": req.Symbol,
		"side":   string(req.Side),
		"type":   string(req.Type),
	}
	if req.Quantity > 0 {
		params["quantity"] = formatValue(req.Quantity, prec.QuantityPrecision, prec.StepSize)
	}
	if req.Price > 0 {
		params["price"] = formatValue(req.Price, prec.PricePrecision, prec.TickSize)
	}
	if req.StopPrice > 0 {
		params["stopPrice"] = formatValue(req.StopPrice, prec.PricePrecision, prec.TickSize)
	}
	if req.TimeInForce != "" {
		params["timeInForce"] = string(req.TimeInForce)
	}
	if req.ReduceOnly {
		params["reduceOnly"] = "true"
	}
	if req.ClosePosition {
		params["closePosition"] = "true"
	}
	if req.ClientID != "" {
		params["newClientOrderId"] = req.ClientID
	}
	if c.hedge && req.PositionSide != "" {
		params["positionSide"] = string(req.PositionSide)
	}

	start := time.Now()
	var resp orderResponse
	if err := c.signed(ctx, http.MethodPost, "/fapi/v3/order", params, &resp); err != nil {
		return common.OrderResult{}, err
	}

	status := common.OrderStatus(resp.Status)
	if status == "" {
		status = common.StatusUnknown
	}
	return common.OrderResult{
		OrderID:     resp.OrderID,
		ClientID:    resp.ClientOrderID,
		Symbol:      resp.Symbol,
		Status:      status,
		Price:       parseFloat(resp.Price),
		AvgPrice:    parseFloat(resp.AvgPrice),
		ExecutedQty: parseFloat(resp.ExecutedQty),
		Latency:     time.Since(start),
	}, nil
}

// OpenLong opens a long with a limit order 1% above market so it fills
// immediately but never at an uncontrolled price.
func (c *Client) OpenLong(ctx context.Context, symbol string, quantity float64, leverage int) (common.OrderResult, error) {
	return c.open(ctx, symbol, common.SideBuy, common.PositionLong, quantity, leverage, 1.01)
}

// OpenShort opens a short with a limit order 1% below market.
func (c *Client) OpenShort(ctx context.Context, symbol string, quantity float64, leverage int) (common.OrderResult, error) {
	return c.open(ctx, symbol, common.SideSell, common.PositionShort, quantity, leverage, 0.99)
}

func (c *Client) open(ctx context.Context, symbol string, side common.Side, posSide common.PositionSide, quantity float64, leverage int, offset float64) (common.OrderResult, error) {
	if err := c.CancelAllOrders(ctx, symbol); err != nil {
		// Nothing to cancel is fine; anything else still should not
		// block the open.
		log.Printf("cancel open orders for %s: %v", symbol, err)
	}
	if err := c.SetLeverage(ctx, symbol, leverage); err != nil {
		return common.OrderResult{}, fmt.Errorf("set leverage: %w", err)
	}
	price, err := c.Price(ctx, symbol)
	if err != nil {
		return common.OrderResult{}, err
	}

	log.Printf("opening %s %s: quantity=%v limit=%v leverage=%dx", posSide, symbol, quantity, price*offset, leverage)
	return c.PlaceOrder(ctx, common.OrderRequest{
		Symbol:       symbol,
		Side:         side,
		Type:         common.OrderTypeLimit,
		Quantity:     quantity,
		Price:        price * offset,
		TimeInForce:  common.TIFGTC,
		PositionSide: posSide,
	})
}

// CloseResult reports what a close actually did.
type CloseResult struct {
	Order          common.OrderResult
	ClosedQuantity float64
	Price          float64
	FullyClosed    bool
}

// ClosePosition closes quantity of the side position on symbol with a
// reduce-only limit order 1% through the market. A zero quantity closes
// the whole position; a partial quantity is capped at the position size.
func (c *Client) ClosePosition(ctx context.Context, symbol, side string, quantity float64) (CloseResult, error) {
	positions, err := c.Positions(ctx)
	if err != nil {
		return CloseResult{}, err
	}
	var pos *Position
	for i := range positions {
		if positions[i].Symbol == symbol && positions[i].Side == side {
			pos = &positions[i]
			break
		}
	}
	if pos == nil {
		return CloseResult{}, fmt.Errorf("no %s position found for %s", side, symbol)
	}

	target := pos.Quantity
	if quantity > 0 {
		target = math.Min(math.Abs(quantity), pos.Quantity)
	}
	price, err := c.Price(ctx, symbol)
	if err != nil {
		return CloseResult{}, err
	}

	orderSide := common.SideSell
	offset := 0.99
	posSide := common.PositionLong
	if side == "short" {
		orderSide = common.SideBuy
		offset = 1.01
		posSide = common.PositionShort
	}

	log.Printf("closing %s %s: quantity=%v", strings.ToUpper(side), symbol, target)
	order, err := c.PlaceOrder(ctx, common.OrderRequest{
		Symbol:       symbol,
		Side:         orderSide,
		Type:         common.OrderTypeLimit,
		Quantity:     target,
		Price:        price * offset,
		TimeInForce:  common.TIFGTC,
		ReduceOnly:   true,
		PositionSide: posSide,
	})
	if err != nil {
		return CloseResult{}, err
	}

	fully := math.Abs(target-pos.Quantity) < 1e-9
	if fully {
		// The protective TP/SL orders are now orphaned.
		if err := c.CancelAllOrders(ctx, symbol); err != nil {
			log.Printf("cancel remaining orders for %s: %v", symbol, err)
		}
	}
	return CloseResult{
		Order:          order,
		ClosedQuantity: target,
		Price:          price,
		FullyClosed:    fully,
	}, nil
}

// PlaceProtectiveOrders attaches reduce-only TAKE_PROFIT_MARKET and
// STOP_MARKET orders to a just-opened position. Failures are logged and
// returned but do not undo the position.
func (c *Client) PlaceProtectiveOrders(ctx context.Context, symbol, side string, quantity, entryPrice, takeProfitPct, stopLossPct float64) error {
	if quantity <= 0 || entryPrice <= 0 {
		return fmt.Errorf("protective orders need positive quantity and entry price")
	}

	posSide := common.PositionLong
	exitSide := common.SideSell
	if side == "short" {
		posSide = common.PositionShort
		exitSide = common.SideBuy
	}

	place := func(orderType common.OrderType, stopPrice float64) error {
		_, err := c.PlaceOrder(ctx, common.OrderRequest{
			Symbol:       symbol,
			Side:         exitSide,
			Type:         orderType,
			Quantity:     quantity,
			StopPrice:    stopPrice,
			ReduceOnly:   true,
			PositionSide: posSide,
		})
		return err
	}

	var firstErr error
	if takeProfitPct > 0 {
		tp := entryPrice * (1 + takeProfitPct/100)
		if side == "short" {
			tp = entryPrice * (1 - takeProfitPct/100)
		}
		if err := place(common.OrderTypeTakeProfitMarket, tp); err != nil {
			log.Printf("place take-profit for %s %s: %v", symbol, side, err)
			firstErr = err
		}
	}
	if stopLossPct > 0 {
		sl := entryPrice * (1 - stopLossPct/100)
		if side == "short" {
			sl = entryPrice * (1 + stopLossPct/100)
		}
		if err := place(common.OrderTypeStopMarket, sl); err != nil {
			log.Printf("place stop-loss for %s %s: %v", symbol, side, err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// UserTrades returns recent fills for symbol, newest first.
func (c *Client) UserTrades(ctx context.Context, symbol string, limit int) ([]Trade, error) {
	if limit <= 0 || limit > 1000 {
		limit = 500
	}
	params := map[string]string{
		"symbol": symbol,
		"limit":  strconv.Itoa(limit),
	}
	var payload []tradePayload
	if err := c.signed(ctx, http.MethodGet, "/fapi/v1/userTrades", params, &payload); err != nil {
		return nil, err
	}

	out := make([]Trade, 0, len(payload))
	for _, t := range payload {
		out = append(out, Trade{
			ID:            t.ID,
			OrderID:       t.OrderID,
			Symbol:        t.Symbol,
			Side:          t.Side,
			PositionSide:  t.PositionSide,
			Price:         parseFloat(t.Price),
			Quantity:      parseFloat(t.Qty),
			QuoteQuantity: parseFloat(t.QuoteQty),
			RealizedPnL:   parseFloat(t.RealizedPnl),
			Commission:    parseFloat(t.Commission),
			Time:          t.Time,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Time > out[j].Time })
	return out, nil
}

// public performs an unauthenticated GET.
func (c *Client) public(ctx context.Context, path string, params url.Values, out any) error {
	return c.retry.Do(ctx, func() error {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
		u := c.baseURL + path
		if len(params) > 0 {
			u += "?" + params.Encode()
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return err
		}
		return c.do(req, out)
	})
}

// signed performs an authenticated request. Every attempt redraws the
// nonce and re-signs: the venue rejects reused nonces, so a failed
// attempt can never be replayed byte for byte.
func (c *Client) signed(ctx context.Context, method, path string, params map[string]string, out any) error {
	return c.retry.Do(ctx, func() error {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}

		signedParams, err := c.signer.Sign(params, time.Now(), c.signer.Nonce())
		if err != nil {
			return err
		}
		form := url.Values{}
		for k, v := range signedParams {
			form.Set(k, v)
		}

		var req *http.Request
		switch method {
		case http.MethodGet, http.MethodDelete:
			req, err = http.NewRequestWithContext(ctx, method, c.baseURL+path+"?"+form.Encode(), nil)
		default:
			req, err = http.NewRequestWithContext(ctx, method, c.baseURL+path, strings.NewReader(form.Encode()))
			if err == nil {
				req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
			}
		}
		if err != nil {
			return err
		}
		return c.do(req, out)
	})
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode >= 300 {
		var payload apiErrorPayload
		_ = json.Unmarshal(body, &payload)
		msg := payload.Msg
		if msg == "" {
			msg = strings.TrimSpace(string(body))
		}
		return &APIError{Status: resp.StatusCode, Code: payload.Code, Message: msg}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode %s response: %w", req.URL.Path, err)
	}
	return nil
}

func klineFloat(raw json.RawMessage) float64 {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return parseFloat(s)
	}
	var f float64
	_ = json.Unmarshal(raw, &f)
	return f
}

func klineInt(raw json.RawMessage) int64 {
	var n int64
	_ = json.Unmarshal(raw, &n)
	return n
}
