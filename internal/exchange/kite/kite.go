package kite

import (
	"context"
	"errors"
	"time"

	kiteconnect "github.com/zerodha/gokiteconnect/v4"

	"llm-autotrader/internal/errs"
	"llm-autotrader/internal/interfaces"
	"llm-autotrader/internal/types"
)

// Client adapts Zerodha Kite Connect to the ExchangeClient contract. Equity
// instruments carry no funding rate; FetchFundingRate reports zero.
type Client struct {
	kc       *kiteconnect.Client
	exchange string
	tokens   map[string]int
}

var _ interfaces.ExchangeClient = (*Client)(nil)

type Params struct {
	APIKey      string
	AccessToken string
	Exchange    string
	// Tokens maps trading symbols to Kite instrument tokens for historical
	// candle queries.
	Tokens map[string]int
}

func New(p Params) (*Client, error) {
	if p.APIKey == "" || p.AccessToken == "" {
		return nil, errs.New(errs.Auth, "kite_creds_missing", "missing Kite API key or access token")
	}
	kc := kiteconnect.New(p.APIKey)
	kc.SetAccessToken(p.AccessToken)
	if p.Exchange == "" {
		p.Exchange = "NSE"
	}
	return &Client{kc: kc, exchange: p.Exchange, tokens: p.Tokens}, nil
}

func (c *Client) instrument(symbol string) string {
	return c.exchange + ":" + symbol
}

func (c *Client) FetchTicker(ctx context.Context, symbol string) (types.TickerSnapshot, error) {
	symbol = types.NormalizeSymbol(symbol)
	quotes, err := c.kc.GetQuote(c.instrument(symbol))
	if err != nil {
		return types.TickerSnapshot{}, mapError(err)
	}
	q, ok := quotes[c.instrument(symbol)]
	if !ok {
		return types.TickerSnapshot{}, errs.Newf(errs.NotFound, "no quote for %s", symbol)
	}

	bid, ask := 0.0, 0.0
	if len(q.Depth.Buy) > 0 {
		bid = q.Depth.Buy[0].Price
	}
	if len(q.Depth.Sell) > 0 {
		ask = q.Depth.Sell[0].Price
	}
	change := q.LastPrice - q.OHLC.Close
	changePct := 0.0
	if q.OHLC.Close != 0 {
		changePct = change / q.OHLC.Close * 100
	}
	return types.TickerSnapshot{
		Symbol:      symbol,
		LastPrice:   q.LastPrice,
		Bid:         bid,
		Ask:         ask,
		Volume24h:   float64(q.Volume),
		High24h:     q.OHLC.High,
		Low24h:      q.OHLC.Low,
		Change24h:   change,
		ChangePct24: changePct,
		ObservedAt:  time.Now(),
	}, nil
}

func (c *Client) FetchOrderBook(ctx context.Context, symbol string, depth int) (types.OrderBookSnapshot, error) {
	symbol = types.NormalizeSymbol(symbol)
	quotes, err := c.kc.GetQuote(c.instrument(symbol))
	if err != nil {
		return types.OrderBookSnapshot{}, mapError(err)
	}
	q, ok := quotes[c.instrument(symbol)]
	if !ok {
		return types.OrderBookSnapshot{}, errs.Newf(errs.NotFound, "no quote for %s", symbol)
	}

	book := types.OrderBookSnapshot{Symbol: symbol, ObservedAt: time.Now()}
	for i, lvl := range q.Depth.Buy {
		if i >= depth || lvl.Price == 0 {
			break
		}
		book.Bids = append(book.Bids, types.BookLevel{Price: lvl.Price, Qty: float64(lvl.Quantity)})
	}
	for i, lvl := range q.Depth.Sell {
		if i >= depth || lvl.Price == 0 {
			break
		}
		book.Asks = append(book.Asks, types.BookLevel{Price: lvl.Price, Qty: float64(lvl.Quantity)})
	}
	return book, nil
}

func (c *Client) FetchFundingRate(ctx context.Context, symbol string) (types.FundingRate, error) {
	return types.FundingRate{
		Symbol:     types.NormalizeSymbol(symbol),
		Rate:       0,
		ObservedAt: time.Now(),
	}, nil
}

func (c *Client) FetchCandles(ctx context.Context, symbol string, tf types.Timeframe, limit int) (types.CandleSeries, error) {
	symbol = types.NormalizeSymbol(symbol)
	token, ok := c.tokens[symbol]
	if !ok {
		return types.CandleSeries{}, errs.Newf(errs.InvalidInput, "no instrument token for %s", symbol)
	}

	interval := "15minute"
	step := 15 * time.Minute
	if tf == types.Timeframe1h {
		interval = "60minute"
		step = time.Hour
	}

	to := time.Now()
	from := to.Add(-time.Duration(limit*2) * step)
	data, err := c.kc.GetHistoricalData(token, interval, from, to, false, false)
	if err != nil {
		return types.CandleSeries{}, mapError(err)
	}

	candles := make([]types.Candle, 0, limit)
	for _, h := range data {
		candles = append(candles, types.Candle{
			OpenTime: h.Date.Time,
			Open:     h.Open,
			High:     h.High,
			Low:      h.Low,
			Close:    h.Close,
			Volume:   float64(h.Volume),
		})
	}
	if len(candles) > limit {
		candles = candles[len(candles)-limit:]
	}
	return types.CandleSeries{
		Symbol:     symbol,
		Timeframe:  tf,
		Candles:    candles,
		ObservedAt: time.Now(),
	}, nil
}

func (c *Client) FetchBalance(ctx context.Context) (types.Balance, error) {
	margins, err := c.kc.GetUserMargins()
	if err != nil {
		return types.Balance{}, mapError(err)
	}
	return types.Balance{
		Cash:       margins.Equity.Available.Cash,
		Equity:     margins.Equity.Net,
		UsedMargin: margins.Equity.Used.Debits,
	}, nil
}

func (c *Client) FetchPositions(ctx context.Context) ([]types.Position, error) {
	positions, err := c.kc.GetPositions()
	if err != nil {
		return nil, mapError(err)
	}
	out := make([]types.Position, 0, len(positions.Net))
	for _, p := range positions.Net {
		if p.Quantity == 0 {
			continue
		}
		out = append(out, types.Position{
			Symbol:        types.NormalizeSymbol(p.Tradingsymbol),
			Qty:           float64(p.Quantity),
			EntryPrice:    p.AveragePrice,
			MarkPrice:     p.LastPrice,
			UnrealizedPnL: p.Unrealised,
			Leverage:      1,
		})
	}
	return out, nil
}

func (c *Client) PlaceOrder(ctx context.Context, req types.OrderRequest) (string, error) {
	orderType := kiteconnect.OrderTypeMarket
	if req.Kind == types.OrderLimit {
		orderType = kiteconnect.OrderTypeLimit
	}
	txType := kiteconnect.TransactionTypeBuy
	if req.Side == types.SideSell {
		txType = kiteconnect.TransactionTypeSell
	}

	resp, err := c.kc.PlaceOrder(kiteconnect.VarietyRegular, kiteconnect.OrderParams{
		Exchange:        c.exchange,
		Tradingsymbol:   types.NormalizeSymbol(req.Symbol),
		TransactionType: txType,
		OrderType:       orderType,
		Quantity:        int(req.Qty),
		Price:           req.Price,
		Product:         kiteconnect.ProductMIS,
		Validity:        kiteconnect.ValidityDay,
		Tag:             req.Tag,
	})
	if err != nil {
		return "", mapError(err)
	}
	return resp.OrderID, nil
}

func (c *Client) CancelOrder(ctx context.Context, symbol, orderID string) error {
	_, err := c.kc.CancelOrder(kiteconnect.VarietyRegular, orderID, nil)
	if err != nil {
		return mapError(err)
	}
	return nil
}

func (c *Client) FetchOrder(ctx context.Context, symbol, orderID string) (types.Order, error) {
	history, err := c.kc.GetOrderHistory(orderID)
	if err != nil {
		return types.Order{}, mapError(err)
	}
	if len(history) == 0 {
		return types.Order{}, errs.Newf(errs.NotFound, "order %s", orderID)
	}

	last := history[len(history)-1]
	side := types.SideBuy
	if last.TransactionType == kiteconnect.TransactionTypeSell {
		side = types.SideSell
	}
	kind := types.OrderMarket
	if last.OrderType == kiteconnect.OrderTypeLimit {
		kind = types.OrderLimit
	}
	return types.Order{
		ID:          last.OrderID,
		Symbol:      types.NormalizeSymbol(last.TradingSymbol),
		Side:        side,
		Kind:        kind,
		Qty:         last.Quantity,
		Price:       last.Price,
		Status:      mapOrderStatus(last.Status),
		SubmittedAt: last.OrderTimestamp.Time,
	}, nil
}

func mapOrderStatus(s string) types.OrderStatus {
	switch s {
	case "COMPLETE":
		return types.OrderFilled
	case "CANCELLED":
		return types.OrderCanceled
	case "REJECTED":
		return types.OrderRejected
	case "OPEN", "TRIGGER PENDING":
		return types.OrderOpen
	}
	return types.OrderAccepted
}

// mapError translates Kite Connect error types into the platform taxonomy.
func mapError(err error) error {
	var kiteErr kiteconnect.Error
	if errors.As(err, &kiteErr) {
		switch kiteErr.ErrorType {
		case "TokenException", "PermissionException":
			return errs.Wrap(errs.Auth, kiteErr.Message, err)
		case "InputException", "OrderException":
			return errs.RejectedWith(kiteErr.ErrorType, kiteErr.Message)
		case "NetworkException":
			return errs.Wrap(errs.Transient, kiteErr.Message, err)
		case "ThrottleException":
			return errs.Wrap(errs.RateLimited, kiteErr.Message, err)
		}
		return errs.Wrap(errs.Unavailable, kiteErr.Message, err)
	}
	return errs.Wrap(errs.Transient, "kite call failed", err)
}
