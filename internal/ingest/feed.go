package ingest

import (
	"context"
	"sync/atomic"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
	"github.com/yanun0323/pkg/sys"
	"github.com/yanun0323/pkg/ws"

	"main/internal/schema"
)

// Dispatcher receives decoded feed events, routed per symbol.
type Dispatcher interface {
	DispatchMarketData(schema.Inbound)
	DispatchExecReport(context.Context, schema.Inbound) error
}

// Config describes the venue connection.
type Config struct {
	Endpoint      string `json:"endpoint"`
	SnapshotDepth int    `json:"snapshotDepth"`
}

// Feed is the venue session: market-data subscriptions, order entry, and
// snapshot re-requests all ride one websocket so the venue sees them in
// the order they were issued.
type Feed struct {
	cfg      Config
	wss      *ws.WebSocket
	registry *schema.Registry
	reqID    atomic.Int64
}

// NewFeed creates a feed over the configured endpoint.
func NewFeed(ctx context.Context, cfg Config, registry *schema.Registry) *Feed {
	if cfg.SnapshotDepth <= 0 {
		cfg.SnapshotDepth = 50
	}
	return &Feed{
		cfg:      cfg,
		wss:      ws.New(ctx, cfg.Endpoint),
		registry: registry,
	}
}

// Start opens the websocket.
func (f *Feed) Start(ctx context.Context) error {
	if err := f.wss.Start(ctx); err != nil {
		return errors.Wrap(err, "start wss")
	}
	return nil
}

// Close tears the session down.
func (f *Feed) Close() {
	f.wss.Close()
}

type subscribeRequest struct {
	ID      int64    `json:"id"`
	Method  string   `json:"method"`
	Channel string   `json:"channel"`
	Symbols []string `json:"symbols"`
	Depth   int      `json:"depth,omitempty"`
}

type subscribeResponse struct {
	ID    int64  `json:"id"`
	Error string `json:"error"`
}

// Subscribe registers the book, trade, and order channels for every
// configured symbol and waits for each acknowledgement.
func (f *Feed) Subscribe(ctx context.Context) error {
	symbols := make([]string, 0, f.registry.SymbolCount())
	for i := 0; i < f.registry.SymbolCount(); i++ {
		sym, _ := f.registry.SymbolAt(i)
		symbols = append(symbols, sym.Name)
	}

	for _, channel := range []string{"book", "trades", "orders"} {
		if err := f.subscribeChannel(ctx, channel, symbols); err != nil {
			return errors.Wrap(err, "subscribe").With("channel", channel)
		}
	}
	return nil
}

func (f *Feed) subscribeChannel(ctx context.Context, channel string, symbols []string) error {
	reqID := f.reqID.Add(1)
	payload := subscribeRequest{
		ID:      reqID,
		Method:  "subscribe",
		Channel: channel,
		Symbols: symbols,
	}
	if channel == "book" {
		payload.Depth = f.cfg.SnapshotDepth
	}

	appendIntoRegister := true
	if err := f.wss.SendAndWait(ctx, ws.Sidecar{
		Sender: func(ctx context.Context, client *ws.WebSocket) error {
			if err := client.WriteJSON(payload); err != nil {
				return errors.Wrap(err, "write subscribe payload").With("payload", payload)
			}
			return nil
		},
		Waiter: func(ctx context.Context, m ws.Message) (bool, error) {
			resp, ok := ws.ReadMessage[subscribeResponse](m)
			if !ok || resp.ID != reqID {
				return false, nil
			}
			if resp.Error != "" {
				return false, errors.Errorf("subscribe rejected: %s", resp.Error)
			}
			return true, nil
		},
	}, appendIntoRegister); err != nil {
		return errors.Wrap(err, "send and wait")
	}
	return nil
}

// Observe decodes the stream and pushes events to the dispatcher until
// the context ends.
func (f *Feed) Observe(ctx context.Context, dispatcher Dispatcher) (unsubscribe func()) {
	ch, cancel := f.wss.Subscribe()

	go func() {
		defer cancel()
		for {
			select {
			case <-sys.Shutdown():
				return
			case <-ctx.Done():
				return
			case m, ok := <-ch:
				if !ok {
					return
				}

				msg, ok := ws.ReadMessage[feedMessage](m)
				if !ok || msg.Channel == "" {
					continue
				}

				event, err := decode(msg, f.registry)
				if err != nil {
					logs.Errorf("decode feed message, channel %s symbol %s: %+v",
						msg.Channel, msg.Symbol, err)
					continue
				}

				switch event.(type) {
				case schema.ExecReport, schema.CancelReject:
					if err := dispatcher.DispatchExecReport(ctx, event); err != nil {
						logs.Errorf("dispatch exec report: %+v", err)
					}
				default:
					dispatcher.DispatchMarketData(event)
				}
			}
		}
	}()

	return cancel
}

// RequestSnapshot asks the venue to replay a full book snapshot, used
// after a sequence gap or a crossed book.
func (f *Feed) RequestSnapshot(symbolID schema.SymbolID) {
	sym, ok := f.registry.Symbol(symbolID)
	if !ok {
		return
	}
	payload := map[string]any{
		"id":      f.reqID.Add(1),
		"method":  "snapshot",
		"channel": "book",
		"symbols": []string{sym.Name},
		"depth":   f.cfg.SnapshotDepth,
	}
	if err := f.wss.WriteJSON(payload); err != nil {
		logs.Errorf("request snapshot, symbol %s: %+v", sym.Name, err)
	}
}

type orderRequest struct {
	Method      string `json:"method"`
	ClOrdID     uint64 `json:"clOrdId"`
	OrigClOrdID uint64 `json:"origClOrdId,omitempty"`
	Symbol      string `json:"symbol"`
	Side        string `json:"side,omitempty"`
	Type        string `json:"type,omitempty"`
	TimeInForce string `json:"timeInForce,omitempty"`
	Price       string `json:"price,omitempty"`
	Qty         string `json:"qty,omitempty"`
}

// WriteNew submits an order over the session.
func (f *Feed) WriteNew(o schema.NewOrder) error {
	sym, ok := f.registry.Symbol(o.SymbolID)
	if !ok {
		return errors.Errorf("unknown symbol id %d", o.SymbolID)
	}
	req := orderRequest{
		Method:      "order.new",
		ClOrdID:     o.ClOrdID,
		Symbol:      sym.Name,
		Side:        o.Side.String(),
		Type:        formatOrderType(o.Type),
		TimeInForce: formatTimeInForce(o.TimeInForce),
		Price:       formatScaled(int64(o.Price), sym.Scale.PriceScale),
		Qty:         formatScaled(int64(o.Qty), sym.Scale.QuantityScale),
	}
	if err := f.wss.WriteJSON(req); err != nil {
		return errors.Wrap(err, "write new order").With("clOrdId", o.ClOrdID)
	}
	return nil
}

// WriteCancel submits a cancel over the session.
func (f *Feed) WriteCancel(o schema.CancelOrder) error {
	sym, ok := f.registry.Symbol(o.SymbolID)
	if !ok {
		return errors.Errorf("unknown symbol id %d", o.SymbolID)
	}
	req := orderRequest{
		Method:      "order.cancel",
		ClOrdID:     o.ClOrdID,
		OrigClOrdID: o.OrigClOrdID,
		Symbol:      sym.Name,
	}
	if err := f.wss.WriteJSON(req); err != nil {
		return errors.Wrap(err, "write cancel").With("clOrdId", o.ClOrdID)
	}
	return nil
}

// WriteReplace submits a cancel-replace over the session.
func (f *Feed) WriteReplace(o schema.CancelReplaceOrder) error {
	sym, ok := f.registry.Symbol(o.SymbolID)
	if !ok {
		return errors.Errorf("unknown symbol id %d", o.SymbolID)
	}
	req := orderRequest{
		Method:      "order.replace",
		ClOrdID:     o.ClOrdID,
		OrigClOrdID: o.OrigClOrdID,
		Symbol:      sym.Name,
		Side:        o.Side.String(),
		Type:        formatOrderType(o.Type),
		TimeInForce: formatTimeInForce(o.NewTimeInForce),
		Price:       formatScaled(int64(o.NewPrice), sym.Scale.PriceScale),
		Qty:         formatScaled(int64(o.NewQty), sym.Scale.QuantityScale),
	}
	if err := f.wss.WriteJSON(req); err != nil {
		return errors.Wrap(err, "write replace").With("clOrdId", o.ClOrdID)
	}
	return nil
}

func formatOrderType(t schema.OrderType) string {
	switch t {
	case schema.OrderTypeLimit:
		return "limit"
	case schema.OrderTypeMarket:
		return "market"
	default:
		return ""
	}
}

func formatTimeInForce(t schema.TimeInForce) string {
	switch t {
	case schema.TimeInForceGTC:
		return "gtc"
	case schema.TimeInForceIOC:
		return "ioc"
	case schema.TimeInForceFOK:
		return "fok"
	default:
		return ""
	}
}

// formatScaled renders a scaled integer as a decimal string.
func formatScaled(v int64, scale schema.Scale) string {
	neg := v < 0
	if neg {
		v = -v
	}

	digits := []byte{}
	for v > 0 || len(digits) <= int(scale) {
		digits = append(digits, byte('0'+v%10))
		v /= 10
	}
	for i, j := 0, len(digits)-1; i < j; i, j = i+1, j-1 {
		digits[i], digits[j] = digits[j], digits[i]
	}

	out := string(digits)
	if scale > 0 {
		split := len(out) - int(scale)
		out = out[:split] + "." + out[split:]
	}
	if neg {
		out = "-" + out
	}
	return out
}
