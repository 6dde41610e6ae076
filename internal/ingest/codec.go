package ingest

import (
	"github.com/yanun0323/decimal"
	"github.com/yanun0323/errors"

	"main/internal/schema"
	"main/pkg/exception"
)

const maxInt64 = int64(^uint64(0) >> 1)

// feedMessage is the flat wire envelope. The venue tags every message
// with a channel and a type; unused fields stay zero.
type feedMessage struct {
	Channel string `json:"channel"`
	Type    string `json:"type"`
	Symbol  string `json:"symbol"`
	Seq     uint64 `json:"sequence"`
	Time    int64  `json:"time"`

	// book channel
	Bids [][2]decimal.Decimal `json:"bids"` // [0]price [1]quantity
	Asks [][2]decimal.Decimal `json:"asks"`

	// trades channel
	Side  string          `json:"side"`
	Price decimal.Decimal `json:"price"`
	Size  decimal.Decimal `json:"size"`

	// orders channel
	ClOrdID         uint64          `json:"clOrdId"`
	OrigClOrdID     uint64          `json:"origClOrdId"`
	ExchangeOrderID string          `json:"orderId"`
	ExecType        string          `json:"execType"`
	OrdStatus       string          `json:"ordStatus"`
	LeavesQty       decimal.Decimal `json:"leavesQty"`
	CumQty          decimal.Decimal `json:"cumQty"`
	AvgPx           decimal.Decimal `json:"avgPx"`
	LastQty         decimal.Decimal `json:"lastQty"`
	LastPx          decimal.Decimal `json:"lastPx"`
	Reason          string          `json:"reason"`
}

// decode maps one wire message to a schema event. The registry resolves
// the symbol and its scaling.
func decode(m feedMessage, registry *schema.Registry) (schema.Inbound, error) {
	sym, ok := registry.SymbolByName(m.Symbol)
	if !ok {
		return nil, errors.Wrap(exception.ErrFeedUnknownSymbol, m.Symbol)
	}

	switch m.Channel {
	case "book":
		return decodeBook(m, sym)
	case "trades":
		return decodeTrade(m, sym)
	case "orders":
		return decodeOrder(m, sym)
	default:
		return nil, errors.Wrap(exception.ErrFeedUnknownChannel, m.Channel)
	}
}

func decodeBook(m feedMessage, sym schema.Symbol) (schema.Inbound, error) {
	switch m.Type {
	case "snapshot":
		snap := schema.BookSnapshot{
			SymbolID: sym.ID,
			Seq:      m.Seq,
			TsNano:   m.Time,
			Levels:   make([]schema.BookLevel, 0, len(m.Bids)+len(m.Asks)),
		}
		for _, lvl := range m.Bids {
			decoded, err := decodeLevel(schema.SideBuy, lvl, sym.Scale)
			if err != nil {
				return nil, err
			}
			snap.Levels = append(snap.Levels, decoded)
		}
		for _, lvl := range m.Asks {
			decoded, err := decodeLevel(schema.SideSell, lvl, sym.Scale)
			if err != nil {
				return nil, err
			}
			snap.Levels = append(snap.Levels, decoded)
		}
		return snap, nil

	case "update":
		inc := schema.BookIncremental{
			SymbolID: sym.ID,
			Seq:      m.Seq,
			TsNano:   m.Time,
			Updates:  make([]schema.BookUpdate, 0, len(m.Bids)+len(m.Asks)),
		}
		for _, lvl := range m.Bids {
			update, err := decodeUpdate(schema.SideBuy, lvl, sym.Scale)
			if err != nil {
				return nil, err
			}
			inc.Updates = append(inc.Updates, update)
		}
		for _, lvl := range m.Asks {
			update, err := decodeUpdate(schema.SideSell, lvl, sym.Scale)
			if err != nil {
				return nil, err
			}
			inc.Updates = append(inc.Updates, update)
		}
		return inc, nil

	default:
		return nil, errors.Wrap(exception.ErrFeedInvalidPayload, m.Type)
	}
}

func decodeLevel(side schema.Side, lvl [2]decimal.Decimal, scale schema.ScaleSpec) (schema.BookLevel, error) {
	price, err := parseScaled(lvl[0], scale.PriceScale)
	if err != nil {
		return schema.BookLevel{}, err
	}
	size, err := parseScaled(lvl[1], scale.QuantityScale)
	if err != nil {
		return schema.BookLevel{}, err
	}
	return schema.BookLevel{Side: side, Price: schema.Price(price), Size: schema.Quantity(size)}, nil
}

// decodeUpdate treats a zero quantity as a level removal, the usual
// convention for diff streams.
func decodeUpdate(side schema.Side, lvl [2]decimal.Decimal, scale schema.ScaleSpec) (schema.BookUpdate, error) {
	price, err := parseScaled(lvl[0], scale.PriceScale)
	if err != nil {
		return schema.BookUpdate{}, err
	}
	size, err := parseScaled(lvl[1], scale.QuantityScale)
	if err != nil {
		return schema.BookUpdate{}, err
	}
	action := schema.BookActionChange
	if size == 0 {
		action = schema.BookActionDelete
	}
	return schema.BookUpdate{
		Action: action,
		Side:   side,
		Price:  schema.Price(price),
		Size:   schema.Quantity(size),
	}, nil
}

func decodeTrade(m feedMessage, sym schema.Symbol) (schema.Inbound, error) {
	side, err := parseSide(m.Side)
	if err != nil {
		return nil, err
	}
	price, err := parseScaled(m.Price, sym.Scale.PriceScale)
	if err != nil {
		return nil, err
	}
	size, err := parseScaled(m.Size, sym.Scale.QuantityScale)
	if err != nil {
		return nil, err
	}
	return schema.Trade{
		SymbolID: sym.ID,
		Side:     side,
		Price:    schema.Price(price),
		Size:     schema.Quantity(size),
		TsNano:   m.Time,
	}, nil
}

func decodeOrder(m feedMessage, sym schema.Symbol) (schema.Inbound, error) {
	if m.Type == "cancelReject" {
		return schema.CancelReject{
			SymbolID:    sym.ID,
			ClOrdID:     m.ClOrdID,
			OrigClOrdID: m.OrigClOrdID,
			Reason:      m.Reason,
			TsNano:      m.Time,
		}, nil
	}

	execType, err := parseExecType(m.ExecType)
	if err != nil {
		return nil, err
	}
	leaves, err := parseScaled(m.LeavesQty, sym.Scale.QuantityScale)
	if err != nil {
		return nil, err
	}
	cum, err := parseScaled(m.CumQty, sym.Scale.QuantityScale)
	if err != nil {
		return nil, err
	}
	avgPx, err := parseScaled(m.AvgPx, sym.Scale.PriceScale)
	if err != nil {
		return nil, err
	}
	lastQty, err := parseScaled(m.LastQty, sym.Scale.QuantityScale)
	if err != nil {
		return nil, err
	}
	lastPx, err := parseScaled(m.LastPx, sym.Scale.PriceScale)
	if err != nil {
		return nil, err
	}
	return schema.ExecReport{
		SymbolID:        sym.ID,
		ClOrdID:         m.ClOrdID,
		ExchangeOrderID: m.ExchangeOrderID,
		ExecType:        execType,
		OrdStatus:       parseOrdStatus(m.OrdStatus),
		LeavesQty:       schema.Quantity(leaves),
		CumQty:          schema.Quantity(cum),
		AvgPx:           schema.Price(avgPx),
		LastQty:         schema.Quantity(lastQty),
		LastPx:          schema.Price(lastPx),
		TsNano:          m.Time,
	}, nil
}

func parseSide(s string) (schema.Side, error) {
	switch s {
	case "buy":
		return schema.SideBuy, nil
	case "sell":
		return schema.SideSell, nil
	default:
		return schema.SideUnknown, errors.Wrap(exception.ErrFeedInvalidPayload, s)
	}
}

func parseExecType(s string) (schema.ExecType, error) {
	switch s {
	case "new":
		return schema.ExecTypeNew, nil
	case "partialFill":
		return schema.ExecTypePartialFill, nil
	case "fill":
		return schema.ExecTypeFill, nil
	case "canceled":
		return schema.ExecTypeCanceled, nil
	case "replaced":
		return schema.ExecTypeReplaced, nil
	case "rejected":
		return schema.ExecTypeRejected, nil
	default:
		return schema.ExecTypeUnknown, errors.Wrap(exception.ErrFeedInvalidPayload, s)
	}
}

func parseOrdStatus(s string) schema.OrdStatus {
	switch s {
	case "new":
		return schema.OrdStatusNew
	case "partiallyFilled":
		return schema.OrdStatusPartiallyFilled
	case "filled":
		return schema.OrdStatusFilled
	case "canceled":
		return schema.OrdStatusCanceled
	case "rejected":
		return schema.OrdStatusRejected
	default:
		return schema.OrdStatusUnknown
	}
}

// parseScaled converts a decimal string to an integer scaled by 10^scale.
// Excess fractional digits are an error, not a silent truncation: a feed
// finer than the configured scale means the scale config is wrong.
func parseScaled(d decimal.Decimal, scale schema.Scale) (int64, error) {
	s := d.String()
	if s == "" {
		return 0, nil
	}

	neg := false
	switch s[0] {
	case '-':
		neg = true
		s = s[1:]
	case '+':
		s = s[1:]
	}
	if s == "" {
		return 0, errors.Wrap(exception.ErrFeedInvalidPayload, "empty number")
	}

	intPart, fracPart := s, ""
	for i := 0; i < len(s); i++ {
		if s[i] == '.' {
			intPart, fracPart = s[:i], s[i+1:]
			break
		}
	}

	// Trailing zeros beyond the scale are harmless.
	for len(fracPart) > int(scale) && fracPart[len(fracPart)-1] == '0' {
		fracPart = fracPart[:len(fracPart)-1]
	}
	if len(fracPart) > int(scale) {
		return 0, errors.Wrap(exception.ErrFeedInvalidPayload, "fraction exceeds scale").With("value", d.String())
	}

	value := int64(0)
	for i := 0; i < len(intPart); i++ {
		c := intPart[i]
		if c < '0' || c > '9' {
			return 0, errors.Wrap(exception.ErrFeedInvalidPayload, "bad digit").With("value", d.String())
		}
		if value > (maxInt64-int64(c-'0'))/10 {
			return 0, errors.Wrap(exception.ErrFeedInvalidPayload, "overflow").With("value", d.String())
		}
		value = value*10 + int64(c-'0')
	}
	for i := 0; i < int(scale); i++ {
		digit := int64(0)
		if i < len(fracPart) {
			c := fracPart[i]
			if c < '0' || c > '9' {
				return 0, errors.Wrap(exception.ErrFeedInvalidPayload, "bad digit").With("value", d.String())
			}
			digit = int64(c - '0')
		}
		if value > (maxInt64-digit)/10 {
			return 0, errors.Wrap(exception.ErrFeedInvalidPayload, "overflow").With("value", d.String())
		}
		value = value*10 + digit
	}
	if neg {
		value = -value
	}
	return value, nil
}
