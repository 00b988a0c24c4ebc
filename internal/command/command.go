package command

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"autotrader/internal/model"
)

// Order sides.
const (
	SideBuy  = "buy"
	SideSell = "sell"
)

var (
	ErrUnknownKind     = errors.New("command: unknown kind")
	ErrPayloadMismatch = errors.New("command: payload does not match kind")
)

// Payload is implemented by the payload types below and nothing else.
type Payload interface{ payload() }

// Empty is the payload of parameterless queries.
type Empty struct{}

// Order places a new buy or sell order. Price 0 means market.
type Order struct {
	Side  string  `json:"-"`
	Code  string  `json:"code"`
	Price FlexInt `json:"price"`
	Qty   FlexInt `json:"qty"`
}

// Cancel cancels (part of) a resting order. OrderType is "buy" or "sell"
// (the broker's "+매수"/"-매도" are accepted too).
type Cancel struct {
	OrderNo   string  `json:"order_no"`
	Code      string  `json:"code"`
	Qty       FlexInt `json:"qty"`
	OrderType string  `json:"order_type"`
}

// RSIQuery selects the RSI mode. Zero values mean wilder / 14.
type RSIQuery struct {
	Code   string  `json:"code"`
	Method string  `json:"method,omitempty"`
	Period FlexInt `json:"period,omitempty"`
}

// CrossQuery runs golden or dead cross detection. Window 0 means 5.
type CrossQuery struct {
	Code   string  `json:"code"`
	Window FlexInt `json:"window,omitempty"`
}

// Code is the payload of single-instrument queries.
type Code struct {
	Code string `json:"code"`
}

// MovingAverageQuery carries the chart code and the trade-history overlay
// as comma-joined parallel lists.
type MovingAverageQuery struct {
	Code         string `json:"code"`
	HistoryDate  string `json:"history_date"`
	HistoryCode  string `json:"history_code"`
	HistoryPrice string `json:"history_price"`
	HistoryFlag  string `json:"history_flag"`
}

func (Empty) payload()              {}
func (Order) payload()              {}
func (Cancel) payload()             {}
func (RSIQuery) payload()           {}
func (CrossQuery) payload()         {}
func (Code) payload()               {}
func (MovingAverageQuery) payload() {}

// newPayload returns a pointer to the zero payload expected for k.
func newPayload(k Kind) (any, bool) {
	switch k {
	case AccountQuery, CashQuery, Holdings, VolumeLeaders, UnfilledOrders:
		return &Empty{}, true
	case PlaceOrder:
		return &Order{}, true
	case CancelOrder:
		return &Cancel{}, true
	case RSI:
		return &RSIQuery{}, true
	case MovingAverage:
		return &MovingAverageQuery{}, true
	case GoldenCross, DeadCross:
		return &CrossQuery{}, true
	case StochasticStandard, StochasticExtended, SearchStock, MACDQuery, VolumeSearch, SaveVolume:
		return &Code{}, true
	}
	return nil, false
}

func matches(k Kind, p Payload) bool {
	switch k {
	case AccountQuery, CashQuery, Holdings, VolumeLeaders, UnfilledOrders:
		_, ok := p.(Empty)
		return ok
	case PlaceOrder:
		o, ok := p.(Order)
		return ok && (o.Side == SideBuy || o.Side == SideSell)
	case CancelOrder:
		_, ok := p.(Cancel)
		return ok
	case RSI:
		_, ok := p.(RSIQuery)
		return ok
	case MovingAverage:
		_, ok := p.(MovingAverageQuery)
		return ok
	case GoldenCross, DeadCross:
		_, ok := p.(CrossQuery)
		return ok
	case StochasticStandard, StochasticExtended, SearchStock, MACDQuery, VolumeSearch, SaveVolume:
		_, ok := p.(Code)
		return ok
	}
	return false
}

// Command is one queued operation. It is a value and is not modified after
// it is enqueued.
type Command struct {
	Kind    Kind
	Payload Payload
}

// New builds a Command, checking that p is the payload type for k.
// A nil payload is accepted for parameterless kinds.
func New(k Kind, p Payload) (Command, error) {
	if !k.Valid() {
		return Command{}, fmt.Errorf("%w: %d", ErrUnknownKind, int(k))
	}
	if p == nil && k.Parameterless() {
		p = Empty{}
	}
	if p == nil || !matches(k, p) {
		return Command{}, fmt.Errorf("%w: %s got %T", ErrPayloadMismatch, k, p)
	}
	return Command{Kind: k, Payload: p}, nil
}

// MustNew is New for statically known commands.
func MustNew(k Kind, p Payload) Command {
	c, err := New(k, p)
	if err != nil {
		panic(err)
	}
	return c
}

// Tag is the wire discriminator for c.
func (c Command) Tag() string {
	if o, ok := c.Payload.(Order); ok && c.Kind == PlaceOrder {
		return o.Side
	}
	return c.Kind.String()
}

// MarshalJSON writes a bare string for parameterless kinds and an object
// with a "type" discriminator otherwise.
func (c Command) MarshalJSON() ([]byte, error) {
	if c.Kind.Parameterless() {
		return json.Marshal(c.Kind.String())
	}
	body, err := json.Marshal(c.Payload)
	if err != nil {
		return nil, err
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, err
	}
	tag, _ := json.Marshal(c.Tag())
	fields["type"] = tag
	return json.Marshal(fields)
}

// UnmarshalJSON accepts either wire form.
func (c *Command) UnmarshalJSON(data []byte) error {
	cmd, err := Decode(data)
	if err != nil {
		return err
	}
	*c = cmd
	return nil
}

// Decode parses one inbound queue item.
func Decode(data []byte) (Command, error) {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var tag string
		if err := json.Unmarshal(data, &tag); err != nil {
			return Command{}, err
		}
		k, ok := ParseKind(tag)
		if !ok {
			return Command{}, fmt.Errorf("%w: %q", ErrUnknownKind, tag)
		}
		return New(k, nil)
	}

	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return Command{}, fmt.Errorf("decode command: %w", err)
	}
	k, ok := ParseKind(head.Type)
	if !ok {
		return Command{}, fmt.Errorf("%w: %q", ErrUnknownKind, head.Type)
	}
	ptr, _ := newPayload(k)
	if err := json.Unmarshal(data, ptr); err != nil {
		return Command{}, fmt.Errorf("decode %s payload: %w", head.Type, err)
	}
	var p Payload
	switch v := ptr.(type) {
	case *Empty:
		p = *v
	case *Order:
		v.Side = head.Type
		p = *v
	case *Cancel:
		p = *v
	case *RSIQuery:
		p = *v
	case *MovingAverageQuery:
		p = *v
	case *CrossQuery:
		p = *v
	case *Code:
		p = *v
	}
	return New(k, p)
}

// Handler runs one Command. The returned value must be JSON-serializable.
type Handler func(ctx context.Context, cmd Command) (any, error)

// FlexInt decodes a JSON number or a numeric string (form posts send both).
type FlexInt int64

func (n *FlexInt) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*n = 0
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*n = FlexInt(model.ParseInt(s))
		return nil
	}
	v, err := strconv.ParseFloat(string(data), 64)
	if err != nil {
		return fmt.Errorf("not a number: %s", data)
	}
	*n = FlexInt(int64(v))
	return nil
}

// Int64 returns n as an int64.
func (n FlexInt) Int64() int64 { return int64(n) }
