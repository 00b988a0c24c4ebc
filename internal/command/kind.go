// Package command is the closed set of operations that cross the bridge
// queues, their typed payloads and the JSON wire form used between the HTTP
// layer and the dispatcher.
package command

import "fmt"

// Kind tags a Command.
type Kind int

const (
	AccountQuery Kind = iota + 1
	CashQuery
	Holdings
	VolumeLeaders
	UnfilledOrders
	PlaceOrder
	CancelOrder
	RSI
	MovingAverage
	GoldenCross
	DeadCross
	StochasticStandard
	StochasticExtended
	SearchStock
	MACDQuery
	VolumeSearch
	SaveVolume
)

// Wire tags. PlaceOrder has two ("buy" and "sell"); its canonical tag is
// chosen from the payload side when encoding.
var tags = map[Kind]string{
	AccountQuery:       "get_account",
	CashQuery:          "get_available_cash",
	Holdings:           "get_holdings",
	VolumeLeaders:      "volume_leaders",
	UnfilledOrders:     "get_unfilled_orders",
	PlaceOrder:         "place_order",
	CancelOrder:        "cancel_order",
	RSI:                "get_rsi",
	MovingAverage:      "get_moving_average",
	GoldenCross:        "detect_golden_cross",
	DeadCross:          "detect_dead_cross",
	StochasticStandard: "get_stochastic",
	StochasticExtended: "get_stochastic_extended",
	SearchStock:        "search_stock",
	MACDQuery:          "get_macd",
	VolumeSearch:       "volume_search",
	SaveVolume:         "save_volume",
}

var byTag = func() map[string]Kind {
	m := make(map[string]Kind, len(tags)+2)
	for k, t := range tags {
		m[t] = k
	}
	m[SideBuy] = PlaceOrder
	m[SideSell] = PlaceOrder
	return m
}()

func (k Kind) String() string {
	if t, ok := tags[k]; ok {
		return t
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Valid reports whether k is one of the declared kinds.
func (k Kind) Valid() bool {
	_, ok := tags[k]
	return ok
}

// ParseKind resolves a wire tag.
func ParseKind(tag string) (Kind, bool) {
	k, ok := byTag[tag]
	return k, ok
}

// AllKinds lists every kind in declaration order.
func AllKinds() []Kind {
	out := make([]Kind, 0, len(tags))
	for k := AccountQuery; k <= SaveVolume; k++ {
		out = append(out, k)
	}
	return out
}

// Parameterless reports whether k travels as a bare string tag.
func (k Kind) Parameterless() bool {
	switch k {
	case AccountQuery, CashQuery, Holdings, VolumeLeaders, UnfilledOrders:
		return true
	}
	return false
}
