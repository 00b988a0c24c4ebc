package model

import "time"

// Order kinds accepted by the broker's SendOrder.
const (
	OrderNewBuy     = 1
	OrderNewSell    = 2
	OrderCancelBuy  = 3
	OrderCancelSell = 4
)

// Price types ("호가구분").
const (
	PriceLimit  = "00"
	PriceMarket = "03"
)

// OrderRequest is the argument list of one SendOrder call.
type OrderRequest struct {
	RqName          string `json:"rq_name"`
	ScreenNo        string `json:"screen_no"`
	Account         string `json:"account"`
	Kind            int    `json:"kind"` // OrderNewBuy .. OrderCancelSell
	Code            string `json:"code"`
	Qty             int64  `json:"qty"`
	Price           int64  `json:"price"`
	PriceType       string `json:"price_type"`
	OriginalOrderNo string `json:"original_order_no,omitempty"`
}

// Side returns "buy" or "sell" for the order kind.
func (o OrderRequest) Side() string {
	if o.Kind == OrderNewSell || o.Kind == OrderCancelSell {
		return "sell"
	}
	return "buy"
}

// IsCancel reports whether the request cancels an existing order.
func (o OrderRequest) IsCancel() bool {
	return o.Kind == OrderCancelBuy || o.Kind == OrderCancelSell
}

// OpenOrder is an accepted but not fully filled order (opt10075 row).
type OpenOrder struct {
	OrderNo   string `json:"order_no"`
	Code      string `json:"code"`
	Name      string `json:"name"`
	OrderType string `json:"order_type"` // "+매수" / "-매도"
	Qty       int64  `json:"qty"`
	Price     int64  `json:"price"`
	Unfilled  int64  `json:"unfilled"`
	Time      string `json:"time"`
}

// JournalEntry is one order submission recorded in the order journal.
type JournalEntry struct {
	ID        int64     `json:"id"`
	Ref       string    `json:"ref,omitempty"` // client reference, unique per submission
	Side      string    `json:"side"`
	Code      string    `json:"code"`
	Qty       int64     `json:"qty"`
	Price     int64     `json:"price"`
	OrderNo   string    `json:"order_no,omitempty"`
	Status    string    `json:"status"` // SUBMITTED, REJECTED
	Message   string    `json:"message,omitempty"`
	Mode      string    `json:"mode"`
	CreatedAt time.Time `json:"created_at"`
}
