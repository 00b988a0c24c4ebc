// Package broker adapts the broker's callback-driven TR protocol into calls
// that look synchronous to command handlers. A Session owns the single
// in-flight request slot; the Control it drives is either the paper
// simulator or the remote OCX agent client.
package broker

import (
	"context"
	"errors"

	"autotrader/internal/model"
)

var (
	// ErrNotConnected is returned when a broker-bound call is made before login.
	ErrNotConnected = errors.New("broker: not connected")
	// ErrRequestInFlight is returned when a second request is issued while one
	// is still awaiting its callback.
	ErrRequestInFlight = errors.New("broker: request already in flight")
	// ErrOrderRejected wraps a non-zero SendOrder return code.
	ErrOrderRejected = errors.New("broker: order rejected")
)

// TrDataEvent is the payload of the data-arrived callback.
type TrDataEvent struct {
	ScreenNo   string `json:"screen_no"`
	RqName     string `json:"rq_name"`
	TrCode     string `json:"tr_code"`
	RecordName string `json:"record_name"`
	PrevNext   string `json:"prev_next"`
}

// Control is the broker terminal contract. Calls other than Connect return
// immediately; TR results arrive later through the OnReceiveTrData handler,
// possibly on another goroutine, and are read back with GetRepeatCount and
// GetCommData while the handler runs.
type Control interface {
	// Connect logs in and blocks until the login event arrives.
	Connect(ctx context.Context) error
	Connected() bool

	SetInputValue(id, value string)
	CommRqData(rqName, trCode string, prevNext int, screenNo string) error
	GetRepeatCount(trCode, rqName string) int
	GetCommData(trCode, rqName string, index int, field string) string

	// SendOrder returns the broker's immediate return code (0 = accepted).
	SendOrder(req model.OrderRequest) (int, error)
	MasterCodeName(code string) string

	OnReceiveTrData(handler func(TrDataEvent))
}
