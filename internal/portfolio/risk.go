// Package portfolio holds the pre-trade risk limits applied to new orders.
// Holdings and cash are owned by the broker and read through TRs, so nothing
// here tracks positions.
package portfolio

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"time"
)

// ErrRiskLimit is wrapped by every risk rejection.
var ErrRiskLimit = errors.New("risk limit")

var kst = time.FixedZone("KST", 9*3600)

// RiskLimits defines configurable risk management thresholds. Zero disables
// a limit.
type RiskLimits struct {
	MaxOrderQty    int64 `json:"max_order_qty"`    // shares per order
	MaxOrderValue  int64 `json:"max_order_value"`  // KRW per limit order (qty * price)
	MaxDailyOrders int   `json:"max_daily_orders"` // accepted new orders per KST day
}

// Enabled reports whether any limit is set.
func (l RiskLimits) Enabled() bool {
	return l.MaxOrderQty > 0 || l.MaxOrderValue > 0 || l.MaxDailyOrders > 0
}

// RiskStatus is the current limit usage.
type RiskStatus struct {
	Day      string     `json:"day"`
	Orders   int        `json:"orders_today"`
	Rejected int        `json:"rejected_today"`
	Limits   RiskLimits `json:"limits"`
}

// RiskManager validates new orders against the limits and counts accepted
// orders per trading day.
type RiskManager struct {
	mu     sync.Mutex
	limits RiskLimits
	now    func() time.Time

	day      string
	orders   int
	rejected int
}

// NewRiskManager creates a RiskManager with the given limits.
func NewRiskManager(limits RiskLimits) *RiskManager {
	return &RiskManager{limits: limits, now: time.Now}
}

// SetClock replaces the wall clock (tests).
func (rm *RiskManager) SetClock(now func() time.Time) {
	rm.mu.Lock()
	rm.now = now
	rm.mu.Unlock()
}

// Check returns nil when an order of qty at price is allowed. Price 0
// (market) skips the value limit since the fill price is unknown.
func (rm *RiskManager) Check(qty, price int64) error {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	rm.rollLocked()

	reason := ""
	switch {
	case rm.limits.MaxOrderQty > 0 && qty > rm.limits.MaxOrderQty:
		reason = fmt.Sprintf("qty %d exceeds %d per order", qty, rm.limits.MaxOrderQty)
	case rm.limits.MaxOrderValue > 0 && price > 0 && qty*price > rm.limits.MaxOrderValue:
		reason = fmt.Sprintf("order value %d exceeds %d", qty*price, rm.limits.MaxOrderValue)
	case rm.limits.MaxDailyOrders > 0 && rm.orders >= rm.limits.MaxDailyOrders:
		reason = fmt.Sprintf("%d orders already placed today", rm.orders)
	}
	if reason == "" {
		return nil
	}
	rm.rejected++
	log.Printf("[risk] rejected: %s", reason)
	return fmt.Errorf("%w: %s", ErrRiskLimit, reason)
}

// RecordOrder counts one order the broker accepted.
func (rm *RiskManager) RecordOrder() {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	rm.rollLocked()
	rm.orders++
}

// GetStatus returns current risk status.
func (rm *RiskManager) GetStatus() RiskStatus {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	rm.rollLocked()
	return RiskStatus{Day: rm.day, Orders: rm.orders, Rejected: rm.rejected, Limits: rm.limits}
}

// rollLocked resets the daily counters when the KST date changes.
func (rm *RiskManager) rollLocked() {
	day := rm.now().In(kst).Format("20060102")
	if day != rm.day {
		rm.day = day
		rm.orders = 0
		rm.rejected = 0
	}
}
