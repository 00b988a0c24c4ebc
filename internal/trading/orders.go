package trading

import (
	"context"
	"fmt"
	"strings"

	"autotrader/internal/command"
	"autotrader/internal/logger"
	"autotrader/internal/model"
	"autotrader/internal/portfolio"

	"github.com/google/uuid"
)

// Journal statuses.
const (
	StatusSubmitted = "SUBMITTED"
	StatusRejected  = "REJECTED"
)

// OrderAck reports whether the broker accepted a submission. It says
// nothing about fills.
type OrderAck struct {
	Status    string `json:"status"` // "submitted"
	Side      string `json:"side"`
	Code      string `json:"code"`
	Qty       int64  `json:"qty"`
	Price     int64  `json:"price"`
	PriceType string `json:"price_type"`
	OrderNo   string `json:"order_no,omitempty"`
	JournalID int64  `json:"journal_id"`
	Ref       string `json:"ref"`
}

func (s *Service) placeOrder(ctx context.Context, cmd command.Command) (any, error) {
	o := cmd.Payload.(command.Order)
	if o.Code == "" {
		return nil, fmt.Errorf("code is required")
	}
	if o.Qty <= 0 {
		return nil, fmt.Errorf("qty must be positive, got %d", o.Qty)
	}
	if o.Price < 0 {
		return nil, fmt.Errorf("price must not be negative, got %d", o.Price)
	}
	req := model.OrderRequest{
		RqName:    o.Side + "_order",
		Account:   s.cfg.Account,
		Kind:      model.OrderNewBuy,
		Code:      o.Code,
		Qty:       o.Qty.Int64(),
		Price:     o.Price.Int64(),
		PriceType: model.PriceLimit,
	}
	if o.Side == command.SideSell {
		req.Kind = model.OrderNewSell
	}
	if req.Price == 0 {
		req.PriceType = model.PriceMarket
	}
	return s.submit(ctx, req)
}

func (s *Service) cancelOrder(ctx context.Context, cmd command.Command) (any, error) {
	c := cmd.Payload.(command.Cancel)
	if c.OrderNo == "" {
		return nil, fmt.Errorf("order_no is required")
	}
	kind, err := cancelKind(c.OrderType)
	if err != nil {
		return nil, err
	}
	return s.submit(ctx, model.OrderRequest{
		RqName:          "cancel_order",
		Account:         s.cfg.Account,
		Kind:            kind,
		Code:            c.Code,
		Qty:             c.Qty.Int64(), // 0 cancels the whole remainder
		PriceType:       model.PriceLimit,
		OriginalOrderNo: c.OrderNo,
	})
}

// cancelKind accepts "buy"/"sell" as well as the broker's "+매수"/"-매도".
func cancelKind(orderType string) (int, error) {
	t := strings.ToLower(strings.TrimSpace(orderType))
	switch {
	case strings.Contains(t, "buy"), strings.Contains(t, "매수"):
		return model.OrderCancelBuy, nil
	case strings.Contains(t, "sell"), strings.Contains(t, "매도"):
		return model.OrderCancelSell, nil
	}
	return 0, fmt.Errorf("unknown order_type %q", orderType)
}

// submit checks risk limits, sends req and journals the outcome either way.
func (s *Service) submit(ctx context.Context, req model.OrderRequest) (any, error) {
	var sendErr error
	if s.risk != nil && !req.IsCancel() {
		sendErr = s.risk.Check(req.Qty, req.Price)
	}
	if sendErr == nil {
		sendErr = s.session.SendOrder(ctx, req)
	}

	entry := model.JournalEntry{
		Ref:       uuid.NewString(),
		Side:      req.Side(),
		Code:      req.Code,
		Qty:       req.Qty,
		Price:     req.Price,
		OrderNo:   req.OriginalOrderNo,
		Status:    StatusSubmitted,
		Mode:      s.cfg.Mode,
		CreatedAt: s.now(),
	}
	if req.IsCancel() {
		entry.Side = "cancel_" + entry.Side
	}
	if sendErr != nil {
		entry.Status = StatusRejected
		entry.Message = sendErr.Error()
	}
	id, err := s.store.RecordOrder(ctx, entry)
	if err != nil {
		s.log.Error("order journal write failed", append([]any{"code", req.Code, "error", err}, logger.LogWithTrace(ctx)...)...)
	}
	if sendErr != nil {
		return nil, sendErr
	}
	if s.risk != nil && !req.IsCancel() {
		s.risk.RecordOrder()
	}
	return OrderAck{
		Status:    "submitted",
		Side:      entry.Side,
		Code:      req.Code,
		Qty:       req.Qty,
		Price:     req.Price,
		PriceType: req.PriceType,
		OrderNo:   req.OriginalOrderNo,
		JournalID: id,
		Ref:       entry.Ref,
	}, nil
}

// RiskStatus reports limit usage, or nil without a risk manager.
func (s *Service) RiskStatus() *portfolio.RiskStatus {
	if s.risk == nil {
		return nil
	}
	st := s.risk.GetStatus()
	return &st
}

// RecentOrders reads the journal for the HTTP layer. It does not touch the
// broker, so it bypasses the queue.
func (s *Service) RecentOrders(ctx context.Context, limit int) ([]model.JournalEntry, error) {
	return s.store.RecentOrders(ctx, limit)
}

