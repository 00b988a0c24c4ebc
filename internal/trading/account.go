package trading

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"autotrader/internal/broker"
	"autotrader/internal/command"
	"autotrader/internal/model"
)

// HoldingView is a holding with its derived valuation.
type HoldingView struct {
	model.Holding
	Valuation  decimal.Decimal `json:"valuation"`
	ProfitLoss decimal.Decimal `json:"profit_loss"`
	ProfitRate decimal.Decimal `json:"profit_rate"`
}

// AccountView is the opw00018 summary plus holdings.
type AccountView struct {
	TotalInvestment int64             `json:"total_investment"`
	TotalValuation  int64             `json:"total_valuation"`
	TotalProfitLoss int64             `json:"total_profit_loss"`
	ProfitRate      decimal.Decimal   `json:"profit_rate"`
	EstimatedAssets int64             `json:"estimated_assets"`
	Display         map[string]string `json:"display"`
	Holdings        []HoldingView     `json:"holdings"`
}

// CashView is the opw00001 answer.
type CashView struct {
	Orderable int64  `json:"available_cash"`
	Deposit   int64  `json:"deposit"`
	Display   string `json:"display"`
}

// Leader is one opt10030 row.
type Leader struct {
	Code       string  `json:"code"`
	Name       string  `json:"name"`
	Price      int64   `json:"price"`
	ChangeRate float64 `json:"change_rate"`
	Volume     int64   `json:"volume"`
}

// StockInfo is the opt10001 answer.
type StockInfo struct {
	Code       string  `json:"code"`
	Name       string  `json:"name"`
	Price      int64   `json:"price"`
	ChangeRate float64 `json:"change_rate"`
	Volume     int64   `json:"volume"`
	MarketCap  int64   `json:"market_cap"`
	PER        float64 `json:"per"`
}

func (s *Service) balance(ctx context.Context) (AccountView, error) {
	rs, err := s.session.Request(ctx, broker.TRBalance, broker.AccountInputs(s.cfg.Account, s.cfg.Password), "")
	if err != nil {
		return AccountView{}, fmt.Errorf("balance: %w", err)
	}
	summary := model.AccountSummary{
		TotalInvestment: model.ParseInt(rs.Single["총매입금액"]),
		TotalValuation:  model.ParseInt(rs.Single["총평가금액"]),
	}
	v := AccountView{
		TotalInvestment: summary.TotalInvestment,
		TotalValuation:  summary.TotalValuation,
		TotalProfitLoss: model.ParseInt(rs.Single["총평가손익금액"]),
		ProfitRate:      summary.ProfitRate(),
		EstimatedAssets: model.ParseInt(rs.Single["추정예탁자산"]),
		Holdings:        make([]HoldingView, 0, len(rs.Rows)),
	}
	v.Display = map[string]string{
		"total_investment":  model.FormatKRW(v.TotalInvestment),
		"total_valuation":   model.FormatKRW(v.TotalValuation),
		"total_profit_loss": model.FormatKRW(v.TotalProfitLoss),
		"estimated_assets":  model.FormatKRW(v.EstimatedAssets),
	}
	for _, row := range rs.Rows {
		h := model.Holding{
			// opw00018 prefixes the code with the market letter ("A005930").
			Code:          strings.TrimPrefix(row["종목번호"], "A"),
			Name:          row["종목명"],
			Quantity:      model.ParseInt(row["보유수량"]),
			PurchasePrice: model.ParseAbs(row["매입가"]),
			CurrentPrice:  model.ParseAbs(row["현재가"]),
		}
		if h.Code == "" || h.Quantity == 0 {
			continue
		}
		v.Holdings = append(v.Holdings, HoldingView{
			Holding:    h,
			Valuation:  h.Valuation(),
			ProfitLoss: h.ProfitLoss(),
			ProfitRate: h.ProfitRate(),
		})
	}
	return v, nil
}

func (s *Service) account(ctx context.Context, _ command.Command) (any, error) {
	return s.balance(ctx)
}

func (s *Service) holdings(ctx context.Context, _ command.Command) (any, error) {
	v, err := s.balance(ctx)
	if err != nil {
		return nil, err
	}
	return v.Holdings, nil
}

func (s *Service) cash(ctx context.Context, _ command.Command) (any, error) {
	rs, err := s.session.Request(ctx, broker.TRCash, broker.AccountInputs(s.cfg.Account, s.cfg.Password), "")
	if err != nil {
		return nil, fmt.Errorf("cash: %w", err)
	}
	v := CashView{
		Orderable: model.ParseInt(rs.Single["주문가능금액"]),
		Deposit:   model.ParseInt(rs.Single["예수금"]),
	}
	v.Display = model.FormatKRW(v.Orderable)
	return v, nil
}

func (s *Service) volumeLeaders(ctx context.Context, _ command.Command) (any, error) {
	rs, err := s.session.Request(ctx, broker.TRVolumeLeaders, []broker.Input{
		{ID: "시장구분", Value: "000"},
		{ID: "정렬구분", Value: "1"},
		{ID: "관리종목포함", Value: "0"},
		{ID: "신용구분", Value: "0"},
	}, "")
	if err != nil {
		return nil, fmt.Errorf("volume leaders: %w", err)
	}
	out := make([]Leader, 0, len(rs.Rows))
	for _, row := range rs.Rows {
		out = append(out, Leader{
			Code:       row["종목코드"],
			Name:       row["종목명"],
			Price:      model.ParseAbs(row["현재가"]),
			ChangeRate: model.ParseFloat(row["등락률"]),
			Volume:     model.ParseInt(row["거래량"]),
		})
	}
	return out, nil
}

func (s *Service) unfilledOrders(ctx context.Context, _ command.Command) (any, error) {
	rs, err := s.session.Request(ctx, broker.TRUnfilled, []broker.Input{
		{ID: "계좌번호", Value: s.cfg.Account},
		{ID: "전체종목구분", Value: "0"},
		{ID: "매매구분", Value: "0"},
		{ID: "체결구분", Value: "1"},
	}, "")
	if err != nil {
		return nil, fmt.Errorf("unfilled orders: %w", err)
	}
	out := make([]model.OpenOrder, 0, len(rs.Rows))
	for _, row := range rs.Rows {
		out = append(out, model.OpenOrder{
			OrderNo:   row["주문번호"],
			Code:      row["종목코드"],
			Name:      row["종목명"],
			OrderType: row["주문구분"],
			Qty:       model.ParseInt(row["주문수량"]),
			Price:     model.ParseAbs(row["주문가격"]),
			Unfilled:  model.ParseInt(row["미체결수량"]),
			Time:      row["시간"],
		})
	}
	return out, nil
}

func (s *Service) searchStock(ctx context.Context, cmd command.Command) (any, error) {
	code := cmd.Payload.(command.Code).Code
	if code == "" {
		return nil, fmt.Errorf("code is required")
	}
	rs, err := s.session.Request(ctx, broker.TRStockInfo, []broker.Input{{ID: "종목코드", Value: code}}, "")
	if err != nil {
		return nil, fmt.Errorf("search stock %s: %w", code, err)
	}
	name := rs.Single["종목명"]
	if name == "" {
		name = s.session.MasterCodeName(code)
	}
	if name == "" {
		return nil, fmt.Errorf("unknown code %s", code)
	}
	return StockInfo{
		Code:       code,
		Name:       name,
		Price:      model.ParseAbs(rs.Single["현재가"]),
		ChangeRate: model.ParseFloat(rs.Single["등락율"]),
		Volume:     model.ParseInt(rs.Single["거래량"]),
		MarketCap:  model.ParseInt(rs.Single["시가총액"]),
		PER:        model.ParseFloat(rs.Single["PER"]),
	}, nil
}
