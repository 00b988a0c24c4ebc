package model

import "github.com/shopspring/decimal"

// Holding is a position snapshot from the balance query. Not persisted.
type Holding struct {
	Code          string `json:"code"`
	Name          string `json:"name"`
	Quantity      int64  `json:"quantity"`
	PurchasePrice int64  `json:"purchase_price"`
	CurrentPrice  int64  `json:"current_price"`
}

// Cost is quantity times purchase price.
func (h Holding) Cost() decimal.Decimal {
	return decimal.NewFromInt(h.PurchasePrice).Mul(decimal.NewFromInt(h.Quantity))
}

// Valuation is quantity times current price.
func (h Holding) Valuation() decimal.Decimal {
	return decimal.NewFromInt(h.CurrentPrice).Mul(decimal.NewFromInt(h.Quantity))
}

// ProfitLoss is Valuation minus Cost.
func (h Holding) ProfitLoss() decimal.Decimal {
	return h.Valuation().Sub(h.Cost())
}

// ProfitRate is the P&L as a percentage of cost, rounded to 2 dp.
// Zero when nothing was paid.
func (h Holding) ProfitRate() decimal.Decimal {
	cost := h.Cost()
	if cost.IsZero() {
		return decimal.Zero
	}
	return h.ProfitLoss().Div(cost).Mul(decimal.NewFromInt(100)).Round(2)
}

// AccountSummary is the aggregate line of the balance query.
type AccountSummary struct {
	TotalInvestment int64 `json:"total_investment"`
	TotalValuation  int64 `json:"total_valuation"`
}

// ProfitRate is total P&L over total investment, in percent, 2 dp.
func (a AccountSummary) ProfitRate() decimal.Decimal {
	if a.TotalInvestment == 0 {
		return decimal.Zero
	}
	inv := decimal.NewFromInt(a.TotalInvestment)
	return decimal.NewFromInt(a.TotalValuation).Sub(inv).Div(inv).Mul(decimal.NewFromInt(100)).Round(2)
}
