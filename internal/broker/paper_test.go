package broker

import (
	"context"
	"testing"
	"time"

	"autotrader/internal/model"
)

func fixedClock() time.Time {
	return time.Date(2025, 3, 14, 10, 0, 0, 0, model.KST)
}

func TestPaper_BarsDeterministic(t *testing.T) {
	p := NewPaperControl(0, WithClock(fixedClock))
	a := p.barsLocked("005930", "")
	b := p.barsLocked("005930", "")
	if len(a) != 200 {
		t.Fatalf("expected 200 bars, got %d", len(a))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("bar %d differs: %+v vs %+v", i, a[i], b[i])
		}
	}
	if other := p.barsLocked("000660", ""); other[0] == a[0] {
		t.Error("expected different codes to produce different walks")
	}
}

func TestPaper_TradingDaysSkipWeekends(t *testing.T) {
	// 2025-03-17 is a Monday.
	days := tradingDays(time.Date(2025, 3, 17, 0, 0, 0, 0, model.KST), 3)
	want := []string{"20250313", "20250314", "20250317"}
	for i := range want {
		if days[i] != want[i] {
			t.Errorf("day %d: got %s, want %s", i, days[i], want[i])
		}
	}
}

func TestPaper_SignedPrice(t *testing.T) {
	if got := signedPrice(71500, 71000); got != "+71500" {
		t.Errorf("got %s", got)
	}
	if got := signedPrice(70500, 71000); got != "-70500" {
		t.Errorf("got %s", got)
	}
	if model.ParseAbs(signedPrice(70500, 71000)) != 70500 {
		t.Error("expected ParseAbs to drop the down sign")
	}
}

func TestPaper_MarketBuyThenSell(t *testing.T) {
	p := NewPaperControl(10_000_000, WithClock(fixedClock), WithSlippage(0))
	_ = p.Connect(context.Background())
	last := p.lastCloseLocked("005930")

	code, err := p.SendOrder(model.OrderRequest{Kind: model.OrderNewBuy, Code: "005930", Qty: 10, PriceType: model.PriceMarket})
	if err != nil || code != 0 {
		t.Fatalf("buy rejected: code=%d err=%v", code, err)
	}
	if got := p.Cash(); got != 10_000_000-last*10 {
		t.Errorf("expected cash %d, got %d", 10_000_000-last*10, got)
	}
	if h := p.holdings["005930"]; h == nil || h.Quantity != 10 || h.PurchasePrice != last {
		t.Fatalf("unexpected holding %+v", h)
	}

	if code, _ := p.SendOrder(model.OrderRequest{Kind: model.OrderNewSell, Code: "005930", Qty: 11, PriceType: model.PriceMarket}); code == 0 {
		t.Error("expected oversell to be rejected")
	}
	if code, _ := p.SendOrder(model.OrderRequest{Kind: model.OrderNewSell, Code: "005930", Qty: 10, PriceType: model.PriceMarket}); code != 0 {
		t.Errorf("sell rejected: %d", code)
	}
	if _, ok := p.holdings["005930"]; ok {
		t.Error("expected holding to be removed after full sell")
	}
	if p.Cash() != 10_000_000 {
		t.Errorf("expected cash restored, got %d", p.Cash())
	}
}

func TestPaper_SlippageBuyHigher(t *testing.T) {
	p := NewPaperControl(100_000_000, WithClock(fixedClock), WithSlippage(100))
	_ = p.Connect(context.Background())
	last := p.lastCloseLocked("005930")
	p.SendOrder(model.OrderRequest{Kind: model.OrderNewBuy, Code: "005930", Qty: 1, PriceType: model.PriceMarket})
	if got := p.holdings["005930"].PurchasePrice; got != last+last/100 {
		t.Errorf("expected %d with 1%% slippage, got %d", last+last/100, got)
	}
}

func TestPaper_LimitOrderRestsUntilCancelled(t *testing.T) {
	p := NewPaperControl(1_000_000, WithClock(fixedClock))
	_ = p.Connect(context.Background())

	code, _ := p.SendOrder(model.OrderRequest{Kind: model.OrderNewBuy, Code: "035720", Qty: 5, Price: 40000, PriceType: model.PriceLimit})
	if code != 0 {
		t.Fatalf("limit order rejected: %d", code)
	}
	open := p.OpenOrders()
	if len(open) != 1 || open[0].Unfilled != 5 || open[0].OrderType != "+매수" || open[0].Time != "100000" {
		t.Fatalf("unexpected book %+v", open)
	}

	if code, _ := p.SendOrder(model.OrderRequest{Kind: model.OrderCancelBuy, Code: "035720", Qty: 2, OriginalOrderNo: open[0].OrderNo}); code != 0 {
		t.Fatalf("partial cancel rejected: %d", code)
	}
	if got := p.OpenOrders()[0].Unfilled; got != 3 {
		t.Errorf("expected 3 unfilled, got %d", got)
	}
	p.SendOrder(model.OrderRequest{Kind: model.OrderCancelBuy, Code: "035720", OriginalOrderNo: open[0].OrderNo})
	if n := len(p.OpenOrders()); n != 0 {
		t.Errorf("expected empty book, got %d", n)
	}
	if code, _ := p.SendOrder(model.OrderRequest{Kind: model.OrderCancelBuy, OriginalOrderNo: "9999999"}); code == 0 {
		t.Error("expected unknown order cancel to be rejected")
	}
}

func TestPaper_LimitBuyOverCashRejected(t *testing.T) {
	p := NewPaperControl(100_000)
	_ = p.Connect(context.Background())
	if code, _ := p.SendOrder(model.OrderRequest{Kind: model.OrderNewBuy, Code: "005930", Qty: 10, Price: 70000}); code == 0 {
		t.Error("expected over-cash limit order to be rejected")
	}
}

func TestPaper_BalanceRows(t *testing.T) {
	p := NewPaperControl(0, WithClock(fixedClock), WithHolding(model.Holding{
		Code: "005930", Name: "삼성전자", Quantity: 3, PurchasePrice: 50000,
	}))
	res := p.balanceLocked()
	if len(res.rows) != 1 || res.rows[0]["종목번호"] != "A005930" {
		t.Fatalf("unexpected rows %+v", res.rows)
	}
	if model.ParseInt(res.single["총매입금액"]) != 150000 {
		t.Errorf("unexpected total investment %q", res.single["총매입금액"])
	}
}
