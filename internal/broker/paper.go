package broker

import (
	"context"
	"fmt"
	"hash/fnv"
	"log"
	"math/rand"
	"sort"
	"strconv"
	"sync"
	"time"

	"autotrader/internal/model"
)

// PaperControl is the SIMULATION-mode Control. It keeps an in-memory
// account, a book of open limit orders and deterministic daily bars per
// code, and answers every TR asynchronously the way the broker terminal does.
type PaperControl struct {
	mu        sync.Mutex
	connected bool
	handler   func(TrDataEvent)
	inputs    map[string]string
	results   map[string]paperResult // keyed by TR code

	cash     int64
	holdings map[string]*model.Holding
	names    map[string]string
	orders   []model.OpenOrder
	orderSeq int64

	// Simulation parameters
	slippageBps int64         // basis points of slippage on market fills
	latency     time.Duration // delay before the data callback fires
	barCount    int
	muted       map[string]bool
	now         func() time.Time
}

type paperResult struct {
	single map[string]string
	rows   []map[string]string
}

// PaperOption configures a PaperControl.
type PaperOption func(*PaperControl)

// WithLatency sets the delay between CommRqData and its callback.
func WithLatency(d time.Duration) PaperOption {
	return func(p *PaperControl) { p.latency = d }
}

// WithSlippage sets simulated slippage in basis points.
func WithSlippage(bps int64) PaperOption {
	return func(p *PaperControl) { p.slippageBps = bps }
}

// WithClock overrides the wall clock used for bar dates and order times.
func WithClock(now func() time.Time) PaperOption {
	return func(p *PaperControl) { p.now = now }
}

// WithBarCount sets how many daily bars opt10081 returns.
func WithBarCount(n int) PaperOption {
	return func(p *PaperControl) { p.barCount = n }
}

// WithHolding seeds a position.
func WithHolding(h model.Holding) PaperOption {
	return func(p *PaperControl) {
		cp := h
		p.holdings[h.Code] = &cp
		if h.Name != "" {
			p.names[h.Code] = h.Name
		}
	}
}

var paperNames = map[string]string{
	"005930": "삼성전자",
	"000660": "SK하이닉스",
	"035420": "NAVER",
	"035720": "카카오",
	"005380": "현대차",
	"051910": "LG화학",
	"068270": "셀트리온",
	"105560": "KB금융",
}

// NewPaperControl creates a simulator with the given starting cash.
func NewPaperControl(cash int64, opts ...PaperOption) *PaperControl {
	p := &PaperControl{
		inputs:      make(map[string]string),
		results:     make(map[string]paperResult),
		cash:        cash,
		holdings:    make(map[string]*model.Holding),
		names:       make(map[string]string, len(paperNames)),
		slippageBps: 5,
		latency:     20 * time.Millisecond,
		barCount:    200,
		muted:       make(map[string]bool),
		now:         time.Now,
	}
	for k, v := range paperNames {
		p.names[k] = v
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Mute stops callbacks for trCode so the request stays parked.
func (p *PaperControl) Mute(trCode string) {
	p.mu.Lock()
	p.muted[trCode] = true
	p.mu.Unlock()
}

func (p *PaperControl) Connect(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	p.connected = true
	p.mu.Unlock()
	log.Printf("[paper] connected (cash=%s)", model.FormatKRW(p.Cash()))
	return nil
}

func (p *PaperControl) Connected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connected
}

// Cash returns the simulated deposit.
func (p *PaperControl) Cash() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cash
}

func (p *PaperControl) OnReceiveTrData(handler func(TrDataEvent)) {
	p.mu.Lock()
	p.handler = handler
	p.mu.Unlock()
}

func (p *PaperControl) SetInputValue(id, value string) {
	p.mu.Lock()
	p.inputs[id] = value
	p.mu.Unlock()
}

func (p *PaperControl) MasterCodeName(code string) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.names[code]
}

func (p *PaperControl) CommRqData(rqName, trCode string, prevNext int, screenNo string) error {
	p.mu.Lock()
	if !p.connected {
		p.mu.Unlock()
		return ErrNotConnected
	}
	inputs := p.inputs
	p.inputs = make(map[string]string)

	var res paperResult
	switch trCode {
	case TRBalance.Code:
		res = p.balanceLocked()
	case TRCash.Code:
		res = paperResult{single: map[string]string{
			"주문가능금액": pad(p.cash), "예수금": pad(p.cash),
		}}
	case TRVolumeLeaders.Code:
		res = p.volumeLeadersLocked()
	case TRUnfilled.Code:
		res = p.unfilledLocked()
	case TRDailyBars.Code:
		res = paperResult{rows: p.dailyBarsLocked(inputs["종목코드"], inputs["기준일자"])}
	case TRStockInfo.Code:
		res = p.stockInfoLocked(inputs["종목코드"])
	default:
		p.mu.Unlock()
		return fmt.Errorf("paper: unsupported tr %s", trCode)
	}
	p.results[trCode] = res
	handler := p.handler
	muted := p.muted[trCode]
	latency := p.latency
	p.mu.Unlock()

	if handler == nil || muted {
		return nil
	}
	ev := TrDataEvent{ScreenNo: screenNo, RqName: rqName, TrCode: trCode, PrevNext: strconv.Itoa(prevNext)}
	time.AfterFunc(latency, func() { handler(ev) })
	return nil
}

func (p *PaperControl) GetRepeatCount(trCode, rqName string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.results[trCode].rows)
}

func (p *PaperControl) GetCommData(trCode, rqName string, index int, field string) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	res := p.results[trCode]
	if v, ok := res.single[field]; ok && index == 0 {
		return v
	}
	if index >= 0 && index < len(res.rows) {
		return res.rows[index][field]
	}
	return ""
}

// SendOrder simulates acceptance. Market orders fill immediately at the
// latest simulated close with slippage; limit orders rest in the open-order
// book until cancelled. The return code follows the broker: 0 accepted,
// negative rejected.
func (p *PaperControl) SendOrder(req model.OrderRequest) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.connected {
		return -1, ErrNotConnected
	}
	if req.IsCancel() {
		return p.cancelLocked(req), nil
	}
	if req.Qty <= 0 || req.Code == "" {
		return -308, nil
	}

	p.orderSeq++
	orderNo := fmt.Sprintf("%07d", p.orderSeq)

	if req.PriceType == model.PriceMarket || req.Price == 0 {
		price := p.lastCloseLocked(req.Code)
		slippage := price * p.slippageBps / 10000
		if req.Kind == model.OrderNewBuy {
			price += slippage // buy higher
		} else {
			price -= slippage // sell lower
		}
		if code := p.fillLocked(req, price); code != 0 {
			return code, nil
		}
		log.Printf("[paper] %s %s qty=%d filled at %d (slip=%d) order=%s",
			req.Side(), req.Code, req.Qty, price, slippage, orderNo)
		return 0, nil
	}

	if req.Kind == model.OrderNewBuy && req.Price*req.Qty > p.cash {
		return -308, nil
	}
	orderType := "+매수"
	if req.Kind == model.OrderNewSell {
		orderType = "-매도"
	}
	p.orders = append(p.orders, model.OpenOrder{
		OrderNo:   orderNo,
		Code:      req.Code,
		Name:      p.names[req.Code],
		OrderType: orderType,
		Qty:       req.Qty,
		Price:     req.Price,
		Unfilled:  req.Qty,
		Time:      p.now().In(model.KST).Format("150405"),
	})
	log.Printf("[paper] %s %s qty=%d limit=%d resting order=%s", req.Side(), req.Code, req.Qty, req.Price, orderNo)
	return 0, nil
}

func (p *PaperControl) fillLocked(req model.OrderRequest, price int64) int {
	amount := price * req.Qty
	h := p.holdings[req.Code]
	switch req.Kind {
	case model.OrderNewBuy:
		if amount > p.cash {
			return -308
		}
		p.cash -= amount
		if h == nil {
			h = &model.Holding{Code: req.Code, Name: p.names[req.Code]}
			p.holdings[req.Code] = h
		}
		total := h.PurchasePrice*h.Quantity + amount
		h.Quantity += req.Qty
		h.PurchasePrice = total / h.Quantity
		h.CurrentPrice = price
	case model.OrderNewSell:
		if h == nil || h.Quantity < req.Qty {
			return -308
		}
		p.cash += amount
		h.Quantity -= req.Qty
		h.CurrentPrice = price
		if h.Quantity == 0 {
			delete(p.holdings, req.Code)
		}
	}
	return 0
}

func (p *PaperControl) cancelLocked(req model.OrderRequest) int {
	for i, o := range p.orders {
		if o.OrderNo != req.OriginalOrderNo {
			continue
		}
		if req.Qty <= 0 || req.Qty >= o.Unfilled {
			p.orders = append(p.orders[:i], p.orders[i+1:]...)
		} else {
			p.orders[i].Unfilled -= req.Qty
		}
		log.Printf("[paper] cancelled order=%s qty=%d", req.OriginalOrderNo, req.Qty)
		return 0
	}
	return -302
}

// OpenOrders returns a copy of the resting order book.
func (p *PaperControl) OpenOrders() []model.OpenOrder {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]model.OpenOrder, len(p.orders))
	copy(out, p.orders)
	return out
}

func (p *PaperControl) balanceLocked() paperResult {
	codes := make([]string, 0, len(p.holdings))
	for c := range p.holdings {
		codes = append(codes, c)
	}
	sort.Strings(codes)

	var invest, value int64
	rows := make([]map[string]string, 0, len(codes))
	for _, c := range codes {
		h := *p.holdings[c]
		h.CurrentPrice = p.lastCloseLocked(c)
		invest += h.PurchasePrice * h.Quantity
		value += h.CurrentPrice * h.Quantity
		rows = append(rows, map[string]string{
			"종목번호":   "A" + c,
			"종목명":    h.Name,
			"보유수량":   pad(h.Quantity),
			"매입가":    pad(h.PurchasePrice),
			"현재가":    pad(h.CurrentPrice),
			"평가손익":   signed(h.ProfitLoss().IntPart()),
			"수익률(%)": h.ProfitRate().StringFixed(2),
		})
	}
	summary := model.AccountSummary{TotalInvestment: invest, TotalValuation: value}
	return paperResult{
		single: map[string]string{
			"총매입금액":   pad(invest),
			"총평가금액":   pad(value),
			"총평가손익금액": signed(value - invest),
			"총수익률(%)":  summary.ProfitRate().StringFixed(2),
			"추정예탁자산":  pad(p.cash + value),
		},
		rows: rows,
	}
}

func (p *PaperControl) volumeLeadersLocked() paperResult {
	type leader struct {
		code       string
		last, prev model.PriceBar
	}
	leaders := make([]leader, 0, len(p.names))
	for code := range p.names {
		bars := p.barsLocked(code, "")
		leaders = append(leaders, leader{code, bars[0], bars[1]})
	}
	sort.Slice(leaders, func(i, j int) bool {
		if leaders[i].last.Volume == leaders[j].last.Volume {
			return leaders[i].code < leaders[j].code
		}
		return leaders[i].last.Volume > leaders[j].last.Volume
	})
	rows := make([]map[string]string, 0, len(leaders))
	for _, l := range leaders {
		rate := float64(l.last.Close-l.prev.Close) / float64(l.prev.Close) * 100
		rows = append(rows, map[string]string{
			"종목코드": l.code,
			"종목명":  p.names[l.code],
			"현재가":  signedPrice(l.last.Close, l.prev.Close),
			"등락률":  fmt.Sprintf("%+.2f", rate),
			"거래량":  pad(l.last.Volume),
		})
	}
	return paperResult{rows: rows}
}

func (p *PaperControl) unfilledLocked() paperResult {
	rows := make([]map[string]string, 0, len(p.orders))
	for _, o := range p.orders {
		rows = append(rows, map[string]string{
			"주문번호":  o.OrderNo,
			"종목코드":  o.Code,
			"종목명":   o.Name,
			"주문구분":  o.OrderType,
			"주문수량":  pad(o.Qty),
			"주문가격":  pad(o.Price),
			"미체결수량": pad(o.Unfilled),
			"시간":    o.Time,
		})
	}
	return paperResult{rows: rows}
}

func (p *PaperControl) stockInfoLocked(code string) paperResult {
	name, ok := p.names[code]
	if !ok {
		return paperResult{single: map[string]string{}}
	}
	bars := p.barsLocked(code, "")
	last, prev := bars[0], bars[1]
	return paperResult{single: map[string]string{
		"종목명":  name,
		"현재가":  signedPrice(last.Close, prev.Close),
		"등락율":  fmt.Sprintf("%+.2f", float64(last.Close-prev.Close)/float64(prev.Close)*100),
		"거래량":  pad(last.Volume),
		"시가총액": strconv.FormatInt(last.Close*int64(seed(code)%500+100)/100, 10), // 억원
		"PER":  fmt.Sprintf("%.2f", 5+float64(seed(code)%2500)/100),
	}}
}

func (p *PaperControl) dailyBarsLocked(code, base string) []map[string]string {
	if code == "" {
		return nil
	}
	bars := p.barsLocked(code, base)
	rows := make([]map[string]string, 0, len(bars))
	for i, b := range bars {
		prev := b.Close
		if i+1 < len(bars) {
			prev = bars[i+1].Close
		}
		rows = append(rows, map[string]string{
			model.FieldDate:   b.Date,
			model.FieldClose:  signedPrice(b.Close, prev),
			model.FieldHigh:   signedPrice(b.High, prev),
			model.FieldLow:    signedPrice(b.Low, prev),
			model.FieldVolume: pad(b.Volume),
		})
	}
	return rows
}

func (p *PaperControl) lastCloseLocked(code string) int64 {
	return p.barsLocked(code, "")[0].Close
}

// barsLocked generates barCount weekday bars ending at base (or today),
// newest-first. The walk is seeded from the code so it is stable across
// calls with the same base date.
func (p *PaperControl) barsLocked(code, base string) []model.PriceBar {
	end := p.now().In(model.KST)
	if t, err := time.ParseInLocation(model.DateLayout, base, model.KST); err == nil {
		end = t
	}
	s := seed(code)
	rng := rand.New(rand.NewSource(int64(s)))
	price := 10000 + int64(s%90)*1000

	n := p.barCount
	if n < 2 {
		n = 2
	}
	dates := tradingDays(end, n)
	asc := make([]model.PriceBar, n)
	for i := 0; i < n; i++ {
		drift := (rng.Float64() - 0.48) * 0.04
		price = tick(float64(price) * (1 + drift))
		spread := float64(price) * rng.Float64() * 0.02
		vol := int64(100000 + rng.Intn(900000))
		if rng.Intn(20) == 0 {
			vol *= 3
		}
		asc[i] = model.PriceBar{
			Date:   dates[i],
			Close:  price,
			High:   tick(float64(price) + spread),
			Low:    tick(float64(price) - spread),
			Volume: vol,
		}
	}
	return model.Reverse(asc)
}

// tradingDays returns n weekday dates ending at end, oldest first.
func tradingDays(end time.Time, n int) []string {
	out := make([]string, n)
	d := end
	for i := n - 1; i >= 0; {
		if wd := d.Weekday(); wd != time.Saturday && wd != time.Sunday {
			out[i] = d.Format(model.DateLayout)
			i--
		}
		d = d.AddDate(0, 0, -1)
	}
	return out
}

func seed(code string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(code))
	return h.Sum32()
}

// tick rounds to 10 won with a floor of 100.
func tick(v float64) int64 {
	n := int64(v/10) * 10
	if n < 100 {
		return 100
	}
	return n
}

func pad(n int64) string { return fmt.Sprintf("%015d", n) }

func signed(n int64) string {
	if n < 0 {
		return fmt.Sprintf("-%014d", -n)
	}
	return pad(n)
}

// signedPrice formats a price the way the terminal does, with a sign that
// reflects the change against prev.
func signedPrice(v, prev int64) string {
	switch {
	case v > prev:
		return "+" + strconv.FormatInt(v, 10)
	case v < prev:
		return "-" + strconv.FormatInt(v, 10)
	default:
		return strconv.FormatInt(v, 10)
	}
}

var _ Control = (*PaperControl)(nil)
