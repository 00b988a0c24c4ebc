package command

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"

	"autotrader/internal/indicator"
)

func TestAllKinds_HaveDistinctTags(t *testing.T) {
	seen := map[string]Kind{}
	for _, k := range AllKinds() {
		tag := k.String()
		if strings.HasPrefix(tag, "kind(") {
			t.Errorf("kind %d has no tag", int(k))
		}
		if prev, dup := seen[tag]; dup {
			t.Errorf("tag %q shared by %d and %d", tag, prev, k)
		}
		seen[tag] = k
	}
	if len(AllKinds()) != 17 {
		t.Errorf("expected 17 kinds, got %d", len(AllKinds()))
	}
}

func TestDecode_BareTag(t *testing.T) {
	cmd, err := Decode([]byte(`"get_account"`))
	if err != nil {
		t.Fatal(err)
	}
	if cmd.Kind != AccountQuery {
		t.Errorf("expected AccountQuery, got %s", cmd.Kind)
	}
	if _, ok := cmd.Payload.(Empty); !ok {
		t.Errorf("expected Empty payload, got %T", cmd.Payload)
	}
}

func TestDecode_BareTagNeedsPayload(t *testing.T) {
	if _, err := Decode([]byte(`"get_rsi"`)); !errors.Is(err, ErrPayloadMismatch) {
		t.Errorf("expected payload mismatch for bare get_rsi, got %v", err)
	}
}

func TestDecode_BuyAndSell(t *testing.T) {
	for _, side := range []string{"buy", "sell"} {
		raw := fmt.Sprintf(`{"type":%q,"code":"005930","price":"71,500","qty":3}`, side)
		cmd, err := Decode([]byte(raw))
		if err != nil {
			t.Fatalf("%s: %v", side, err)
		}
		o := cmd.Payload.(Order)
		if cmd.Kind != PlaceOrder || o.Side != side || o.Price != 71500 || o.Qty != 3 {
			t.Errorf("%s: unexpected decode %+v", side, o)
		}
		if cmd.Tag() != side {
			t.Errorf("expected tag %s, got %s", side, cmd.Tag())
		}
	}
}

func TestDecode_MovingAverageHistory(t *testing.T) {
	raw := `{"type":"get_moving_average","code":"005930","history_date":"2025-03-04,2025-03-05",
		"history_code":"005930,000660","history_price":"71000,150000","history_flag":"buy,sell"}`
	cmd, err := Decode([]byte(raw))
	if err != nil {
		t.Fatal(err)
	}
	q := cmd.Payload.(MovingAverageQuery)
	if q.HistoryCode != "005930,000660" || q.HistoryFlag != "buy,sell" {
		t.Errorf("unexpected payload %+v", q)
	}
}

func TestDecode_Unknown(t *testing.T) {
	for _, raw := range []string{`"drop_tables"`, `{"type":"drop_tables"}`, `{}`} {
		if _, err := Decode([]byte(raw)); !errors.Is(err, ErrUnknownKind) {
			t.Errorf("%s: expected ErrUnknownKind, got %v", raw, err)
		}
	}
}

func TestNew_RejectsWrongPayload(t *testing.T) {
	if _, err := New(GoldenCross, Code{Code: "005930"}); !errors.Is(err, ErrPayloadMismatch) {
		t.Errorf("expected mismatch, got %v", err)
	}
	if _, err := New(PlaceOrder, Order{Code: "005930", Qty: 1}); !errors.Is(err, ErrPayloadMismatch) {
		t.Errorf("expected order without side to be rejected, got %v", err)
	}
	if _, err := New(Kind(99), nil); !errors.Is(err, ErrUnknownKind) {
		t.Errorf("expected unknown kind, got %v", err)
	}
}

func TestCommand_MarshalWireForms(t *testing.T) {
	b, _ := json.Marshal(MustNew(Holdings, nil))
	if string(b) != `"get_holdings"` {
		t.Errorf("expected bare tag, got %s", b)
	}

	b, _ = json.Marshal(MustNew(CancelOrder, Cancel{OrderNo: "0000012", Code: "005930", Qty: 2, OrderType: "buy"}))
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		t.Fatal(err)
	}
	if m["type"] != "cancel_order" || m["order_no"] != "0000012" {
		t.Errorf("unexpected wire form %s", b)
	}

	back, err := Decode(b)
	if err != nil || back.Payload.(Cancel).Qty != 2 {
		t.Errorf("decode of encoded cancel failed: %+v %v", back, err)
	}
}

func TestFlexInt(t *testing.T) {
	cases := map[string]int64{`12`: 12, `"0012"`: 12, `"1,200"`: 1200, `null`: 0, `3.0`: 3, `"abc"`: 0}
	for in, want := range cases {
		var n FlexInt
		if err := json.Unmarshal([]byte(in), &n); err != nil {
			t.Errorf("%s: %v", in, err)
			continue
		}
		if n.Int64() != want {
			t.Errorf("%s: got %d, want %d", in, n, want)
		}
	}
	var n FlexInt
	if err := json.Unmarshal([]byte(`true`), &n); err == nil {
		t.Error("expected error for bool")
	}
}

func TestResult_JSON(t *testing.T) {
	b, _ := json.Marshal(Fail(errors.New("broker: not connected")))
	if string(b) != `{"error":"broker: not connected"}` {
		t.Errorf("unexpected error form %s", b)
	}
	b, _ = json.Marshal(Timeout)
	if string(b) != `{"error":"timeout"}` {
		t.Errorf("unexpected timeout form %s", b)
	}
	b, _ = json.Marshal(OK(map[string]int{"qty": 3}))
	if string(b) != `{"qty":3}` {
		t.Errorf("unexpected value form %s", b)
	}
	b, _ = json.Marshal(OK([]int{1, 2}))
	if string(b) != `[1,2]` {
		t.Errorf("unexpected sequence form %s", b)
	}
}

func TestFail_InsufficientDataIsStructured(t *testing.T) {
	err := fmt.Errorf("macd: %w", &indicator.InsufficientDataError{Indicator: "macd", Need: 35, Have: 20})
	r := Fail(err)
	if r.IsError() {
		t.Fatal("expected a value, not an error message")
	}
	v := r.Value.(InsufficientData)
	if v.Status != "insufficient_data" || v.Need != 35 || v.Have != 20 {
		t.Errorf("unexpected value %+v", v)
	}
}

func TestFail_WithCode(t *testing.T) {
	err := WithCode("005930", &indicator.InsufficientDataError{Indicator: "stochastic", Need: 20, Have: 4})
	if got := Fail(err).Value.(InsufficientData).Code; got != "005930" {
		t.Errorf("expected code on insufficient data, got %q", got)
	}
	plain := WithCode("005930", errors.New("boom"))
	if r := Fail(plain); r.Err != "boom" {
		t.Errorf("expected message unchanged, got %q", r.Err)
	}
	if WithCode("x", nil) != nil {
		t.Error("expected nil passthrough")
	}
}
