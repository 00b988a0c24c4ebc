package api

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"autotrader/internal/notification"

	"github.com/gorilla/websocket"
)

func dialSignals(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/signals" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) signalFrame {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var f signalFrame
	if err := json.Unmarshal(msg, &f); err != nil {
		t.Fatalf("decode %s: %v", msg, err)
	}
	return f
}

func waitClients(t *testing.T, hub *SignalHub, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for hub.ClientCount() != n {
		if time.Now().After(deadline) {
			t.Fatalf("expected %d clients, have %d", n, hub.ClientCount())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestSignalHub_Broadcast(t *testing.T) {
	hub := NewSignalHub(10)
	srv, _ := newTestServer(t, &fakeCaller{})
	srv.Signals = hub
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	a := dialSignals(t, ts, "")
	b := dialSignals(t, ts, "")
	waitClients(t, hub, 2)

	alert := notification.Alert{Level: notification.AlertInfo, Title: "Golden cross", Kind: "golden_cross", Code: "005930", Signal: "Y"}
	if err := hub.Send(context.Background(), alert); err != nil {
		t.Fatal(err)
	}
	for _, c := range []*websocket.Conn{a, b} {
		f := readFrame(t, c)
		if f.Seq != 1 || f.Alert.Code != "005930" || f.Alert.Signal != "Y" {
			t.Errorf("unexpected frame %+v", f)
		}
	}
}

func TestSignalHub_ReplaySinceLastSeq(t *testing.T) {
	hub := NewSignalHub(10)
	for _, code := range []string{"005930", "000660", "035720"} {
		hub.Send(context.Background(), notification.Alert{Kind: "volume_spike", Code: code, Signal: "Y"})
	}
	srv, _ := newTestServer(t, &fakeCaller{})
	srv.Signals = hub
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	conn := dialSignals(t, ts, "?last_seq=1")
	first, second := readFrame(t, conn), readFrame(t, conn)
	if first.Seq != 2 || first.Alert.Code != "000660" || second.Seq != 3 {
		t.Errorf("unexpected replay %+v %+v", first, second)
	}
}

func TestSignalHub_RemovesClosedClient(t *testing.T) {
	hub := NewSignalHub(10)
	srv, _ := newTestServer(t, &fakeCaller{})
	srv.Signals = hub
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	conn := dialSignals(t, ts, "")
	waitClients(t, hub, 1)
	conn.Close()
	waitClients(t, hub, 0)

	if err := hub.Send(context.Background(), notification.Alert{Title: "after close"}); err != nil {
		t.Errorf("send with no clients: %v", err)
	}
}

// ────────────────────────────────────────────────────────────
// Replay buffer
// ────────────────────────────────────────────────────────────

func TestReplayBuffer_Since(t *testing.T) {
	rb := NewReplayBuffer(100)
	for i := int64(1); i <= 10; i++ {
		rb.Push(i, []byte("msg"))
	}
	got := rb.Since(7)
	if len(got) != 3 || got[0].Seq != 8 || got[2].Seq != 10 {
		t.Errorf("unexpected entries %+v", got)
	}
}

func TestReplayBuffer_Wraparound(t *testing.T) {
	rb := NewReplayBuffer(5)
	for i := int64(1); i <= 8; i++ {
		rb.Push(i, []byte("msg"))
	}
	if rb.Len() != 5 {
		t.Fatalf("Len() = %d, want 5", rb.Len())
	}
	got := rb.Since(0)
	if len(got) != 5 || got[0].Seq != 4 || got[4].Seq != 8 {
		t.Errorf("expected seqs 4..8, got %+v", got)
	}
}

func TestReplayBuffer_CopiesData(t *testing.T) {
	rb := NewReplayBuffer(2)
	data := []byte("abc")
	rb.Push(1, data)
	data[0] = 'x'
	if got := string(rb.Since(0)[0].Data); got != "abc" {
		t.Errorf("expected copy, got %q", got)
	}
}
