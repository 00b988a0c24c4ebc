package notification

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

type recordingNotifier struct {
	alerts []Alert
	err    error
}

func (r *recordingNotifier) Send(_ context.Context, a Alert) error {
	r.alerts = append(r.alerts, a)
	return r.err
}

func TestMulti_DeliversToAllAndReportsFailures(t *testing.T) {
	ok := &recordingNotifier{}
	bad := &recordingNotifier{err: errors.New("boom")}
	var failed []string
	m := NewMulti(Named{"bad", bad}, Named{"nil", nil}, Named{"ok", ok})
	m.OnFailure = func(b string) { failed = append(failed, b) }

	if m.Len() != 2 {
		t.Fatalf("nil backend should be skipped, got %d", m.Len())
	}
	err := m.Send(context.Background(), Alert{Level: AlertInfo, Title: "spike"})
	if err == nil || !strings.Contains(err.Error(), "bad: boom") {
		t.Errorf("expected joined error naming backend, got %v", err)
	}
	if len(ok.alerts) != 1 {
		t.Error("healthy backend should still receive the alert")
	}
	if len(failed) != 1 || failed[0] != "bad" {
		t.Errorf("unexpected failure callbacks %v", failed)
	}
}

func TestWebhookNotifier_PostsJSON(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &got)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(srv.URL)
	err := n.Send(context.Background(), Alert{Level: AlertWarning, Title: "t", Message: "m", Code: "005930", Signal: "Y"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got["code"] != "005930" || got["signal"] != "Y" || got["level"] != "WARNING" {
		t.Errorf("unexpected payload %v", got)
	}
}

func TestWebhookNotifier_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	if err := NewWebhookNotifier(srv.URL).Send(context.Background(), Alert{}); err == nil {
		t.Error("expected error on 502")
	}
}

func TestTelegramNotifier_Send(t *testing.T) {
	var path string
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &got)
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	n := newTelegramNotifier(srv.URL, "TOKEN", "42")
	if err := n.Send(context.Background(), Alert{Level: AlertCritical, Title: "golden_cross 005930", Message: "MA5 1.2%"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if path != "/botTOKEN/sendMessage" {
		t.Errorf("unexpected path %s", path)
	}
	if got["chat_id"] != "42" || !strings.Contains(got["text"].(string), `golden\_cross`) {
		t.Errorf("unexpected body %v", got)
	}
}

func TestEscapeMarkdown(t *testing.T) {
	if got := escapeMarkdown("a.b-c"); got != `a\.b\-c` {
		t.Errorf("unexpected escape %q", got)
	}
}
