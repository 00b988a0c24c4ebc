package news

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// ────────────────────────────────────────────────────────────
// Fakes
// ────────────────────────────────────────────────────────────

const resultsPage = `<html><body>
<div class="SoaBEf"><a class="WlydOe" href="https://news.example/1"><div role="heading">나스닥 사상 최고치</div></a><div class="GI74Re">기술주 강세</div></div>
<div class="SoaBEf"><a class="WlydOe" href="https://news.example/2">반도체 업황 개선</a><div class="GI74Re">수출 증가</div></div>
<div class="SoaBEf"><div class="GI74Re">제목 없음</div></div>
<div class="SoaBEf"><a class="WlydOe" href="https://news.example/3"><div role="heading">환율 안정</div></a></div>
</body></html>`

func newsServer(t *testing.T) (*httptest.Server, *string) {
	t.Helper()
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/search" || r.URL.Query().Get("tbm") != "nws" {
			http.NotFound(w, r)
			return
		}
		gotQuery = r.URL.Query().Get("q")
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, resultsPage)
	}))
	t.Cleanup(srv.Close)
	return srv, &gotQuery
}

func chatServer(t *testing.T, answer string, status int) (*httptest.Server, *chatRequest) {
	t.Helper()
	var got chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			http.NotFound(w, r)
			return
		}
		if r.Header.Get("Authorization") != "Bearer sk-test" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "application/json")
		if status != http.StatusOK {
			w.WriteHeader(status)
			fmt.Fprint(w, `{"error":{"message":"rate limited"}}`)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []any{map[string]any{"message": map[string]string{"role": "assistant", "content": answer}}},
		})
	}))
	t.Cleanup(srv.Close)
	return srv, &got
}

// ────────────────────────────────────────────────────────────
// Scraper
// ────────────────────────────────────────────────────────────

func TestFetchSnippets_ParsesCards(t *testing.T) {
	srv, q := newsServer(t)
	s := NewScraper(srv.URL)

	got, err := s.FetchSnippets(context.Background(), "", 10)
	if err != nil {
		t.Fatalf("FetchSnippets: %v", err)
	}
	if *q != DefaultQuery {
		t.Errorf("expected default query, got %q", *q)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 snippets (untitled card skipped), got %d: %+v", len(got), got)
	}
	if got[0].Title != "나스닥 사상 최고치" || got[0].Summary != "기술주 강세" || got[0].URL != "https://news.example/1" {
		t.Errorf("unexpected first snippet %+v", got[0])
	}
	if got[1].Title != "반도체 업황 개선" {
		t.Errorf("expected link text as title fallback, got %q", got[1].Title)
	}
	if got[2].Summary != "" {
		t.Errorf("expected empty summary, got %q", got[2].Summary)
	}
}

func TestFetchSnippets_RespectsCount(t *testing.T) {
	srv, _ := newsServer(t)
	got, err := NewScraper(srv.URL).FetchSnippets(context.Background(), "코스피", 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Errorf("expected 2 snippets, got %d", len(got))
	}
}

func TestFetchSnippets_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()
	if _, err := NewScraper(srv.URL).FetchSnippets(context.Background(), "x", 5); err == nil {
		t.Fatal("expected error on 429")
	}
}

// ────────────────────────────────────────────────────────────
// Analyst
// ────────────────────────────────────────────────────────────

func TestSummarize_Directions(t *testing.T) {
	cases := map[string]string{
		"기술주 강세로 오늘은 맑음": Positive,
		"금리 우려로 흐림":      Negative,
		"방향성 부재, 안개":     Negative,
		"오전 맑음 오후 흐림 예상": Negative,
	}
	for answer, want := range cases {
		srv, _ := chatServer(t, answer, http.StatusOK)
		got, err := NewAnalyst(srv.URL, "sk-test", "gpt-4o").Summarize(context.Background(), []Snippet{{Title: "t", Summary: "s"}})
		if err != nil {
			t.Fatalf("Summarize(%q): %v", answer, err)
		}
		if got.Direction != want || got.Answer != answer {
			t.Errorf("Summarize(%q) = %+v, want direction %s", answer, got, want)
		}
	}
}

func TestSummarize_SendsSnippetsInPrompt(t *testing.T) {
	srv, req := chatServer(t, "맑음", http.StatusOK)
	a := NewAnalyst(srv.URL, "sk-test", "gpt-4o-mini")
	if _, err := a.Summarize(context.Background(), []Snippet{{Title: "나스닥 상승", Summary: "기술주"}}); err != nil {
		t.Fatal(err)
	}
	if req.Model != "gpt-4o-mini" || len(req.Messages) != 2 {
		t.Fatalf("unexpected request %+v", req)
	}
	if req.Messages[0].Role != "system" || !strings.Contains(req.Messages[1].Content, "나스닥 상승\n기술주") {
		t.Errorf("snippets missing from prompt: %+v", req.Messages)
	}
}

func TestSummarize_Errors(t *testing.T) {
	if _, err := NewAnalyst("http://unused", "", "m").Summarize(context.Background(), nil); !errors.Is(err, ErrNoAPIKey) {
		t.Errorf("expected ErrNoAPIKey, got %v", err)
	}
	srv, _ := chatServer(t, "", http.StatusTooManyRequests)
	_, err := NewAnalyst(srv.URL, "sk-test", "m").Summarize(context.Background(), []Snippet{{Title: "t"}})
	if err == nil || !strings.Contains(err.Error(), "rate limited") {
		t.Errorf("expected upstream message in error, got %v", err)
	}
}

// ────────────────────────────────────────────────────────────
// Service
// ────────────────────────────────────────────────────────────

func TestService_Sentiment(t *testing.T) {
	news, _ := newsServer(t)
	chat, _ := chatServer(t, "오늘은 맑음", http.StatusOK)
	svc := &Service{Scraper: NewScraper(news.URL), Analyst: NewAnalyst(chat.URL, "sk-test", "m")}

	rep, err := svc.Sentiment(context.Background(), "", 5)
	if err != nil {
		t.Fatal(err)
	}
	if rep.Query != DefaultQuery || len(rep.Snippets) != 3 || rep.Direction != Positive {
		t.Errorf("unexpected report %+v", rep)
	}
	b, _ := json.Marshal(rep)
	if !strings.Contains(string(b), `"direction":"positive"`) || !strings.Contains(string(b), `"answer":"오늘은 맑음"`) {
		t.Errorf("expected flattened sentiment fields, got %s", b)
	}
}
