package news

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// Directions.
const (
	Positive = "positive"
	Negative = "negative"
)

// ErrNoAPIKey is returned when the analyst is not configured.
var ErrNoAPIKey = errors.New("news: llm api key not set")

const systemPrompt = "너는 증시 분석가야. 뉴스 기반으로 오늘 단기투자 가능성에 대해 명확하게 평가해줘."

const userPrompt = `다음은 오늘의 주요 뉴스입니다:

%s

이 뉴스들을 종합해 오늘의 투자 날씨를 알려줘.
- 분위기가 좋다면 '맑음'
- 부정적이면 '흐림'
- 판단이 어려우면 '안개'

문장 요약 + 날씨 코드 포함해서 알려줘.`

// Sentiment is the analyst's answer.
type Sentiment struct {
	Answer    string `json:"answer"`
	Direction string `json:"direction"`
}

// Analyst talks to an OpenAI-compatible chat completions endpoint.
type Analyst struct {
	client *resty.Client
	apiKey string
	model  string
}

// NewAnalyst creates an analyst. baseURL is e.g. https://api.openai.com/v1.
func NewAnalyst(baseURL, apiKey, model string) *Analyst {
	client := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(60*time.Second).
		SetAuthToken(apiKey).
		SetHeader("Content-Type", "application/json")
	return &Analyst{client: client, apiKey: apiKey, model: model}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Summarize asks for the day's market mood over snippets.
func (a *Analyst) Summarize(ctx context.Context, snippets []Snippet) (Sentiment, error) {
	if a.apiKey == "" {
		return Sentiment{}, ErrNoAPIKey
	}
	parts := make([]string, 0, len(snippets))
	for _, s := range snippets {
		parts = append(parts, s.Title+"\n"+s.Summary)
	}

	var out chatResponse
	resp, err := a.client.R().
		SetContext(ctx).
		SetBody(chatRequest{
			Model: a.model,
			Messages: []chatMessage{
				{Role: "system", Content: systemPrompt},
				{Role: "user", Content: fmt.Sprintf(userPrompt, strings.Join(parts, "\n\n---\n\n"))},
			},
			Temperature: 0.7,
			MaxTokens:   700,
		}).
		SetResult(&out).
		SetError(&out).
		Post("/chat/completions")
	if err != nil {
		return Sentiment{}, fmt.Errorf("llm request: %w", err)
	}
	if resp.IsError() {
		msg := resp.Status()
		if out.Error != nil {
			msg = out.Error.Message
		}
		return Sentiment{}, fmt.Errorf("llm status %d: %s", resp.StatusCode(), msg)
	}
	if len(out.Choices) == 0 {
		return Sentiment{}, errors.New("llm returned no choices")
	}
	answer := strings.TrimSpace(out.Choices[0].Message.Content)
	return Sentiment{Answer: answer, Direction: direction(answer)}, nil
}

// direction is positive only on a clear ("맑음") forecast. Cloudy and foggy
// both read as negative.
func direction(answer string) string {
	if strings.Contains(answer, "맑음") && !strings.Contains(answer, "흐림") {
		return Positive
	}
	return Negative
}

// Report is what the HTTP layer returns.
type Report struct {
	Query    string    `json:"query"`
	Snippets []Snippet `json:"snippets"`
	Sentiment
}

// Service joins a scraper and an analyst.
type Service struct {
	Scraper *Scraper
	Analyst *Analyst
}

// Sentiment fetches snippets for query and summarizes them.
func (s *Service) Sentiment(ctx context.Context, query string, count int) (Report, error) {
	if strings.TrimSpace(query) == "" {
		query = DefaultQuery
	}
	snippets, err := s.Scraper.FetchSnippets(ctx, query, count)
	if err != nil {
		return Report{}, err
	}
	rep := Report{Query: query, Snippets: snippets}
	if len(snippets) == 0 {
		rep.Sentiment = Sentiment{Answer: "no news found", Direction: Negative}
		return rep, nil
	}
	sent, err := s.Analyst.Summarize(ctx, snippets)
	if err != nil {
		return Report{}, err
	}
	rep.Sentiment = sent
	return rep, nil
}
