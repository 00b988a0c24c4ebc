// Package news fetches market news snippets and asks an LLM for a one-line
// market mood. Both are slow external calls and never go through the broker
// queue.
package news

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
)

// DefaultQuery is used when the caller passes none ("US stock market").
const DefaultQuery = "미국 증시"

// Snippet is one search result.
type Snippet struct {
	Title   string `json:"title"`
	Summary string `json:"summary"`
	URL     string `json:"url"`
}

// Scraper reads the news tab of a search results page.
type Scraper struct {
	client  *resty.Client
	baseURL string
}

// NewScraper creates a scraper against baseURL (e.g. https://www.google.com).
func NewScraper(baseURL string) *Scraper {
	client := resty.New()
	client.SetTimeout(30 * time.Second)
	client.SetHeader("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 Chrome/117.0.0.0 Safari/537.36")
	client.SetHeader("Accept-Language", "ko-KR,ko;q=0.9")
	return &Scraper{client: client, baseURL: strings.TrimRight(baseURL, "/")}
}

// FetchSnippets returns up to count snippets for query.
func (s *Scraper) FetchSnippets(ctx context.Context, query string, count int) ([]Snippet, error) {
	if strings.TrimSpace(query) == "" {
		query = DefaultQuery
	}
	if count <= 0 {
		count = 10
	}
	resp, err := s.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"q": query, "tbm": "nws", "hl": "ko", "gl": "KR", "ceid": "KR:ko",
		}).
		Get(s.baseURL + "/search")
	if err != nil {
		return nil, fmt.Errorf("failed to fetch news: %w", err)
	}
	if resp.StatusCode() != 200 {
		return nil, fmt.Errorf("HTTP error %d when fetching news", resp.StatusCode())
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(resp.String()))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}
	return parseSnippets(doc, count), nil
}

func parseSnippets(doc *goquery.Document, count int) []Snippet {
	var out []Snippet
	doc.Find("div.SoaBEf").EachWithBreak(func(_ int, el *goquery.Selection) bool {
		link := el.Find("a.WlydOe").First()
		href, _ := link.Attr("href")
		title := strings.TrimSpace(el.Find("div[role=heading]").First().Text())
		if title == "" {
			title = strings.TrimSpace(link.Text())
		}
		if title == "" {
			return true // skip malformed card
		}
		out = append(out, Snippet{
			Title:   title,
			Summary: strings.TrimSpace(el.Find("div.GI74Re").First().Text()),
			URL:     href,
		})
		return len(out) < count
	})
	return out
}
