package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/oswin/parley/internal/httpkit"
	"github.com/oswin/parley/internal/retry"
)

var mockNews = map[string][]string{
	"technology": {
		"• AI Models Reach New Capabilities",
		"• Tech Giants Invest in Quantum Computing",
	},
	"business": {
		"• Stock Markets Show Growth",
		"• Major Companies Report Earnings",
	},
	"sports": {
		"• Championship Teams Advance",
		"• Record Breaking Performances",
	},
}

func (r *Registry) newsTool() *Tool {
	return &Tool{
		Name:        "fetch_news",
		Description: "Fetch the latest news headlines on a given topic (e.g., 'technology', 'sports').",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"topic": map[string]any{
					"type":        "string",
					"description": "The news topic.",
				},
			},
			"required": []string{"topic"},
		},
		Handler: r.handleNews,
	}
}

type newsResponse struct {
	Articles []struct {
		Title string `json:"title"`
	} `json:"articles"`
}

func (r *Registry) handleNews(ctx context.Context, args map[string]any) (string, error) {
	topic := stringArg(args, "topic")
	if topic == "" {
		return "❌ Error: topic is required.", nil
	}

	if r.cfg.NewsKey == "" {
		return "⚠️ News API key not configured. " + mockHeadlines(topic), nil
	}

	params := url.Values{
		"q":        {topic},
		"apiKey":   {r.cfg.NewsKey},
		"pageSize": {"5"},
		"sortBy":   {"publishedAt"},
	}
	reqURL := "https://newsapi.org/v2/everything?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return "", fmt.Errorf("news: build request: %w", err)
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("news: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		httpkit.DrainAndClose(resp.Body, 512)
		return "", &retry.RateLimitError{Service: "news"}
	}

	var nr newsResponse
	if err := json.NewDecoder(resp.Body).Decode(&nr); err != nil {
		return "", fmt.Errorf("news: decode response: %w", err)
	}

	if len(nr.Articles) == 0 {
		return mockHeadlines(topic), nil
	}

	headlines := make([]string, 0, 5)
	for i, a := range nr.Articles {
		if i == 5 {
			break
		}
		headlines = append(headlines, "• "+a.Title)
	}
	return fmt.Sprintf("📰 Latest %s News:\n%s", titleCase(topic), strings.Join(headlines, "\n")), nil
}

func mockHeadlines(topic string) string {
	headlines, ok := mockNews[strings.ToLower(topic)]
	if !ok {
		headlines = []string{"• Latest news updates"}
	}
	return fmt.Sprintf("📰 Latest %s News:\n%s", titleCase(topic), strings.Join(headlines, "\n"))
}
