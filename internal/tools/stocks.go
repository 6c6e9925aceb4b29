package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/oswin/parley/internal/httpkit"
	"github.com/oswin/parley/internal/retry"
)

// mockPrices back the stock tool when no Alpha Vantage key is set.
var mockPrices = map[string]float64{
	"AAPL":  195.50,
	"GOOGL": 142.80,
	"TSLA":  238.45,
	"MSFT":  380.25,
	"AMZN":  180.50,
}

func (r *Registry) stockPriceTool() *Tool {
	return &Tool{
		Name:        "get_stock_price",
		Description: "Fetch the current stock price for a given symbol (e.g., 'AAPL', 'GOOGL', 'MSFT').",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"symbol": map[string]any{
					"type":        "string",
					"description": "The stock ticker symbol.",
				},
			},
			"required": []string{"symbol"},
		},
		Handler: r.handleStockPrice,
	}
}

type globalQuoteResponse struct {
	GlobalQuote struct {
		Price  string `json:"05. price"`
		Change string `json:"09. change"`
	} `json:"Global Quote"`
}

func (r *Registry) handleStockPrice(ctx context.Context, args map[string]any) (string, error) {
	symbol := strings.ToUpper(stringArg(args, "symbol"))
	if symbol == "" {
		return "❌ Error: symbol is required.", nil
	}

	if r.cfg.AlphaVantageKey == "" {
		return "⚠️ Stock API key not configured. " + mockQuote(symbol), nil
	}

	params := url.Values{
		"function": {"GLOBAL_QUOTE"},
		"symbol":   {symbol},
		"apikey":   {r.cfg.AlphaVantageKey},
	}
	reqURL := "https://www.alphavantage.co/query?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return "", fmt.Errorf("stocks: build request: %w", err)
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("stocks: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		httpkit.DrainAndClose(resp.Body, 512)
		return "", &retry.RateLimitError{Service: "stocks"}
	}

	var gq globalQuoteResponse
	if err := json.NewDecoder(resp.Body).Decode(&gq); err != nil {
		return "", fmt.Errorf("stocks: decode response: %w", err)
	}

	price, err := strconv.ParseFloat(gq.GlobalQuote.Price, 64)
	if err != nil || gq.GlobalQuote.Price == "" {
		// Missing quote (bad symbol, free-tier throttling without a 429).
		return mockQuote(symbol), nil
	}

	change := gq.GlobalQuote.Change
	if change == "" {
		change = "N/A"
	}
	return fmt.Sprintf("📈 %s: $%.2f (Change: %s)", symbol, price, change), nil
}

func mockQuote(symbol string) string {
	price, ok := mockPrices[symbol]
	if !ok {
		price = 150.00
	}
	return fmt.Sprintf("📈 %s: $%.2f (mock data)", symbol, price)
}
