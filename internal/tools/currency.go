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

// mockRates are used when no openexchangerates.org key is configured.
// Unknown pairs convert at 1.0.
var mockRates = map[[2]string]float64{
	{"USD", "EUR"}: 0.92,
	{"USD", "GBP"}: 0.79,
	{"EUR", "USD"}: 1.09,
}

func (r *Registry) currencyTool() *Tool {
	return &Tool{
		Name:        "convert_currency",
		Description: "Convert an amount from one currency to another (e.g., 100 USD to EUR).",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"amount": map[string]any{
					"type":        "number",
					"description": "The amount to convert.",
				},
				"from_currency": map[string]any{
					"type":        "string",
					"description": "Source currency code (e.g., 'USD').",
				},
				"to_currency": map[string]any{
					"type":        "string",
					"description": "Target currency code (e.g., 'EUR').",
				},
			},
			"required": []string{"amount", "from_currency", "to_currency"},
		},
		Handler: r.handleCurrency,
	}
}

type ratesResponse struct {
	Rates map[string]float64 `json:"rates"`
}

func (r *Registry) handleCurrency(ctx context.Context, args map[string]any) (string, error) {
	amount, ok := floatArg(args, "amount")
	if !ok {
		return "❌ Error: amount must be a number.", nil
	}
	from := strings.ToUpper(stringArg(args, "from_currency"))
	to := strings.ToUpper(stringArg(args, "to_currency"))
	if from == "" || to == "" {
		return "❌ Error: from_currency and to_currency are required.", nil
	}

	if r.cfg.ExchangeKey == "" {
		return "⚠️ Exchange API key not configured. " + mockConvert(amount, from, to), nil
	}

	params := url.Values{"app_id": {r.cfg.ExchangeKey}}
	reqURL := "https://openexchangerates.org/api/latest.json?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return "", fmt.Errorf("currency: build request: %w", err)
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("currency: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		httpkit.DrainAndClose(resp.Body, 512)
		return "", &retry.RateLimitError{Service: "currency"}
	}

	var rr ratesResponse
	if err := json.NewDecoder(resp.Body).Decode(&rr); err != nil {
		return "", fmt.Errorf("currency: decode response: %w", err)
	}

	fromRate, okFrom := rr.Rates[from]
	toRate, okTo := rr.Rates[to]
	if !okFrom || !okTo || fromRate == 0 {
		return fmt.Sprintf("❌ Error: unknown currency pair %s/%s.", from, to), nil
	}

	result := amount * (toRate / fromRate)
	return fmt.Sprintf("💱 %g %s = %.2f %s", amount, from, result, to), nil
}

func mockConvert(amount float64, from, to string) string {
	rate, ok := mockRates[[2]string{from, to}]
	if !ok {
		rate = 1.0
	}
	return fmt.Sprintf("💱 %g %s = %.2f %s (mock rate)", amount, from, amount*rate, to)
}
