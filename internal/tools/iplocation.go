package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/oswin/parley/internal/httpkit"
	"github.com/oswin/parley/internal/retry"
)

func (r *Registry) ipLocationTool() *Tool {
	return &Tool{
		Name:        "get_ip_location",
		Description: "Fetch location info for a given IP address (e.g., '8.8.8.8').",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"ip": map[string]any{
					"type":        "string",
					"description": "The IP address to look up.",
				},
			},
			"required": []string{"ip"},
		},
		Handler: r.handleIPLocation,
	}
}

type ipLocationResponse struct {
	City        string  `json:"city"`
	Region      string  `json:"region"`
	CountryName string  `json:"country_name"`
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
	Error       bool    `json:"error"`
	Reason      string  `json:"reason"`
}

func (r *Registry) handleIPLocation(ctx context.Context, args map[string]any) (string, error) {
	ip := stringArg(args, "ip")
	if ip == "" {
		return "❌ Error: ip is required.", nil
	}

	reqURL := "https://ipapi.co/" + url.PathEscape(ip) + "/json/"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return "", fmt.Errorf("iplocation: build request: %w", err)
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("iplocation: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		httpkit.DrainAndClose(resp.Body, 512)
		return "", &retry.RateLimitError{Service: "iplocation"}
	}

	var lr ipLocationResponse
	if err := json.NewDecoder(resp.Body).Decode(&lr); err != nil {
		return "", fmt.Errorf("iplocation: decode response: %w", err)
	}

	if lr.Error {
		reason := lr.Reason
		if reason == "" {
			reason = "unknown error"
		}
		return fmt.Sprintf("❌ Error: %s", reason), nil
	}

	city := lr.City
	if city == "" {
		city = "Unknown"
	}
	country := lr.CountryName
	if country == "" {
		country = "Unknown"
	}

	location := fmt.Sprintf("%s, %s", city, country)
	if lr.Region != "" {
		location = fmt.Sprintf("%s, %s, %s", city, lr.Region, country)
	}
	return fmt.Sprintf("🌐 IP: %s\n📍 Location: %s\n🗺️ Coordinates: %g, %g", ip, location, lr.Latitude, lr.Longitude), nil
}
