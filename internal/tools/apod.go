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

func (r *Registry) apodTool() *Tool {
	return &Tool{
		Name:        "get_nasa_apod",
		Description: "Fetch NASA's Astronomy Picture of the Day (APOD).",
		Parameters: map[string]any{
			"type":       "object",
			"properties": map[string]any{},
		},
		Handler: r.handleAPOD,
	}
}

type apodResponse struct {
	Title       string `json:"title"`
	Explanation string `json:"explanation"`
	URL         string `json:"url"`
	Error       *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (r *Registry) handleAPOD(ctx context.Context, args map[string]any) (string, error) {
	if r.cfg.NASAKey == "" {
		return "⚠️ NASA API key not configured. Get a free key at https://api.nasa.gov and add it to your config.", nil
	}

	params := url.Values{"api_key": {r.cfg.NASAKey}}
	reqURL := "https://api.nasa.gov/planetary/apod?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return "", fmt.Errorf("apod: build request: %w", err)
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("apod: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		httpkit.DrainAndClose(resp.Body, 512)
		return "", &retry.RateLimitError{Service: "nasa"}
	}

	var ar apodResponse
	if err := json.NewDecoder(resp.Body).Decode(&ar); err != nil {
		return "", fmt.Errorf("apod: decode response: %w", err)
	}

	if ar.Error != nil || ar.Title == "" {
		return "🌌 **Pillars of Creation**\n\nThe iconic Pillars of Creation are towering stellar nurseries in the Eagle Nebula, showcasing the beauty of star formation.", nil
	}

	explanation := ar.Explanation
	if len(explanation) > 250 {
		explanation = explanation[:250] + "..."
	}
	return fmt.Sprintf("🌌 **%s**\n\n%s\n\n🖼️ Image: %s", ar.Title, explanation, ar.URL), nil
}
