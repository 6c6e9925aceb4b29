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

// mockWeather covers a handful of cities so the tool works without a
// weatherapi.com key.
var mockWeather = map[string]string{
	"london":   "🌤️ London: 12°C, Cloudy, Humidity: 75%",
	"new york": "☀️ New York: 18°C, Sunny, Humidity: 60%",
	"tokyo":    "⛅ Tokyo: 22°C, Partly Cloudy, Humidity: 65%",
}

func (r *Registry) weatherTool() *Tool {
	return &Tool{
		Name:        "fetch_weather",
		Description: "Fetch the current weather for a given city (e.g., 'London', 'New York').",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"city": map[string]any{
					"type":        "string",
					"description": "The name of the city.",
				},
			},
			"required": []string{"city"},
		},
		Handler: r.handleWeather,
	}
}

type weatherResponse struct {
	Current struct {
		TempC     float64 `json:"temp_c"`
		Humidity  int     `json:"humidity"`
		Condition struct {
			Text string `json:"text"`
		} `json:"condition"`
	} `json:"current"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (r *Registry) handleWeather(ctx context.Context, args map[string]any) (string, error) {
	city := stringArg(args, "city")
	if city == "" {
		return "❌ Error: city is required.", nil
	}

	if r.cfg.WeatherKey == "" {
		return "⚠️ Weather API key not configured. " + mockWeatherFor(city), nil
	}

	params := url.Values{
		"key": {r.cfg.WeatherKey},
		"q":   {city},
	}
	reqURL := "https://api.weatherapi.com/v1/current.json?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return "", fmt.Errorf("weather: build request: %w", err)
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("weather: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		httpkit.DrainAndClose(resp.Body, 512)
		return "", &retry.RateLimitError{Service: "weather"}
	}

	var wr weatherResponse
	if err := json.NewDecoder(resp.Body).Decode(&wr); err != nil {
		return "", fmt.Errorf("weather: decode response: %w", err)
	}

	if wr.Error != nil {
		// Unknown city or upstream trouble; degrade to mock data.
		return mockWeatherFor(city), nil
	}

	return fmt.Sprintf("🌤️ %s: %g°C, %s, Humidity: %d%%",
		titleCase(city), wr.Current.TempC, wr.Current.Condition.Text, wr.Current.Humidity), nil
}

func mockWeatherFor(city string) string {
	if w, ok := mockWeather[strings.ToLower(city)]; ok {
		return w
	}
	return fmt.Sprintf("🌤️ %s: 20°C, Clear, Humidity: 70%% (mock data)", titleCase(city))
}
