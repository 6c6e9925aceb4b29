package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"net/http"
	"net/url"

	"github.com/oswin/parley/internal/httpkit"
)

// JokeCategories are the categories the joke backend understands. The
// router picks one at random for each joke in a multi-joke request.
var JokeCategories = []string{"Any", "Programming", "Pun", "Misc"}

// fallbackJokes are served when the joke API is unreachable or returns
// nothing usable. A joke request never fails.
var fallbackJokes = []string{
	"Why don't scientists trust atoms? Because they make up everything!",
	"What did the ocean say to the beach? Nothing, it just waved!",
	"Why don't eggs tell jokes? They'd crack each other up!",
}

func (r *Registry) jokeTool() *Tool {
	return &Tool{
		Name:        "get_joke",
		Description: "Fetch a random joke from a category. Categories: Programming, Pun, Misc, Any. Default: Any.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"category": map[string]any{
					"type":        "string",
					"description": "Joke category (e.g., 'Programming', 'Pun', 'Misc', 'Any').",
				},
			},
		},
		Handler: r.handleJoke,
	}
}

type jokeResponse struct {
	Joke     string `json:"joke"`
	Setup    string `json:"setup"`
	Delivery string `json:"delivery"`
}

func (r *Registry) handleJoke(ctx context.Context, args map[string]any) (string, error) {
	category := stringArg(args, "category")
	if category == "" {
		category = "Any"
	}

	reqURL := "https://v2.jokeapi.dev/joke/" + url.PathEscape(category) + "?type=single"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fallbackJoke(), nil
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return fallbackJoke(), nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		httpkit.DrainAndClose(resp.Body, 512)
		return fallbackJoke(), nil
	}

	var jr jokeResponse
	if err := json.NewDecoder(resp.Body).Decode(&jr); err != nil {
		return fallbackJoke(), nil
	}

	switch {
	case jr.Joke != "":
		return "😂 " + jr.Joke, nil
	case jr.Setup != "" && jr.Delivery != "":
		return fmt.Sprintf("😂 %s\n\n%s", jr.Setup, jr.Delivery), nil
	default:
		return fallbackJoke(), nil
	}
}

func fallbackJoke() string {
	return "😂 " + fallbackJokes[rand.IntN(len(fallbackJokes))]
}
