// Package tools defines the tools available to the agent.
//
// A tool is data: a name, a JSON Schema for its parameters, and a
// handler. Handlers return display strings. Logical failures (bad
// operand, unknown operation, missing credentials) are part of the
// result text, not errors — a handler error means the call itself
// failed and may be worth retrying.
package tools

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"unicode"

	"github.com/oswin/parley/internal/httpkit"
)

// Tool represents a callable tool.
type Tool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
	Handler     func(ctx context.Context, args map[string]any) (string, error) `json:"-"`
}

// Config holds external API credentials for the builtin tools. Empty
// keys are allowed; the affected tools answer with mock data.
type Config struct {
	AlphaVantageKey string
	WeatherKey      string
	NewsKey         string
	ExchangeKey     string
	NASAKey         string
}

// Registry holds available tools in registration order.
type Registry struct {
	tools      map[string]*Tool
	order      []string
	cfg        Config
	httpClient *http.Client
	logger     *slog.Logger
}

// NewRegistry creates a tool registry with the builtin tools installed.
func NewRegistry(cfg Config, logger *slog.Logger) (*Registry, error) {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Registry{
		tools:      make(map[string]*Tool),
		cfg:        cfg,
		httpClient: httpkit.NewClient(),
		logger:     logger,
	}
	if err := r.registerBuiltins(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Registry) registerBuiltins() error {
	builtins := []*Tool{
		r.calculatorTool(),
		r.stockPriceTool(),
		r.weatherTool(),
		r.newsTool(),
		r.currencyTool(),
		r.jokeTool(),
		r.apodTool(),
		r.ipLocationTool(),
	}
	for _, t := range builtins {
		if err := r.Register(t); err != nil {
			return err
		}
	}
	return nil
}

// Register adds a tool to the registry. Duplicate names are a
// configuration error — silent overwrite hides wiring bugs.
func (r *Registry) Register(t *Tool) error {
	if t.Name == "" {
		return fmt.Errorf("tool has no name")
	}
	if _, exists := r.tools[t.Name]; exists {
		return fmt.Errorf("tool %q already registered", t.Name)
	}
	r.tools[t.Name] = t
	r.order = append(r.order, t.Name)
	return nil
}

// Get retrieves a tool by name. Returns nil if absent.
func (r *Registry) Get(name string) *Tool {
	return r.tools[name]
}

// List returns all tools in registration order.
func (r *Registry) List() []*Tool {
	out := make([]*Tool, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.tools[name])
	}
	return out
}

// Specs returns the tool catalog in the completion-service wire format.
func (r *Registry) Specs() []map[string]any {
	specs := make([]map[string]any, 0, len(r.order))
	for _, name := range r.order {
		t := r.tools[name]
		specs = append(specs, map[string]any{
			"type": "function",
			"function": map[string]any{
				"name":        t.Name,
				"description": t.Description,
				"parameters":  t.Parameters,
			},
		})
	}
	return specs
}

// Execute runs a tool by name with the given arguments. An unknown
// name returns [ErrToolUnavailable]; handler errors pass through so
// the caller can decide on retries.
func (r *Registry) Execute(ctx context.Context, name string, args map[string]any) (string, error) {
	tool := r.tools[name]
	if tool == nil {
		return "", &ErrToolUnavailable{ToolName: name}
	}
	return tool.Handler(ctx, args)
}

// Argument extraction helpers. Completion services deliver JSON, so
// numbers arrive as float64 regardless of the declared schema type.

func stringArg(args map[string]any, key string) string {
	s, _ := args[key].(string)
	return s
}

func floatArg(args map[string]any, key string) (float64, bool) {
	switch v := args[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	default:
		return 0, false
	}
}

// titleCase uppercases the first letter of each space-separated word.
// Display-only; not locale-aware.
func titleCase(s string) string {
	out := []rune(strings.ToLower(s))
	upper := true
	for i, r := range out {
		if upper && unicode.IsLetter(r) {
			out[i] = unicode.ToUpper(r)
			upper = false
		} else if r == ' ' {
			upper = true
		}
	}
	return string(out)
}
