package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/oswin/parley/internal/llm"
	"github.com/oswin/parley/internal/retry"
	"github.com/oswin/parley/internal/tools"
)

// Executor turns a message's tool-call requests into result messages.
type Executor struct {
	registry *tools.Registry
	invoker  *retry.Invoker
	logger   *slog.Logger
}

// NewExecutor creates a tool execution stage.
func NewExecutor(registry *tools.Registry, invoker *retry.Invoker, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{
		registry: registry,
		invoker:  invoker,
		logger:   logger,
	}
}

// Execute runs every tool call carried by msg and returns one result
// message per request, tagged with the originating call ID, in request
// order. Independent calls run concurrently; the output order does not
// depend on completion order. A message without tool calls is a no-op.
func (e *Executor) Execute(ctx context.Context, msg llm.Message) []llm.Message {
	if len(msg.ToolCalls) == 0 {
		return nil
	}

	results := make([]llm.Message, len(msg.ToolCalls))
	var wg sync.WaitGroup
	for i, call := range msg.ToolCalls {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = e.run(ctx, call)
		}()
	}
	wg.Wait()
	return results
}

// run executes a single tool call. Every issued call ID receives
// exactly one result; failures of any kind become result text.
func (e *Executor) run(ctx context.Context, call llm.ToolCall) llm.Message {
	tool := e.registry.Get(call.Name)
	if tool == nil {
		e.logger.Warn("unknown tool requested", "tool", call.Name, "call_id", call.ID)
		return llm.Message{
			Role:       "tool",
			Content:    fmt.Sprintf("❌ Error: tool %q is not available.", call.Name),
			ToolCallID: call.ID,
		}
	}

	e.logger.Debug("executing tool", "tool", call.Name, "call_id", call.ID)
	result := e.invoker.DoSoft(ctx, func() (string, error) {
		return tool.Handler(ctx, call.Arguments)
	})

	return llm.Message{
		Role:       "tool",
		Content:    normalizeResult(result),
		ToolCallID: call.ID,
	}
}

// normalizeResult flattens structured tool output to display text. A
// JSON object with a "joke" field collapses to the joke, one with an
// "error" field to an error line; any other object stays serialized.
// Plain text passes through untouched.
func normalizeResult(result string) string {
	trimmed := strings.TrimSpace(result)
	if !strings.HasPrefix(trimmed, "{") {
		return result
	}

	var obj map[string]any
	if err := json.Unmarshal([]byte(trimmed), &obj); err != nil {
		return result
	}

	if joke, ok := obj["joke"].(string); ok && joke != "" {
		return joke
	}
	if msg, ok := obj["error"]; ok {
		return fmt.Sprintf("Error: %v", msg)
	}
	return trimmed
}
