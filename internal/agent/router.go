package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"

	"github.com/google/uuid"

	"github.com/oswin/parley/internal/llm"
	"github.com/oswin/parley/internal/retry"
	"github.com/oswin/parley/internal/tools"
)

const systemPrompt = "You are Parley, a helpful assistant. Answer directly when you can, " +
	"and call the available tools when a request needs live data or computation. Be concise."

// apologyMessage is the generic recovery text emitted when routing
// fails internally. A system-role message, so the next turn still works.
const apologyMessage = "Sorry, I hit an error. Please try again."

const greetingReply = "Hey there! I'm ready to help. What's on your mind?"

// Router classifies the latest message and produces the next assistant
// message: a direct reply, a batch of tool-call requests, or a
// delegation to the completion service.
type Router struct {
	client   llm.Client
	registry *tools.Registry
	invoker  *retry.Invoker
	logger   *slog.Logger
}

// NewRouter creates a turn router.
func NewRouter(client llm.Client, registry *tools.Registry, invoker *retry.Invoker, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		client:   client,
		registry: registry,
		invoker:  invoker,
		logger:   logger,
	}
}

// Route produces the next assistant message for the conversation.
//
// A handful of shortcut intents are matched by substring against a
// fresh user message and answered without the completion service.
// Everything else, including the follow-up pass after tool results,
// is delegated with the full history and tool catalog.
//
// The only error Route returns is [ErrUpstreamUnavailable] (or a ctx
// error); every other internal failure degrades to a system-role
// apology message so the conversation survives.
func (r *Router) Route(ctx context.Context, state []llm.Message) (llm.Message, error) {
	if last := latest(state); last.Role == "user" {
		if msg, ok := r.classify(last.Content); ok {
			return msg, nil
		}
	}
	return r.delegate(ctx, state)
}

func latest(state []llm.Message) llm.Message {
	if len(state) == 0 {
		return llm.Message{}
	}
	return state[len(state)-1]
}

// classify applies the shortcut intents, in priority order, to the
// latest user message. Returns false when nothing matched and the
// message should be delegated.
func (r *Router) classify(content string) (llm.Message, bool) {
	text := strings.ToLower(content)

	if strings.Contains(text, "how are you") || strings.Contains(text, "hey") {
		return llm.Message{Role: "assistant", Content: greetingReply}, true
	}

	if strings.Contains(text, "joke") {
		if n, ok := jokeCount(text); ok {
			return jokeBatch(n), true
		}
		if strings.Contains(text, "tell me a joke") || strings.Contains(text, "another joke") {
			return jokeBatch(1), true
		}
	}

	return llm.Message{}, false
}

// jokeCount scans for an explicit count token. The match is a bare
// substring check, so "tell me 3 jokes" yields 3 but so would any digit
// appearing anywhere in the text.
func jokeCount(text string) (int, bool) {
	for n := 1; n <= 5; n++ {
		if strings.Contains(text, string(rune('0'+n))) {
			return n, true
		}
	}
	return 0, false
}

// jokeBatch emits n get_joke requests with distinct call IDs. A single
// request takes the default category; a batch draws a random category
// per request for variety.
func jokeBatch(n int) llm.Message {
	calls := make([]llm.ToolCall, n)
	for i := range calls {
		category := "Any"
		if n > 1 {
			category = tools.JokeCategories[rand.IntN(len(tools.JokeCategories))]
		}
		calls[i] = llm.ToolCall{
			ID:        uuid.NewString(),
			Name:      "get_joke",
			Arguments: map[string]any{"category": category},
		}
	}
	return llm.Message{Role: "assistant", ToolCalls: calls}
}

// delegate hands the full history and tool catalog to the completion
// service through the resilient invoker.
func (r *Router) delegate(ctx context.Context, state []llm.Message) (llm.Message, error) {
	msgs := make([]llm.Message, 0, len(state)+1)
	if len(state) == 0 || state[0].Role != "system" {
		msgs = append(msgs, llm.Message{Role: "system", Content: systemPrompt})
	}
	msgs = append(msgs, state...)

	var resp *llm.ChatResponse
	result, err := r.invoker.Do(ctx, func() (string, error) {
		var callErr error
		resp, callErr = r.client.Chat(ctx, msgs, r.registry.Specs())
		return "", callErr
	})
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return llm.Message{}, err
		}
		if retry.Transient(err) {
			return llm.Message{}, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
		}
		r.logger.Error("completion delegation failed", "error", err)
		return llm.Message{Role: "system", Content: apologyMessage}, nil
	}
	if resp == nil {
		// Rate-limit budget exhausted; result carries the user-safe text.
		return llm.Message{Role: "assistant", Content: result}, nil
	}
	return resp.Message, nil
}
