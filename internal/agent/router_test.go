package agent

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/oswin/parley/internal/llm"
	"github.com/oswin/parley/internal/retry"
	"github.com/oswin/parley/internal/tools"
)

// mockClient is a scriptable completion service.
type mockClient struct {
	responses []*llm.ChatResponse
	err       error
	calls     int

	lastMessages []llm.Message
	lastTools    []map[string]any
}

func (m *mockClient) Chat(ctx context.Context, messages []llm.Message, toolSpecs []map[string]any) (*llm.ChatResponse, error) {
	m.lastMessages = messages
	m.lastTools = toolSpecs
	if m.err != nil {
		m.calls++
		return nil, m.err
	}
	idx := m.calls
	if idx >= len(m.responses) {
		idx = len(m.responses) - 1
	}
	m.calls++
	return m.responses[idx], nil
}

func newTestRouter(t *testing.T, client llm.Client) (*Router, *tools.Registry) {
	t.Helper()
	registry, err := tools.NewRegistry(tools.Config{}, nil)
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}
	invoker := retry.New(2, time.Millisecond, nil)
	return NewRouter(client, registry, invoker, nil), registry
}

func userTurn(text string) []llm.Message {
	return []llm.Message{{Role: "user", Content: text}}
}

func TestRouteGreeting(t *testing.T) {
	client := &mockClient{}
	router, _ := newTestRouter(t, client)

	for _, text := range []string{"hey", "Hey there!", "how are you doing?"} {
		msg, err := router.Route(context.Background(), userTurn(text))
		if err != nil {
			t.Fatalf("route %q: %v", text, err)
		}
		if msg.Role != "assistant" || msg.Content == "" {
			t.Errorf("route %q: expected a direct assistant reply, got %+v", text, msg)
		}
		if len(msg.ToolCalls) != 0 {
			t.Errorf("route %q: greeting must not emit tool calls", text)
		}
	}
	if client.calls != 0 {
		t.Errorf("greeting path called the completion service %d times", client.calls)
	}
}

func TestRouteSingleJoke(t *testing.T) {
	client := &mockClient{}
	router, _ := newTestRouter(t, client)

	for _, text := range []string{"tell me a joke", "another joke please"} {
		msg, err := router.Route(context.Background(), userTurn(text))
		if err != nil {
			t.Fatalf("route %q: %v", text, err)
		}
		if len(msg.ToolCalls) != 1 {
			t.Fatalf("route %q: expected 1 tool call, got %d", text, len(msg.ToolCalls))
		}
		call := msg.ToolCalls[0]
		if call.Name != "get_joke" {
			t.Errorf("route %q: tool = %q, want get_joke", text, call.Name)
		}
		if call.ID == "" {
			t.Errorf("route %q: tool call has no ID", text)
		}
		if call.Arguments["category"] != "Any" {
			t.Errorf("route %q: category = %v, want Any", text, call.Arguments["category"])
		}
		if msg.Content != "" {
			t.Errorf("route %q: tool-call message must carry empty text", text)
		}
	}
	if client.calls != 0 {
		t.Errorf("joke shortcut called the completion service %d times", client.calls)
	}
}

func TestRouteJokeCount(t *testing.T) {
	client := &mockClient{}
	router, _ := newTestRouter(t, client)

	for n := 1; n <= 5; n++ {
		text := fmt.Sprintf("tell me %d jokes", n)
		msg, err := router.Route(context.Background(), userTurn(text))
		if err != nil {
			t.Fatalf("route %q: %v", text, err)
		}
		if len(msg.ToolCalls) != n {
			t.Fatalf("route %q: expected %d tool calls, got %d", text, n, len(msg.ToolCalls))
		}
		seen := make(map[string]bool)
		for _, call := range msg.ToolCalls {
			if call.Name != "get_joke" {
				t.Errorf("route %q: tool = %q, want get_joke", text, call.Name)
			}
			if call.ID == "" || seen[call.ID] {
				t.Errorf("route %q: call IDs must be distinct and non-empty, got %q", text, call.ID)
			}
			seen[call.ID] = true

			category, _ := call.Arguments["category"].(string)
			valid := false
			for _, c := range tools.JokeCategories {
				if category == c {
					valid = true
				}
			}
			if !valid {
				t.Errorf("route %q: unknown category %q", text, category)
			}
		}
	}
}

func TestRouteDelegatesToCompletionService(t *testing.T) {
	client := &mockClient{responses: []*llm.ChatResponse{
		{Message: llm.Message{Role: "assistant", Content: "The capital of France is Paris."}},
	}}
	router, registry := newTestRouter(t, client)

	msg, err := router.Route(context.Background(), userTurn("what is the capital of France?"))
	if err != nil {
		t.Fatalf("route: %v", err)
	}
	if msg.Content != "The capital of France is Paris." {
		t.Errorf("reply = %q", msg.Content)
	}
	if client.calls != 1 {
		t.Fatalf("completion service calls = %d, want 1", client.calls)
	}
	if len(client.lastTools) != len(registry.Specs()) {
		t.Errorf("tool catalog size = %d, want %d", len(client.lastTools), len(registry.Specs()))
	}
	if len(client.lastMessages) == 0 || client.lastMessages[0].Role != "system" {
		t.Error("delegation should prepend a system prompt")
	}
}

func TestRouteDelegatesAfterToolResults(t *testing.T) {
	// A second pass over tool results must reach the completion service
	// even when the result text would match a shortcut pattern.
	client := &mockClient{responses: []*llm.ChatResponse{
		{Message: llm.Message{Role: "assistant", Content: "Here are your 3 jokes!"}},
	}}
	router, _ := newTestRouter(t, client)

	state := []llm.Message{
		{Role: "user", Content: "tell me a joke"},
		{Role: "assistant", ToolCalls: []llm.ToolCall{{ID: "c1", Name: "get_joke"}}},
		{Role: "tool", Content: "😂 a joke with the digit 3 in it", ToolCallID: "c1"},
	}
	msg, err := router.Route(context.Background(), state)
	if err != nil {
		t.Fatalf("route: %v", err)
	}
	if client.calls != 1 {
		t.Fatalf("completion service calls = %d, want 1", client.calls)
	}
	if len(msg.ToolCalls) != 0 {
		t.Errorf("follow-up pass emitted %d tool calls", len(msg.ToolCalls))
	}
}

func TestRouteForwardsToolCallRequests(t *testing.T) {
	client := &mockClient{responses: []*llm.ChatResponse{
		{Message: llm.Message{Role: "assistant", ToolCalls: []llm.ToolCall{
			{ID: "call-7", Name: "calculator", Arguments: map[string]any{
				"first_num": 25.0, "second_num": 37.0, "operation": "add",
			}},
		}}},
	}}
	router, _ := newTestRouter(t, client)

	msg, err := router.Route(context.Background(), userTurn("calculate 25 plus 37"))
	if err != nil {
		t.Fatalf("route: %v", err)
	}
	if len(msg.ToolCalls) != 1 || msg.ToolCalls[0].Name != "calculator" {
		t.Fatalf("expected the calculator tool call forwarded as-is, got %+v", msg.ToolCalls)
	}
}

func TestRouteRateLimitedDelegationDegradesToText(t *testing.T) {
	client := &mockClient{err: &retry.RateLimitError{Service: "completion"}}
	router, _ := newTestRouter(t, client)

	msg, err := router.Route(context.Background(), userTurn("what's new?"))
	if err != nil {
		t.Fatalf("rate-limit exhaustion must not error: %v", err)
	}
	if msg.Role != "assistant" || msg.Content != retry.RateLimitMessage {
		t.Errorf("expected the rate-limit text as an assistant reply, got %+v", msg)
	}
	if client.calls != 2 {
		t.Errorf("completion service calls = %d, want 2 (retry budget)", client.calls)
	}
}

func TestRouteUpstreamUnavailable(t *testing.T) {
	client := &mockClient{err: &fakeTimeoutError{}}
	router, _ := newTestRouter(t, client)

	_, err := router.Route(context.Background(), userTurn("what's new?"))
	if !errors.Is(err, ErrUpstreamUnavailable) {
		t.Fatalf("expected ErrUpstreamUnavailable, got: %v", err)
	}
}

func TestRouteInternalFailureBecomesSystemMessage(t *testing.T) {
	client := &mockClient{err: errors.New("malformed response")}
	router, _ := newTestRouter(t, client)

	msg, err := router.Route(context.Background(), userTurn("what's new?"))
	if err != nil {
		t.Fatalf("internal failure must not escape the router: %v", err)
	}
	if msg.Role != "system" {
		t.Errorf("role = %q, want system", msg.Role)
	}
	if msg.Content == "" {
		t.Error("apology message has no text")
	}
}

// fakeTimeoutError satisfies net.Error with Timeout() == true.
type fakeTimeoutError struct{}

func (e *fakeTimeoutError) Error() string   { return "deadline exceeded" }
func (e *fakeTimeoutError) Timeout() bool   { return true }
func (e *fakeTimeoutError) Temporary() bool { return true }
