package api

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/oswin/parley/internal/agent"
	"github.com/oswin/parley/internal/auth"
	"github.com/oswin/parley/internal/config"
	"github.com/oswin/parley/internal/llm"
	"github.com/oswin/parley/internal/memory"
	"github.com/oswin/parley/internal/retry"
	"github.com/oswin/parley/internal/tools"
)

// staticClient always answers with the same text. The handler tests
// mostly ride the shortcut paths, so this only backs delegation.
type staticClient struct {
	reply string
}

func (c *staticClient) Chat(ctx context.Context, messages []llm.Message, toolSpecs []map[string]any) (*llm.ChatResponse, error) {
	return &llm.ChatResponse{Message: llm.Message{Role: "assistant", Content: c.reply}}, nil
}

func newTestServer(t *testing.T) (*httptest.Server, *memory.Store) {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	store, err := memory.NewStore(db, nil)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	registry, err := tools.NewRegistry(tools.Config{}, nil)
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}

	invoker := retry.New(1, time.Millisecond, nil)
	client := &staticClient{reply: "delegated answer"}
	router := agent.NewRouter(client, registry, invoker, nil)
	executor := agent.NewExecutor(registry, invoker, nil)
	loop := agent.NewLoop(router, executor, store, 0, nil)

	hash, err := auth.HashPassword("admin123")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	authMgr := auth.NewManager([]config.Credential{{Username: "admin", PasswordHash: hash}}, nil)

	server := NewServer("", 0, loop, store, registry, authMgr, nil)
	ts := httptest.NewServer(server.Handler())
	t.Cleanup(ts.Close)
	return ts, store
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	return resp
}

func decodeJSON(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func TestHealthAndVersion(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatal(err)
	}
	var health map[string]string
	decodeJSON(t, resp, &health)
	if health["status"] != "healthy" {
		t.Errorf("health = %v", health)
	}

	resp, err = http.Get(ts.URL + "/v1/version")
	if err != nil {
		t.Fatal(err)
	}
	var version map[string]string
	decodeJSON(t, resp, &version)
	if version["go_version"] == "" {
		t.Errorf("version = %v", version)
	}
}

func TestChatTurnAndThreadLifecycle(t *testing.T) {
	ts, _ := newTestServer(t)

	// The greeting shortcut answers without the completion service.
	resp := postJSON(t, ts.URL+"/v1/chat", ChatRequest{Message: "hey"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("chat status = %d", resp.StatusCode)
	}
	var chat ChatResponse
	decodeJSON(t, resp, &chat)
	if chat.ThreadID == "" {
		t.Fatal("no thread id assigned")
	}
	if chat.Reply == "" {
		t.Error("no reply text")
	}
	if len(chat.Messages) != 2 {
		t.Errorf("messages = %d, want 2 (user + reply)", len(chat.Messages))
	}

	// The turn is persisted and listed.
	resp, err := http.Get(ts.URL + "/v1/threads")
	if err != nil {
		t.Fatal(err)
	}
	var listing struct {
		Threads []string `json:"threads"`
	}
	decodeJSON(t, resp, &listing)
	if len(listing.Threads) != 1 || listing.Threads[0] != chat.ThreadID {
		t.Fatalf("threads = %v, want [%s]", listing.Threads, chat.ThreadID)
	}

	// A follow-up on the same thread extends the history.
	resp = postJSON(t, ts.URL+"/v1/chat", ChatRequest{ThreadID: chat.ThreadID, Message: "hey again"})
	var chat2 ChatResponse
	decodeJSON(t, resp, &chat2)
	if len(chat2.Messages) != 4 {
		t.Errorf("messages = %d, want 4 after second turn", len(chat2.Messages))
	}

	resp, err = http.Get(fmt.Sprintf("%s/v1/threads/%s", ts.URL, chat.ThreadID))
	if err != nil {
		t.Fatal(err)
	}
	var thread struct {
		Messages []llm.Message `json:"messages"`
	}
	decodeJSON(t, resp, &thread)
	if len(thread.Messages) != 4 {
		t.Errorf("stored messages = %d, want 4", len(thread.Messages))
	}

	// Export renders HTML.
	resp, err = http.Get(fmt.Sprintf("%s/v1/threads/%s/export", ts.URL, chat.ThreadID))
	if err != nil {
		t.Fatal(err)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("export content type = %q", ct)
	}
	resp.Body.Close()

	// Delete, then the listing is empty and deletion stays idempotent.
	req, _ := http.NewRequest(http.MethodDelete, fmt.Sprintf("%s/v1/threads/%s", ts.URL, chat.ThreadID), nil)
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	var deleted struct {
		Deleted bool `json:"deleted"`
	}
	decodeJSON(t, resp, &deleted)
	if !deleted.Deleted {
		t.Error("delete reported failure")
	}

	resp, err = http.Get(ts.URL + "/v1/threads")
	if err != nil {
		t.Fatal(err)
	}
	decodeJSON(t, resp, &listing)
	if len(listing.Threads) != 0 {
		t.Errorf("threads after delete = %v", listing.Threads)
	}
}

func TestChatValidation(t *testing.T) {
	ts, _ := newTestServer(t)

	resp := postJSON(t, ts.URL+"/v1/chat", ChatRequest{})
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("empty message status = %d, want 400", resp.StatusCode)
	}
}

func TestToolListing(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/v1/tools")
	if err != nil {
		t.Fatal(err)
	}
	var listing struct {
		Tools []struct {
			Name string `json:"name"`
		} `json:"tools"`
	}
	decodeJSON(t, resp, &listing)

	names := make(map[string]bool)
	for _, tool := range listing.Tools {
		names[tool.Name] = true
	}
	for _, want := range []string{"calculator", "get_joke", "fetch_weather"} {
		if !names[want] {
			t.Errorf("tool %q missing from listing", want)
		}
	}
}

func TestLogin(t *testing.T) {
	ts, _ := newTestServer(t)

	resp := postJSON(t, ts.URL+"/v1/login", LoginRequest{Username: "admin", Password: "admin123"})
	var ok struct {
		Success bool `json:"success"`
	}
	decodeJSON(t, resp, &ok)
	if resp.StatusCode != http.StatusOK || !ok.Success {
		t.Errorf("valid login: status=%d success=%v", resp.StatusCode, ok.Success)
	}

	resp = postJSON(t, ts.URL+"/v1/login", LoginRequest{Username: "admin", Password: "wrong"})
	decodeJSON(t, resp, &ok)
	if resp.StatusCode != http.StatusUnauthorized || ok.Success {
		t.Errorf("invalid login: status=%d success=%v", resp.StatusCode, ok.Success)
	}
}

func TestExportUnknownThread(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/v1/threads/nope/export")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}
