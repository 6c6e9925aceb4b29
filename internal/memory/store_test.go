package memory

import (
	"database/sql"
	"testing"

	_ "modernc.org/sqlite"

	"github.com/oswin/parley/internal/llm"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	store, err := NewStore(db, nil)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return store
}

func TestAppendLoadRoundTrip(t *testing.T) {
	store := setupTestStore(t)

	first := []llm.Message{
		{Role: "user", Content: "tell me a joke"},
		{Role: "assistant", ToolCalls: []llm.ToolCall{
			{ID: "call-1", Name: "get_joke", Arguments: map[string]any{"category": "Pun"}},
		}},
	}
	second := []llm.Message{
		{Role: "tool", Content: "😂 a pun", ToolCallID: "call-1"},
		{Role: "assistant", Content: "Here you go!"},
	}

	if err := store.Append("thread-1", first); err != nil {
		t.Fatalf("append first batch: %v", err)
	}
	if err := store.Append("thread-1", second); err != nil {
		t.Fatalf("append second batch: %v", err)
	}

	got, err := store.Load("thread-1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	want := append(first, second...)
	if len(got) != len(want) {
		t.Fatalf("expected %d messages, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i].Role != want[i].Role {
			t.Errorf("message %d: role = %q, want %q", i, got[i].Role, want[i].Role)
		}
		if got[i].Content != want[i].Content {
			t.Errorf("message %d: content = %q, want %q", i, got[i].Content, want[i].Content)
		}
		if got[i].ToolCallID != want[i].ToolCallID {
			t.Errorf("message %d: tool_call_id = %q, want %q", i, got[i].ToolCallID, want[i].ToolCallID)
		}
	}

	// The tool-call payload must survive the JSON column intact.
	calls := got[1].ToolCalls
	if len(calls) != 1 {
		t.Fatalf("expected 1 tool call, got %d", len(calls))
	}
	if calls[0].ID != "call-1" || calls[0].Name != "get_joke" {
		t.Errorf("unexpected tool call: %+v", calls[0])
	}
	if calls[0].Arguments["category"] != "Pun" {
		t.Errorf("arguments = %v, want category Pun", calls[0].Arguments)
	}
}

func TestLoadUnknownThread(t *testing.T) {
	store := setupTestStore(t)

	got, err := store.Load("no-such-thread")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected empty history, got %d messages", len(got))
	}
}

func TestAppendEmptyBatch(t *testing.T) {
	store := setupTestStore(t)

	if err := store.Append("thread-1", nil); err != nil {
		t.Fatalf("append empty: %v", err)
	}
	ids, err := store.ListThreads()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(ids) != 0 {
		t.Errorf("empty append should not create a thread, got %v", ids)
	}
}

func TestAppendRequiresThreadID(t *testing.T) {
	store := setupTestStore(t)

	err := store.Append("", []llm.Message{{Role: "user", Content: "hi"}})
	if err == nil {
		t.Fatal("expected error for empty thread id")
	}
}

func TestListThreads(t *testing.T) {
	store := setupTestStore(t)

	for _, id := range []string{"a", "b", "c"} {
		if err := store.Append(id, []llm.Message{{Role: "user", Content: "hi"}}); err != nil {
			t.Fatalf("append %s: %v", id, err)
		}
	}

	ids, err := store.ListThreads()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(ids) != 3 {
		t.Fatalf("expected 3 threads, got %d", len(ids))
	}
	seen := make(map[string]bool)
	for _, id := range ids {
		seen[id] = true
	}
	for _, id := range []string{"a", "b", "c"} {
		if !seen[id] {
			t.Errorf("thread %q missing from listing %v", id, ids)
		}
	}
}

func TestDeleteThread(t *testing.T) {
	store := setupTestStore(t)

	if err := store.Append("doomed", []llm.Message{{Role: "user", Content: "hi"}}); err != nil {
		t.Fatalf("append: %v", err)
	}

	if !store.Delete("doomed") {
		t.Fatal("delete reported failure")
	}

	got, err := store.Load("doomed")
	if err != nil {
		t.Fatalf("load after delete: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected empty history after delete, got %d messages", len(got))
	}

	// Deleting again, or deleting a thread that never existed, is success.
	if !store.Delete("doomed") {
		t.Error("second delete reported failure")
	}
	if !store.Delete("never-existed") {
		t.Error("deleting unknown thread reported failure")
	}
}
