package api

import (
	"strings"
	"testing"

	"github.com/gorilla/websocket"
)

func TestChatWebsocketStream(t *testing.T) {
	ts, _ := newTestServer(t)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/v1/chat/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	if resp != nil {
		resp.Body.Close()
	}

	if err := conn.WriteJSON(ChatRequest{Message: "hey"}); err != nil {
		t.Fatalf("write: %v", err)
	}

	// Greeting turn: one appended assistant message, then done.
	var first wsEvent
	if err := conn.ReadJSON(&first); err != nil {
		t.Fatalf("read: %v", err)
	}
	if first.Type != "message" || first.Message == nil || first.Message.Role != "assistant" {
		t.Fatalf("first frame = %+v, want an assistant message", first)
	}
	threadID := first.ThreadID
	if threadID == "" {
		t.Fatal("no thread id on message frame")
	}

	var done wsEvent
	if err := conn.ReadJSON(&done); err != nil {
		t.Fatalf("read done: %v", err)
	}
	if done.Type != "done" || done.Reply == "" {
		t.Fatalf("terminal frame = %+v, want done with reply", done)
	}
	if done.ThreadID != threadID {
		t.Errorf("done thread = %q, want %q", done.ThreadID, threadID)
	}

	// The connection survives for a second turn on the same thread.
	if err := conn.WriteJSON(ChatRequest{ThreadID: threadID, Message: "how are you?"}); err != nil {
		t.Fatalf("write second turn: %v", err)
	}
	var again wsEvent
	if err := conn.ReadJSON(&again); err != nil {
		t.Fatalf("read second turn: %v", err)
	}
	if again.Type != "message" {
		t.Errorf("second turn frame = %+v", again)
	}
}

func TestChatWebsocketRejectsEmptyMessage(t *testing.T) {
	ts, _ := newTestServer(t)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/v1/chat/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	if resp != nil {
		resp.Body.Close()
	}

	if err := conn.WriteJSON(ChatRequest{}); err != nil {
		t.Fatalf("write: %v", err)
	}
	var ev wsEvent
	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatalf("read: %v", err)
	}
	if ev.Type != "error" || ev.Code != "bad_request" {
		t.Errorf("frame = %+v, want bad_request error", ev)
	}
}
