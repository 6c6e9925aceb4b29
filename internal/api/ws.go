package api

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/oswin/parley/internal/agent"
	"github.com/oswin/parley/internal/llm"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
}

// wsEvent is one frame on the chat stream. Type is "message" for each
// appended conversation message, "done" when the turn completes, or
// "error" when it fails.
type wsEvent struct {
	Type     string       `json:"type"`
	ThreadID string       `json:"thread_id,omitempty"`
	Message  *llm.Message `json:"message,omitempty"`
	Reply    string       `json:"reply,omitempty"`
	Code     string       `json:"code,omitempty"`
	Error    string       `json:"error,omitempty"`
}

// handleChatWS streams a conversation over a websocket. The client
// sends ChatRequest frames; for each one the server pushes every
// message the turn appends as it happens, then a terminal done or
// error frame. The connection stays open for further turns.
func (s *Server) handleChatWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	for {
		var req ChatRequest
		if err := conn.ReadJSON(&req); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Debug("websocket read failed", "error", err)
			}
			return
		}
		if req.Message == "" {
			if err := conn.WriteJSON(wsEvent{Type: "error", Code: "bad_request", Error: "message is required"}); err != nil {
				return
			}
			continue
		}

		threadID := req.ThreadID
		if threadID == "" {
			id, err := uuid.NewV7()
			if err != nil {
				_ = conn.WriteJSON(wsEvent{Type: "error", Code: "internal_error", Error: "failed to allocate thread id"})
				continue
			}
			threadID = id.String()
		}

		if err := s.streamTurn(r, conn, threadID, req.Message); err != nil {
			return
		}
	}
}

// streamTurn runs one turn, pushing each appended message as a frame.
// Returns an error only when the connection is unusable.
func (s *Server) streamTurn(r *http.Request, conn *websocket.Conn, threadID, text string) error {
	history, err := s.store.Load(threadID)
	if err != nil {
		s.logger.Error("load thread failed", "thread", threadID, "error", err)
		history = nil
	}

	userMsg := llm.Message{Role: "user", Content: text}
	if err := s.store.Append(threadID, []llm.Message{userMsg}); err != nil {
		s.logger.Error("persist user message failed", "thread", threadID, "error", err)
	}

	var writeErr error
	observe := func(m llm.Message) {
		if writeErr != nil {
			return
		}
		writeErr = conn.WriteJSON(wsEvent{Type: "message", ThreadID: threadID, Message: &m})
	}

	state := append(history, userMsg)
	state, runErr := s.loop.RunWithObserver(r.Context(), threadID, state, observe)
	if writeErr != nil {
		return writeErr
	}

	switch {
	case runErr == nil:
		return conn.WriteJSON(wsEvent{Type: "done", ThreadID: threadID, Reply: finalReply(state)})
	case errors.Is(runErr, agent.ErrRecursionExceeded):
		return conn.WriteJSON(wsEvent{
			Type: "error", ThreadID: threadID, Code: "recursion_exceeded",
			Error: "conversation exceeded its hop budget; please start a new thread",
		})
	case errors.Is(runErr, agent.ErrUpstreamUnavailable):
		return conn.WriteJSON(wsEvent{
			Type: "error", ThreadID: threadID, Code: "upstream_unavailable",
			Error: "the completion service is unavailable; please try again later",
		})
	default:
		return conn.WriteJSON(wsEvent{Type: "error", ThreadID: threadID, Code: "internal_error", Error: "internal error"})
	}
}
