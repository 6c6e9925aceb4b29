package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/oswin/parley/internal/agent"
	"github.com/oswin/parley/internal/llm"
)

// ChatRequest is the payload for POST /v1/chat. An empty ThreadID
// starts a fresh thread.
type ChatRequest struct {
	ThreadID string `json:"thread_id,omitempty"`
	Message  string `json:"message"`
}

// ChatResponse carries the updated conversation after one turn.
type ChatResponse struct {
	ThreadID string        `json:"thread_id"`
	Reply    string        `json:"reply"`
	Messages []llm.Message `json:"messages"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Message == "" {
		http.Error(w, "message is required", http.StatusBadRequest)
		return
	}

	threadID := req.ThreadID
	if threadID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			http.Error(w, "failed to allocate thread id", http.StatusInternalServerError)
			return
		}
		threadID = id.String()
	}

	state, err := s.runTurn(r.Context(), threadID, req.Message)
	if err != nil {
		s.writeTurnError(w, threadID, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, ChatResponse{
		ThreadID: threadID,
		Reply:    finalReply(state),
		Messages: state,
	}, s.logger)
}

// runTurn rehydrates the thread, persists the user message, and drives
// the orchestration loop.
func (s *Server) runTurn(ctx context.Context, threadID, text string) ([]llm.Message, error) {
	history, err := s.store.Load(threadID)
	if err != nil {
		// A broken store must not kill the conversation; start from the
		// incoming message alone.
		s.logger.Error("load thread failed", "thread", threadID, "error", err)
		history = nil
	}

	userMsg := llm.Message{Role: "user", Content: text}
	if err := s.store.Append(threadID, []llm.Message{userMsg}); err != nil {
		s.logger.Error("persist user message failed", "thread", threadID, "error", err)
	}

	state := append(history, userMsg)
	return s.loop.Run(ctx, threadID, state)
}

func (s *Server) writeTurnError(w http.ResponseWriter, threadID string, err error) {
	w.Header().Set("Content-Type", "application/json")
	switch {
	case errors.Is(err, agent.ErrRecursionExceeded):
		w.WriteHeader(http.StatusConflict)
		writeJSON(w, map[string]any{
			"error":     "conversation exceeded its hop budget; please start a new thread",
			"code":      "recursion_exceeded",
			"thread_id": threadID,
		}, s.logger)
	case errors.Is(err, agent.ErrUpstreamUnavailable):
		w.WriteHeader(http.StatusServiceUnavailable)
		writeJSON(w, map[string]any{
			"error":     "the completion service is unavailable; please try again later",
			"code":      "upstream_unavailable",
			"thread_id": threadID,
		}, s.logger)
	default:
		w.WriteHeader(http.StatusInternalServerError)
		writeJSON(w, map[string]any{
			"error":     "internal error",
			"code":      "internal_error",
			"thread_id": threadID,
		}, s.logger)
	}
}

// finalReply extracts the last assistant text from the conversation.
func finalReply(state []llm.Message) string {
	for i := len(state) - 1; i >= 0; i-- {
		if state[i].Role == "assistant" && state[i].Content != "" {
			return state[i].Content
		}
	}
	return ""
}

func (s *Server) handleThreadList(w http.ResponseWriter, r *http.Request) {
	ids, err := s.store.ListThreads()
	if err != nil {
		// Listing trouble degrades to an empty set.
		s.logger.Error("list threads failed", "error", err)
		ids = nil
	}
	if ids == nil {
		ids = []string{}
	}
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]any{"threads": ids}, s.logger)
}

func (s *Server) handleThreadGet(w http.ResponseWriter, r *http.Request) {
	threadID := r.PathValue("id")
	msgs, err := s.store.Load(threadID)
	if err != nil {
		s.logger.Error("load thread failed", "thread", threadID, "error", err)
		msgs = nil
	}
	if msgs == nil {
		msgs = []llm.Message{}
	}
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]any{
		"thread_id": threadID,
		"messages":  msgs,
	}, s.logger)
}

func (s *Server) handleThreadDelete(w http.ResponseWriter, r *http.Request) {
	threadID := r.PathValue("id")
	ok := s.store.Delete(threadID)
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]any{
		"thread_id": threadID,
		"deleted":   ok,
	}, s.logger)
}
