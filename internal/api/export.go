package api

import (
	"bytes"
	"fmt"
	"net/http"
	"strings"

	"github.com/yuin/goldmark"

	"github.com/oswin/parley/internal/llm"
)

// handleThreadExport renders a thread as a standalone HTML transcript.
// Message content is treated as markdown.
func (s *Server) handleThreadExport(w http.ResponseWriter, r *http.Request) {
	threadID := r.PathValue("id")
	msgs, err := s.store.Load(threadID)
	if err != nil {
		s.logger.Error("load thread failed", "thread", threadID, "error", err)
		http.Error(w, "thread unavailable", http.StatusInternalServerError)
		return
	}
	if len(msgs) == 0 {
		http.Error(w, "thread not found", http.StatusNotFound)
		return
	}

	page, err := renderTranscript(threadID, msgs)
	if err != nil {
		s.logger.Error("render transcript failed", "thread", threadID, "error", err)
		http.Error(w, "failed to render transcript", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if _, err := w.Write([]byte(page)); err != nil {
		s.logger.Debug("failed to write transcript", "error", err)
	}
}

// renderTranscript builds a markdown transcript and converts it to HTML.
func renderTranscript(threadID string, msgs []llm.Message) (string, error) {
	var md strings.Builder
	fmt.Fprintf(&md, "# Conversation %s\n\n", threadID)

	for _, m := range msgs {
		switch m.Role {
		case "user":
			md.WriteString("## You\n\n")
		case "assistant":
			md.WriteString("## Parley\n\n")
		case "tool":
			md.WriteString("## Tool result\n\n")
		default:
			md.WriteString("## System\n\n")
		}

		if m.Content != "" {
			md.WriteString(m.Content)
			md.WriteString("\n\n")
		}
		for _, call := range m.ToolCalls {
			fmt.Fprintf(&md, "*requested tool `%s`*\n\n", call.Name)
		}
	}

	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(md.String()), &buf); err != nil {
		return "", err
	}

	// Wrap in minimal HTML envelope.
	page := fmt.Sprintf(`<!DOCTYPE html>
<html><head><meta charset="utf-8"><title>Conversation %s</title></head>
<body style="font-family: sans-serif; font-size: 14px; line-height: 1.5; max-width: 48rem; margin: 2rem auto;">
%s
</body></html>`, threadID, buf.String())

	return page, nil
}
