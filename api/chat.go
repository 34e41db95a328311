package api

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"

	"github.com/medicech/tesouro-quant/internal/advisor"
	"github.com/medicech/tesouro-quant/internal/catalog"
	"github.com/medicech/tesouro-quant/internal/llm"
)

// ChatRequest is the body for POST /api/v1/chat.
type ChatRequest struct {
	Message string        `json:"message"`
	History []ChatMessage `json:"history,omitempty"`
}

// ChatMessage represents a single chat message in history.
type ChatMessage struct {
	Role    string `json:"role"` // "user" or "assistant"
	Content string `json:"content"`
}

// ChatResponse is the body returned by POST /api/v1/chat.
type ChatResponse struct {
	Content  string    `json:"content"` // markdown
	HTML     string    `json:"html"`
	Provider string    `json:"provider"`
	Model    string    `json:"model"`
	Tokens   int       `json:"tokens"`
	BaseDate time.Time `json:"base_date"`
}

// markdown renders assistant answers; GFM adds the tables the answers use.
var markdown = goldmark.New(
	goldmark.WithExtensions(extension.GFM),
	goldmark.WithRendererOptions(html.WithHardWraps()),
)

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if s.advisor == nil {
		writeError(w, http.StatusServiceUnavailable, "assistant not configured; set a Gemini key or an Ollama URL")
		return
	}
	var req ChatRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Message == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Minute)
	defer cancel()

	var history []llm.Message
	for _, m := range req.History {
		switch m.Role {
		case "user":
			history = append(history, llm.UserMessage(m.Content))
		case "assistant":
			history = append(history, llm.AssistantMessage(m.Content))
		}
	}

	ans, err := s.advisor.Ask(ctx, req.Message, history)
	if err != nil {
		switch {
		case errors.Is(err, advisor.ErrEmptyQuestion):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, catalog.ErrNoSnapshot):
			writeError(w, http.StatusServiceUnavailable, err.Error())
		default:
			writeError(w, http.StatusBadGateway, err.Error())
		}
		return
	}

	writeOK(w, ChatResponse{
		Content:  ans.Content,
		HTML:     renderMarkdown(ans.Content),
		Provider: ans.Provider,
		Model:    ans.Model,
		Tokens:   ans.Tokens,
		BaseDate: ans.BaseDate,
	})
}

// renderMarkdown converts markdown to HTML, returning "" on failure.
func renderMarkdown(src string) string {
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(src), &buf); err != nil {
		return ""
	}
	return buf.String()
}
