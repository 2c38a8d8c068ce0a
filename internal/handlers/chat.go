package handlers

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"slices"
	"strconv"
	"strings"

	"github.com/MegaGrindStone/legal-web-ui/internal/models"
	"github.com/MegaGrindStone/legal-web-ui/internal/prompts"
	"github.com/MegaGrindStone/legal-web-ui/internal/session"
	"github.com/go-chi/chi/v5"
	"github.com/tmaxmax/go-sse"
)

// SSE event type carrying a rendered, resolved message.
var messagesSSEType = sse.Type("message")

// HandleChats submits the "message" form field to the session manager. When the submission is
// accepted it renders the user message and the searching placeholder; the placeholder is replaced later
// through SSE once the reply arrives. A blank message or a submission while another one is pending is
// ignored and answered with 204 No Content.
func (m Main) HandleChats(w http.ResponseWriter, r *http.Request) {
	msg := r.FormValue("message")

	turn, ok := m.manager.Submit(r.Context(), msg)
	if !ok {
		m.logger.Debug("Submission ignored", slog.Bool("blank", strings.TrimSpace(msg) == ""))
		w.WriteHeader(http.StatusNoContent)
		return
	}

	go m.publishReply(turn)

	var sb strings.Builder
	for _, msg := range []models.Message{turn.User, turn.Placeholder} {
		if err := m.templates.ExecuteTemplate(&sb, "message", msg); err != nil {
			m.logger.Error("Failed to render message",
				slog.String("messageID", msg.ID),
				slog.String(errLoggerKey, err.Error()))
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = io.WriteString(w, sb.String())
}

// publishReply waits for the turn to settle and pushes the rendered reply to the placeholder's topic.
// A reply dropped because the session was replaced is not published.
func (m Main) publishReply(turn *session.Turn) {
	<-turn.Done()

	reply, ok := turn.Reply()
	if !ok {
		return
	}

	var sb strings.Builder
	if err := m.templates.ExecuteTemplate(&sb, "message", reply); err != nil {
		m.logger.Error("Failed to render reply",
			slog.String("messageID", reply.ID),
			slog.String(errLoggerKey, err.Error()))
		return
	}

	msg := sse.Message{
		Type: messagesSSEType,
	}
	msg.AppendData(sb.String())
	if err := m.sseSrv.Publish(&msg, messageIDTopic(reply.ID)); err != nil {
		m.logger.Error("Failed to publish reply",
			slog.String("messageID", reply.ID),
			slog.String(errLoggerKey, err.Error()))
	}
}

// HandleMessage renders a single message of the current session. Pending placeholders poll it as a
// fallback for a missed SSE event; while the message is still searching it answers 204 No Content so the
// placeholder stays in place.
func (m Main) HandleMessage(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "messageID")

	s := m.manager.Snapshot()
	idx := slices.IndexFunc(s.Messages, func(msg models.Message) bool {
		return msg.ID == id
	})
	if idx == -1 {
		http.Error(w, "Message not found", http.StatusNotFound)
		return
	}
	if s.Messages[idx].IsSearching {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	m.render(w, "message", s.Messages[idx])
}

// HandleNewSession starts a fresh consultation and renders the chatbox with the welcome message
// together with an emptied input box.
func (m Main) HandleNewSession(w http.ResponseWriter, _ *http.Request) {
	s := m.manager.NewSession()
	m.logger.Info("New session started")

	m.render(w, "session", homePageData{
		Chatbox: chatboxFrom(s),
		Input:   inputFrom(s),
	})
}

// HandleTemplate selects the prompt template addressed by the "index" URL parameter and renders the
// input box prefilled with its prompt.
func (m Main) HandleTemplate(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		http.Error(w, "Invalid template index", http.StatusBadRequest)
		return
	}

	tmpl, err := prompts.Lookup(index)
	if err != nil {
		if errors.Is(err, prompts.ErrTemplateNotFound) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	m.manager.SelectTemplate(tmpl.Prompt)

	m.render(w, "chat_input", inputData{
		Draft:   m.manager.Draft(),
		Pending: m.manager.Pending(),
	})
}

// HandleSSE serves the server-sent events stream.
func (m Main) HandleSSE(w http.ResponseWriter, r *http.Request) {
	m.sseSrv.ServeHTTP(w, r)
}
