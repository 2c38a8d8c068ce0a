package handlers

import (
	"log/slog"
	"net/http"

	"github.com/MegaGrindStone/legal-web-ui/internal/models"
	"github.com/MegaGrindStone/legal-web-ui/internal/prompts"
	"github.com/MegaGrindStone/legal-web-ui/internal/session"
)

type homePageData struct {
	Templates []templateItem
	Chatbox   chatboxData
	Input     inputData
}

type chatboxData struct {
	Messages []models.Message
}

type inputData struct {
	Draft   string
	Pending bool
}

type templateItem struct {
	Index int
	prompts.Template
}

func templateItems() []templateItem {
	tmpls := prompts.Templates()
	items := make([]templateItem, len(tmpls))
	for i, t := range tmpls {
		items[i] = templateItem{Index: i, Template: t}
	}
	return items
}

func chatboxFrom(s session.Session) chatboxData {
	return chatboxData{Messages: s.Messages}
}

func inputFrom(s session.Session) inputData {
	return inputData{Draft: s.Draft, Pending: s.Pending}
}

// HandleHome renders the full page: the sidebar with the prompt templates, the messages of the current
// session and the input box holding the current draft.
func (m Main) HandleHome(w http.ResponseWriter, r *http.Request) {
	s := m.manager.Snapshot()

	data := homePageData{
		Templates: templateItems(),
		Chatbox:   chatboxFrom(s),
		Input:     inputFrom(s),
	}

	m.render(w, "home.html", data)
}

func (m Main) render(w http.ResponseWriter, name string, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := m.templates.ExecuteTemplate(w, name, data); err != nil {
		m.logger.Error("Failed to render template",
			slog.String("template", name),
			slog.String(errLoggerKey, err.Error()))
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
