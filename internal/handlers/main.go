package handlers

import (
	"context"
	"fmt"
	"html/template"
	"log/slog"
	"time"

	legalwebui "github.com/MegaGrindStone/legal-web-ui"
	"github.com/MegaGrindStone/legal-web-ui/internal/models"
	"github.com/MegaGrindStone/legal-web-ui/internal/session"
	"github.com/tmaxmax/go-sse"
)

// Diagnostics provides read access to the recorded completion calls.
type Diagnostics interface {
	Records(ctx context.Context, limit int) ([]models.CompletionRecord, error)
}

// Main handles the web interface of the assistant, connecting the session manager with HTML templates
// and the server-sent events used to deliver replies to pending placeholders.
type Main struct {
	sseSrv    *sse.Server
	templates *template.Template

	manager     *session.Manager
	diagnostics Diagnostics

	logger *slog.Logger
}

const errLoggerKey = "err"

var funcMap = template.FuncMap{
	"markdown": models.RenderMarkdown,
	"clock": func(t time.Time) string {
		return t.Format("15:04")
	},
}

// NewMain creates a new Main instance with the provided session manager. It initializes the SSE server
// and parses the required HTML templates from the embedded filesystem. diagnostics may be nil, in which
// case the diagnostics endpoint reports an empty list.
func NewMain(manager *session.Manager, diagnostics Diagnostics, logger *slog.Logger) (Main, error) {
	// We parse templates from three distinct directories to separate layout, pages, and partial views
	tmpl, err := template.New("").Funcs(funcMap).ParseFS(
		legalwebui.TemplateFS,
		"templates/layout/*.html",
		"templates/pages/*.html",
		"templates/partials/*.html",
	)
	if err != nil {
		return Main{}, fmt.Errorf("failed to parse templates: %w", err)
	}

	return Main{
		sseSrv: &sse.Server{
			OnSession: func(s *sse.Session) (sse.Subscription, bool) {
				topics := []string{sse.DefaultTopic}

				// Placeholders subscribe to the topic of their own message id.
				messageID := s.Req.URL.Query().Get("message_id")
				if messageID != "" {
					topics = append(topics, messageIDTopic(messageID))
				}

				return sse.Subscription{
					Client:      s,
					LastEventID: s.LastEventID,
					Topics:      topics,
				}, true
			},
		},
		templates:   tmpl,
		manager:     manager,
		diagnostics: diagnostics,
		logger:      logger.With(slog.String("module", "handlers")),
	}, nil
}

func messageIDTopic(messageID string) string {
	return fmt.Sprintf("message-%s", messageID)
}

// Shutdown gracefully terminates the Main instance's SSE server. It broadcasts a close message to all
// connected clients and waits up to 5 seconds for connections to terminate. After the timeout, any
// remaining connections are forcefully closed.
func (m Main) Shutdown(ctx context.Context) error {
	e := &sse.Message{Type: sse.Type("closeChat")}
	// We create a close event that complies with SSE spec requiring data
	e.AppendData("bye")

	// We ignore the error here since we're shutting down anyway
	_ = m.sseSrv.Publish(e)

	ctx, cancel := context.WithTimeout(ctx, time.Second*5)
	defer cancel()

	return m.sseSrv.Shutdown(ctx)
}
