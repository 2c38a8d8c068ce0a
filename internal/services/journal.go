package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/MegaGrindStone/legal-web-ui/internal/models"
	"github.com/MegaGrindStone/legal-web-ui/internal/session"
	"github.com/google/uuid"
)

// Journal stores diagnostic records of completion calls.
type Journal interface {
	Record(ctx context.Context, record models.CompletionRecord) error
}

// Journaled decorates a completer and records the outcome of every call into a Journal. Journal
// failures are logged and never change the outcome of the call.
type Journaled struct {
	next     session.Completer
	journal  Journal
	provider string
	model    string

	now func() time.Time

	logger *slog.Logger
}

// NewJournaled wraps next so that its calls are recorded into journal under provider and model.
func NewJournaled(next session.Completer, journal Journal, provider, model string, logger *slog.Logger) Journaled {
	return Journaled{
		next:     next,
		journal:  journal,
		provider: provider,
		model:    model,
		now:      time.Now,
		logger:   logger.With(slog.String("module", "journal")),
	}
}

// Complete implements session.Completer.
func (j Journaled) Complete(ctx context.Context, history []models.Message, prompt string) (models.Completion, error) {
	start := j.now()
	res, err := j.next.Complete(ctx, history, prompt)

	record := models.CompletionRecord{
		ID:        uuid.NewString(),
		Provider:  j.provider,
		Model:     j.model,
		StartedAt: start,
		Duration:  j.now().Sub(start),
		Turns:     len(conversationTurns(history)) + 1,
		Sources:   len(res.Sources),
	}
	if err != nil {
		record.Error = err.Error()
	}

	if jerr := j.journal.Record(context.WithoutCancel(ctx), record); jerr != nil {
		j.logger.Error("Failed to record completion",
			slog.String("recordID", record.ID),
			slog.String(errLoggerKey, jerr.Error()))
	}

	return res, err
}
