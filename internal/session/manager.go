// Package session implements the conversation session manager: it owns the ordered message list and
// the pending flag, inserts the optimistic user turn and assistant placeholder, calls the completion
// service and patches the placeholder with the reply or a fixed apology.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/MegaGrindStone/legal-web-ui/internal/models"
	"github.com/MegaGrindStone/legal-web-ui/internal/prompts"
	"github.com/google/uuid"
)

// Completer is the boundary to the external completion service. History holds the turns preceding the
// new user message, prompt is the new user text. Implementations return the generated text and the
// cited sources in upstream order; deduplication is done by the Manager.
type Completer interface {
	Complete(ctx context.Context, history []models.Message, prompt string) (models.Completion, error)
}

// Session is a snapshot of the state owned by a Manager.
type Session struct {
	Messages []models.Message `json:"messages"`
	Pending  bool             `json:"pending"`
	// Draft is the text suggested for the next submission, set by a template selection.
	Draft string `json:"draft"`
}

// Manager serializes every mutation of a single Session. At most one completion call is outstanding at
// a time: Submit is rejected while the session is pending.
type Manager struct {
	completer Completer
	timeout   time.Duration
	logger    *slog.Logger

	newID func() string
	now   func() time.Time

	mu         sync.Mutex
	session    Session
	generation uint64
}

// Option configures a Manager.
type Option func(*Manager)

// WithTimeout bounds every completion call. Zero disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(m *Manager) {
		m.timeout = d
	}
}

// WithIDGenerator replaces the uuid based message id generator.
func WithIDGenerator(fn func() string) Option {
	return func(m *Manager) {
		m.newID = fn
	}
}

// WithClock replaces time.Now.
func WithClock(fn func() time.Time) Option {
	return func(m *Manager) {
		m.now = fn
	}
}

const errLoggerKey = "err"

// NewManager creates a Manager whose session holds the welcome message.
func NewManager(completer Completer, logger *slog.Logger, opts ...Option) *Manager {
	m := &Manager{
		completer: completer,
		logger:    logger.With(slog.String("module", "session")),
		newID:     uuid.NewString,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.session.Messages = []models.Message{m.welcome()}
	return m
}

func (m *Manager) welcome() models.Message {
	return models.Message{
		ID:        m.newID(),
		Role:      models.RoleAssistant,
		Content:   prompts.Welcome,
		Timestamp: m.now(),
	}
}

// Submit appends the user message and an assistant placeholder, then resolves the placeholder in the
// background. It returns false, leaving the session untouched, when userText is blank or another
// submission is still pending.
//
// The completion call runs with a context detached from ctx cancellation, so it survives the caller
// returning; ctx values are kept for logging.
func (m *Manager) Submit(ctx context.Context, userText string) (*Turn, bool) {
	if strings.TrimSpace(userText) == "" {
		return nil, false
	}

	m.mu.Lock()
	if m.session.Pending {
		m.mu.Unlock()
		m.logger.Debug("Submission rejected, request pending")
		return nil, false
	}

	history := models.CloneMessages(m.session.Messages)

	um := models.Message{
		ID:        m.newID(),
		Role:      models.RoleUser,
		Content:   userText,
		Timestamp: m.now(),
	}
	m.session.Messages = append(m.session.Messages, um)
	m.session.Pending = true

	am := models.Message{
		ID:          m.newID(),
		Role:        models.RoleAssistant,
		Timestamp:   m.now(),
		IsSearching: true,
	}
	for am.ID == um.ID {
		am.ID = m.newID()
	}
	m.session.Messages = append(m.session.Messages, am)
	m.session.Draft = ""

	gen := m.generation
	m.mu.Unlock()

	t := &Turn{
		User:        um,
		Placeholder: am.Clone(),
		done:        make(chan struct{}),
	}

	go m.resolve(context.WithoutCancel(ctx), t, gen, history, userText)

	return t, true
}

func (m *Manager) resolve(ctx context.Context, t *Turn, gen uint64, history []models.Message, prompt string) {
	defer close(t.done)

	if m.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.timeout)
		defer cancel()
	}

	res, err := m.complete(ctx, history, prompt)

	m.mu.Lock()
	defer m.mu.Unlock()

	if gen != m.generation {
		m.logger.Debug("Dropping reply for a replaced session", slog.String("messageID", t.Placeholder.ID))
		return
	}
	idx := slices.IndexFunc(m.session.Messages, func(msg models.Message) bool {
		return msg.ID == t.Placeholder.ID
	})
	if idx == -1 {
		m.logger.Debug("Dropping reply for a missing placeholder", slog.String("messageID", t.Placeholder.ID))
		return
	}

	msg := &m.session.Messages[idx]
	if err != nil {
		m.logger.Warn("Completion failed",
			slog.String("messageID", msg.ID),
			slog.String(errLoggerKey, err.Error()))
		msg.Content = prompts.ErrorReply
		msg.GroundingSources = nil
	} else {
		msg.Content = res.Text
		msg.GroundingSources = models.DedupeSources(res.Sources)
	}
	msg.IsSearching = false
	m.session.Pending = false

	t.reply = msg.Clone()
	t.applied = true
}

// complete calls the completer in its own goroutine so that an expired ctx resolves the turn even when
// the completer ignores cancellation. A panic in the completer is returned as an error.
func (m *Manager) complete(ctx context.Context, history []models.Message, prompt string) (models.Completion, error) {
	type result struct {
		res models.Completion
		err error
	}

	ch := make(chan result, 1)
	go func() {
		var r result
		defer func() {
			if p := recover(); p != nil {
				r.err = fmt.Errorf("completer panicked: %v", p)
			}
			ch <- r
		}()
		r.res, r.err = m.completer.Complete(ctx, history, prompt)
	}()

	select {
	case r := <-ch:
		return r.res, r.err
	case <-ctx.Done():
		return models.Completion{}, fmt.Errorf("completion aborted: %w", ctx.Err())
	}
}

// NewSession replaces the messages with a fresh welcome message and clears the pending flag and the
// draft. An outstanding request is not cancelled; its reply is dropped once it arrives.
func (m *Manager) NewSession() Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.generation++
	m.session = Session{
		Messages: []models.Message{m.welcome()},
	}
	return m.snapshot()
}

// SelectTemplate sets the draft for the next submission. It does not touch the messages.
func (m *Manager) SelectTemplate(promptPrefix string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.session.Draft = promptPrefix
}

// Draft returns the text suggested for the next submission.
func (m *Manager) Draft() string {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.session.Draft
}

// Pending reports whether a completion call is outstanding.
func (m *Manager) Pending() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.session.Pending
}

// Snapshot returns a deep copy of the current session.
func (m *Manager) Snapshot() Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.snapshot()
}

func (m *Manager) snapshot() Session {
	return Session{
		Messages: models.CloneMessages(m.session.Messages),
		Pending:  m.session.Pending,
		Draft:    m.session.Draft,
	}
}
