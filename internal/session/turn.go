package session

import (
	"context"

	"github.com/MegaGrindStone/legal-web-ui/internal/models"
)

// Turn is an accepted submission: the user message and the assistant placeholder as they were appended.
// The placeholder is resolved in the background; Done is closed once that has happened or the result
// was dropped because the session was replaced.
type Turn struct {
	User        models.Message
	Placeholder models.Message

	done    chan struct{}
	reply   models.Message
	applied bool
}

// Done returns a channel that is closed when the turn settles.
func (t *Turn) Done() <-chan struct{} {
	return t.done
}

// Reply returns the resolved placeholder and whether it was applied to the session. It is only
// meaningful after Done is closed; a dropped reply returns false.
func (t *Turn) Reply() (models.Message, bool) {
	select {
	case <-t.done:
		return t.reply, t.applied
	default:
		return models.Message{}, false
	}
}

// Wait blocks until the turn settles or ctx is done.
func (t *Turn) Wait(ctx context.Context) (models.Message, bool, error) {
	select {
	case <-t.done:
		return t.reply, t.applied, nil
	case <-ctx.Done():
		return models.Message{}, false, ctx.Err()
	}
}
