package services

import (
	"errors"

	"github.com/MegaGrindStone/legal-web-ui/internal/models"
)

// LLMParameters holds optional sampling parameters shared by the completion providers. A nil field
// leaves the provider default in place.
type LLMParameters struct {
	Temperature     *float32 `yaml:"temperature"`
	TopP            *float32 `yaml:"topP"`
	MaxOutputTokens *int     `yaml:"maxOutputTokens"`
}

// ErrMissingAPIKey is returned by providers that were configured without a credential.
var ErrMissingAPIKey = errors.New("api key is not configured")

const errLoggerKey = "err"

// conversationTurns drops messages that carry no text, such as an unresolved placeholder, since the
// providers reject empty turns.
func conversationTurns(history []models.Message) []models.Message {
	turns := make([]models.Message, 0, len(history))
	for _, msg := range history {
		if msg.Content == "" {
			continue
		}
		turns = append(turns, msg)
	}
	return turns
}
