package services

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/MegaGrindStone/legal-web-ui/internal/models"
	"github.com/MegaGrindStone/legal-web-ui/internal/prompts"
	"github.com/ollama/ollama/api"
)

// Ollama provides an implementation of the completion service for a local Ollama server. It has no
// search grounding, so replies never carry sources.
type Ollama struct {
	host         string
	model        string
	systemPrompt string

	params LLMParameters

	client *api.Client

	logger *slog.Logger
}

// NewOllama creates a new Ollama instance with the specified host URL and model name. The host
// parameter should be a valid URL pointing to an Ollama server.
func NewOllama(host, model, systemPrompt string, params LLMParameters, logger *slog.Logger) (Ollama, error) {
	u, err := url.Parse(host)
	if err != nil {
		return Ollama{}, fmt.Errorf("invalid ollama host %q: %w", host, err)
	}

	return Ollama{
		host:         host,
		model:        model,
		systemPrompt: systemPrompt,
		params:       params,
		client:       api.NewClient(u, &http.Client{}),
		logger:       logger.With(slog.String("module", "ollama")),
	}, nil
}

func ollamaMessages(systemPrompt string, history []models.Message, prompt string) []api.Message {
	turns := conversationTurns(history)

	msgs := make([]api.Message, 0, len(turns)+2)
	msgs = append(msgs, api.Message{
		Role:    "system",
		Content: systemPrompt,
	})
	for _, msg := range turns {
		msgs = append(msgs, api.Message{
			Role:    string(msg.Role),
			Content: msg.Content,
		})
	}

	return append(msgs, api.Message{
		Role:    string(models.RoleUser),
		Content: prompt,
	})
}

// Complete sends the conversation to the Ollama chat endpoint without streaming and returns the reply.
func (o Ollama) Complete(ctx context.Context, history []models.Message, prompt string) (models.Completion, error) {
	f := false
	req := api.ChatRequest{
		Model:    o.model,
		Messages: ollamaMessages(o.systemPrompt, history, prompt),
		Stream:   &f,
		Options:  o.options(),
	}

	var text string
	if err := o.client.Chat(ctx, &req, func(res api.ChatResponse) error {
		text += res.Message.Content
		return nil
	}); err != nil {
		o.logger.Error("Ollama API error", slog.String(errLoggerKey, err.Error()))
		return models.Completion{}, fmt.Errorf("error sending request: %w", err)
	}

	if text == "" {
		text = prompts.EmptyReply
	}

	return models.Completion{Text: text}, nil
}

func (o Ollama) options() map[string]any {
	opts := map[string]any{}
	if o.params.Temperature != nil {
		opts["temperature"] = *o.params.Temperature
	}
	if o.params.TopP != nil {
		opts["top_p"] = *o.params.TopP
	}
	if o.params.MaxOutputTokens != nil {
		opts["num_predict"] = *o.params.MaxOutputTokens
	}
	if len(opts) == 0 {
		return nil
	}
	return opts
}
