package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/MegaGrindStone/legal-web-ui/internal/models"
	"github.com/MegaGrindStone/legal-web-ui/internal/prompts"
	goopenai "github.com/sashabaranov/go-openai"
)

// OpenAI provides an implementation of the completion service for OpenAI compatible chat completion
// APIs. It has no search grounding, so replies never carry sources.
type OpenAI struct {
	model        string
	systemPrompt string

	params LLMParameters

	client     *goopenai.Client
	missingKey bool

	logger *slog.Logger
}

// NewOpenAI creates a new OpenAI instance with the specified API key, base URL, model name, and system
// prompt. An empty baseURL keeps the official endpoint, which requires apiKey; compatible servers behind
// a custom baseURL may run without one.
func NewOpenAI(apiKey, baseURL, model, systemPrompt string, params LLMParameters, logger *slog.Logger) OpenAI {
	cfg := goopenai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}

	o := OpenAI{
		model:        model,
		systemPrompt: systemPrompt,
		params:       params,
		client:       goopenai.NewClientWithConfig(cfg),
		missingKey:   apiKey == "" && baseURL == "",
		logger:       logger.With(slog.String("module", "openai")),
	}
	if o.missingKey {
		o.logger.Warn("OpenAI API key is not set, every completion will fail")
	}

	return o
}

func openAIMessages(systemPrompt string, history []models.Message, prompt string) []goopenai.ChatCompletionMessage {
	turns := conversationTurns(history)

	msgs := make([]goopenai.ChatCompletionMessage, 0, len(turns)+2)
	msgs = append(msgs, goopenai.ChatCompletionMessage{
		Role:    goopenai.ChatMessageRoleSystem,
		Content: systemPrompt,
	})
	for _, msg := range turns {
		role := goopenai.ChatMessageRoleUser
		if msg.Role == models.RoleAssistant {
			role = goopenai.ChatMessageRoleAssistant
		}
		msgs = append(msgs, goopenai.ChatCompletionMessage{
			Role:    role,
			Content: msg.Content,
		})
	}

	return append(msgs, goopenai.ChatCompletionMessage{
		Role:    goopenai.ChatMessageRoleUser,
		Content: prompt,
	})
}

// Complete is a wrapper around the OpenAI chat completion API.
func (o OpenAI) Complete(ctx context.Context, history []models.Message, prompt string) (models.Completion, error) {
	if o.missingKey {
		return models.Completion{}, ErrMissingAPIKey
	}

	req := o.chatRequest(openAIMessages(o.systemPrompt, history, prompt))

	reqJSON, err := json.Marshal(req)
	if err == nil {
		o.logger.Debug("Request", slog.String("req", string(reqJSON)))
	}

	resp, err := o.client.CreateChatCompletion(ctx, req)
	if err != nil {
		o.logger.Error("OpenAI API error", slog.String(errLoggerKey, err.Error()))
		return models.Completion{}, fmt.Errorf("error sending request: %w", err)
	}

	if len(resp.Choices) == 0 {
		err := errors.New("no choices found")
		o.logger.Error("OpenAI API error", slog.String(errLoggerKey, err.Error()))
		return models.Completion{}, err
	}

	text := resp.Choices[0].Message.Content
	if text == "" {
		text = prompts.EmptyReply
	}

	return models.Completion{Text: text}, nil
}

func (o OpenAI) chatRequest(messages []goopenai.ChatCompletionMessage) goopenai.ChatCompletionRequest {
	req := goopenai.ChatCompletionRequest{
		Model:    o.model,
		Messages: messages,
	}

	if o.params.Temperature != nil {
		req.Temperature = *o.params.Temperature
	}
	if o.params.TopP != nil {
		req.TopP = *o.params.TopP
	}
	if o.params.MaxOutputTokens != nil {
		req.MaxCompletionTokens = *o.params.MaxOutputTokens
	}

	return req
}
