package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/MegaGrindStone/legal-web-ui/internal/models"
	"github.com/MegaGrindStone/legal-web-ui/internal/prompts"
	"github.com/tmaxmax/go-sse"
)

// Anthropic provides an implementation of the completion service for the Anthropic Messages API. The
// reply is streamed and collected into a single completion; it has no search grounding, so replies never
// carry sources.
type Anthropic struct {
	apiKey       string
	baseURL      string
	model        string
	systemPrompt string

	params LLMParameters

	client *http.Client

	logger *slog.Logger
}

type anthropicChatRequest struct {
	Model       string             `json:"model"`
	Messages    []anthropicMessage `json:"messages"`
	System      string             `json:"system,omitempty"`
	MaxTokens   int                `json:"max_tokens"`
	Temperature *float32           `json:"temperature,omitempty"`
	TopP        *float32           `json:"top_p,omitempty"`
	Stream      bool               `json:"stream"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicStreamResponse struct {
	Type  string `json:"type"`
	Delta struct {
		Text string `json:"text"`
	} `json:"delta"`
}

type anthropicError struct {
	Type  string `json:"type"`
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

const (
	anthropicAPIEndpoint    = "https://api.anthropic.com/v1"
	anthropicAPIVersion     = "2023-06-01"
	anthropicDefaultMaxToks = 4096
)

// NewAnthropic creates a new Anthropic instance. An empty baseURL keeps the official endpoint.
func NewAnthropic(apiKey, baseURL, model, systemPrompt string, params LLMParameters, logger *slog.Logger) Anthropic {
	if baseURL == "" {
		baseURL = anthropicAPIEndpoint
	}

	a := Anthropic{
		apiKey:       apiKey,
		baseURL:      strings.TrimSuffix(baseURL, "/"),
		model:        model,
		systemPrompt: systemPrompt,
		params:       params,
		client:       &http.Client{},
		logger:       logger.With(slog.String("module", "anthropic")),
	}
	if apiKey == "" {
		a.logger.Warn("Anthropic API key is not set, every completion will fail")
	}

	return a
}

// anthropicMessages converts the conversation into Messages API turns. The API expects the first turn
// to come from the user, so leading assistant messages such as the welcome message are dropped.
func anthropicMessages(history []models.Message, prompt string) []anthropicMessage {
	turns := conversationTurns(history)
	for len(turns) > 0 && turns[0].Role == models.RoleAssistant {
		turns = turns[1:]
	}

	msgs := make([]anthropicMessage, 0, len(turns)+1)
	for _, msg := range turns {
		msgs = append(msgs, anthropicMessage{
			Role:    string(msg.Role),
			Content: msg.Content,
		})
	}
	return append(msgs, anthropicMessage{Role: string(models.RoleUser), Content: prompt})
}

// Complete streams the reply from the Anthropic API and returns the collected text.
func (a Anthropic) Complete(ctx context.Context, history []models.Message, prompt string) (models.Completion, error) {
	if a.apiKey == "" {
		return models.Completion{}, ErrMissingAPIKey
	}

	reqBody := anthropicChatRequest{
		Model:       a.model,
		Messages:    anthropicMessages(history, prompt),
		System:      a.systemPrompt,
		MaxTokens:   anthropicDefaultMaxToks,
		Temperature: a.params.Temperature,
		TopP:        a.params.TopP,
		Stream:      true,
	}
	if a.params.MaxOutputTokens != nil {
		reqBody.MaxTokens = *a.params.MaxOutputTokens
	}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return models.Completion{}, fmt.Errorf("error marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/messages", bytes.NewBuffer(jsonBody))
	if err != nil {
		return models.Completion{}, fmt.Errorf("error creating request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", a.apiKey)
	req.Header.Set("anthropic-version", anthropicAPIVersion)

	resp, err := a.client.Do(req)
	if err != nil {
		a.logger.Error("Anthropic API error", slog.String(errLoggerKey, err.Error()))
		return models.Completion{}, fmt.Errorf("error sending request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		err := anthropicStatusError(resp)
		a.logger.Error("Anthropic API error", slog.String(errLoggerKey, err.Error()))
		return models.Completion{}, err
	}

	var sb strings.Builder
	for ev, err := range sse.Read(resp.Body, nil) {
		if err != nil {
			return models.Completion{}, fmt.Errorf("error reading response: %w", err)
		}
		switch ev.Type {
		case "error":
			var e anthropicError
			if err := json.Unmarshal([]byte(ev.Data), &e); err != nil {
				return models.Completion{}, fmt.Errorf("error unmarshaling error: %w", err)
			}
			err := fmt.Errorf("anthropic error %s: %s", e.Error.Type, e.Error.Message)
			a.logger.Error("Anthropic API error", slog.String(errLoggerKey, err.Error()))
			return models.Completion{}, err
		case "content_block_delta":
			var res anthropicStreamResponse
			if err := json.Unmarshal([]byte(ev.Data), &res); err != nil {
				return models.Completion{}, fmt.Errorf("error unmarshaling response: %w", err)
			}
			sb.WriteString(res.Delta.Text)
		}
		if ev.Type == "message_stop" {
			break
		}
	}

	text := sb.String()
	if text == "" {
		text = prompts.EmptyReply
	}

	return models.Completion{Text: text}, nil
}

func anthropicStatusError(resp *http.Response) error {
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return fmt.Errorf("anthropic status %d: error reading body: %w", resp.StatusCode, err)
	}

	var e anthropicError
	if err := json.Unmarshal(body, &e); err == nil && e.Error.Message != "" {
		return fmt.Errorf("anthropic status %d, %s: %s", resp.StatusCode, e.Error.Type, e.Error.Message)
	}
	return fmt.Errorf("anthropic status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
}
