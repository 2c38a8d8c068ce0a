package services

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/MegaGrindStone/legal-web-ui/internal/models"
	"github.com/MegaGrindStone/legal-web-ui/internal/prompts"
	"google.golang.org/genai"
)

// Gemini implements the completion service on top of the Gemini API with the Google Search tool
// enabled, so replies carry grounding metadata with the cited web pages.
type Gemini struct {
	model        string
	systemPrompt string

	params LLMParameters

	client *genai.Client

	logger *slog.Logger
}

// GeminiOption configures a Gemini instance.
type GeminiOption func(*genai.ClientConfig)

// WithGeminiBaseURL points the client to a different API endpoint.
func WithGeminiBaseURL(baseURL string) GeminiOption {
	return func(cfg *genai.ClientConfig) {
		cfg.HTTPOptions.BaseURL = baseURL
	}
}

// WithGeminiHTTPClient replaces the HTTP client used for API calls.
func WithGeminiHTTPClient(client *http.Client) GeminiOption {
	return func(cfg *genai.ClientConfig) {
		cfg.HTTPClient = client
	}
}

// NewGemini creates a Gemini instance. An empty apiKey does not fail: the instance is created
// without a client and every Complete call returns ErrMissingAPIKey.
func NewGemini(
	ctx context.Context,
	apiKey, model, systemPrompt string,
	params LLMParameters,
	logger *slog.Logger,
	opts ...GeminiOption,
) (Gemini, error) {
	g := Gemini{
		model:        model,
		systemPrompt: systemPrompt,
		params:       params,
		logger:       logger.With(slog.String("module", "gemini")),
	}

	if apiKey == "" {
		g.logger.Warn("Gemini API key is not set, every completion will fail")
		return g, nil
	}

	cfg := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return Gemini{}, fmt.Errorf("error creating gemini client: %w", err)
	}
	g.client = client

	return g, nil
}

// Complete sends the conversation to the Gemini API and returns the reply text with the grounding
// sources in upstream order.
func (g Gemini) Complete(ctx context.Context, history []models.Message, prompt string) (models.Completion, error) {
	if g.client == nil {
		g.logger.Error("Gemini API error", slog.String(errLoggerKey, ErrMissingAPIKey.Error()))
		return models.Completion{}, ErrMissingAPIKey
	}

	res, err := g.client.Models.GenerateContent(ctx, g.model, geminiContents(history, prompt), g.contentConfig())
	if err != nil {
		g.logger.Error("Gemini API error", slog.String(errLoggerKey, err.Error()))
		return models.Completion{}, fmt.Errorf("error sending request: %w", err)
	}

	text := res.Text()
	if text == "" {
		text = prompts.EmptyReply
	}

	return models.Completion{
		Text:    text,
		Sources: groundingSources(res),
	}, nil
}

func (g Gemini) contentConfig() *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(g.systemPrompt, genai.RoleUser),
		Tools: []*genai.Tool{
			{GoogleSearch: &genai.GoogleSearch{}},
		},
		Temperature: g.params.Temperature,
		TopP:        g.params.TopP,
	}
	if g.params.MaxOutputTokens != nil {
		cfg.MaxOutputTokens = int32(*g.params.MaxOutputTokens)
	}
	return cfg
}

func geminiContents(history []models.Message, prompt string) []*genai.Content {
	turns := conversationTurns(history)

	contents := make([]*genai.Content, 0, len(turns)+1)
	for _, msg := range turns {
		role := genai.Role(genai.RoleUser)
		if msg.Role == models.RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(msg.Content, role))
	}

	return append(contents, genai.NewContentFromText(prompt, genai.RoleUser))
}

// groundingSources extracts the web citations of the first candidate. Chunks without a web reference,
// or whose reference lacks either the URI or the title, are skipped.
func groundingSources(res *genai.GenerateContentResponse) []models.Source {
	if res == nil || len(res.Candidates) == 0 {
		return nil
	}
	meta := res.Candidates[0].GroundingMetadata
	if meta == nil {
		return nil
	}

	var sources []models.Source
	for _, chunk := range meta.GroundingChunks {
		if chunk == nil || chunk.Web == nil {
			continue
		}
		if chunk.Web.URI == "" || chunk.Web.Title == "" {
			continue
		}
		sources = append(sources, models.Source{
			Title: chunk.Web.Title,
			URI:   chunk.Web.URI,
		})
	}
	return sources
}
