package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/MegaGrindStone/legal-web-ui/internal/services"
	"github.com/MegaGrindStone/legal-web-ui/internal/session"
	"gopkg.in/yaml.v3"
)

const (
	configEnvKey = "LEGALWEBUI_CONFIG"

	defaultPort              = "8080"
	defaultCompletionTimeout = 2 * time.Minute
	defaultJournalLimit      = 500
	defaultGeminiModel       = "gemini-3-flash-preview"
	defaultOpenAIModel       = "gpt-4o-mini"
)

type llmConfig interface {
	completer(ctx context.Context, systemPrompt string, logger *slog.Logger) (session.Completer, error)
	provider() string
	model() string
}

// BaseLLMConfig contains the common fields for all LLM configurations.
type BaseLLMConfig struct {
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`

	services.LLMParameters `yaml:",inline"`
}

type config struct {
	Port              string        `yaml:"port"`
	LogLevel          slog.Level    `yaml:"logLevel"`
	CompletionTimeout time.Duration `yaml:"completionTimeout"`
	JournalPath       string        `yaml:"journalPath"`
	JournalLimit      int           `yaml:"journalLimit"`
	AllowedOrigins    []string      `yaml:"allowedOrigins"`
	LLM               llmConfig     `yaml:"llm"`
}

type geminiConfig struct {
	BaseLLMConfig `yaml:",inline"`
	APIKey        string `yaml:"apiKey"`
	BaseURL       string `yaml:"baseURL"`
}

type openAIConfig struct {
	BaseLLMConfig `yaml:",inline"`
	APIKey        string `yaml:"apiKey"`
	BaseURL       string `yaml:"baseURL"`
}

type anthropicConfig struct {
	BaseLLMConfig `yaml:",inline"`
	APIKey        string `yaml:"apiKey"`
	BaseURL       string `yaml:"baseURL"`
}

type ollamaConfig struct {
	BaseLLMConfig `yaml:",inline"`
	Host          string `yaml:"host"`
}

func defaultConfig() config {
	return config{
		Port:              defaultPort,
		LogLevel:          slog.LevelInfo,
		CompletionTimeout: defaultCompletionTimeout,
		JournalLimit:      defaultJournalLimit,
		LLM: &geminiConfig{
			BaseLLMConfig: BaseLLMConfig{Provider: "gemini", Model: defaultGeminiModel},
		},
	}
}

func (c *config) UnmarshalYAML(value *yaml.Node) error {
	var rawConfig struct {
		Port              string         `yaml:"port"`
		LogLevel          string         `yaml:"logLevel"`
		CompletionTimeout string         `yaml:"completionTimeout"`
		JournalPath       string         `yaml:"journalPath"`
		JournalLimit      int            `yaml:"journalLimit"`
		AllowedOrigins    []string       `yaml:"allowedOrigins"`
		LLM               map[string]any `yaml:"llm"`
	}

	if err := value.Decode(&rawConfig); err != nil {
		return err
	}

	if rawConfig.Port != "" {
		c.Port = rawConfig.Port
	}
	if rawConfig.LogLevel != "" {
		if err := c.LogLevel.UnmarshalText([]byte(rawConfig.LogLevel)); err != nil {
			return fmt.Errorf("invalid logLevel: %w", err)
		}
	}
	if rawConfig.CompletionTimeout != "" {
		d, err := time.ParseDuration(rawConfig.CompletionTimeout)
		if err != nil {
			return fmt.Errorf("invalid completionTimeout: %w", err)
		}
		if d < 0 {
			return fmt.Errorf("completionTimeout must not be negative")
		}
		c.CompletionTimeout = d
	}
	if rawConfig.JournalPath != "" {
		c.JournalPath = rawConfig.JournalPath
	}
	if rawConfig.JournalLimit < 0 {
		return fmt.Errorf("journalLimit must not be negative")
	}
	if rawConfig.JournalLimit > 0 {
		c.JournalLimit = rawConfig.JournalLimit
	}
	c.AllowedOrigins = rawConfig.AllowedOrigins

	if rawConfig.LLM == nil {
		return nil
	}

	llmProvider, ok := rawConfig.LLM["provider"].(string)
	if !ok {
		return fmt.Errorf("llm provider is required")
	}

	llmRawYAML, err := yaml.Marshal(rawConfig.LLM)
	if err != nil {
		return err
	}

	var llm llmConfig
	switch llmProvider {
	case "gemini":
		llm = &geminiConfig{}
	case "openai":
		llm = &openAIConfig{}
	case "anthropic":
		llm = &anthropicConfig{}
	case "ollama":
		llm = &ollamaConfig{}
	default:
		return fmt.Errorf("unknown llm provider: %s", llmProvider)
	}

	if err := yaml.Unmarshal(llmRawYAML, llm); err != nil {
		return err
	}

	c.LLM = llm

	return nil
}

// configPath returns the config file location: LEGALWEBUI_CONFIG when set, otherwise config.yaml in the
// legalwebui directory of the user config dir.
func configPath() (string, error) {
	if p := os.Getenv(configEnvKey); p != "" {
		return p, nil
	}

	cfgDir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("error getting user config dir: %w", err)
	}
	return filepath.Join(cfgDir, "legalwebui", "config.yaml"), nil
}

// loadConfig reads the config file at path on top of the defaults. A missing file yields the defaults.
func loadConfig(path string) (config, error) {
	cfg := defaultConfig()

	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return config{}, fmt.Errorf("error opening config file: %w", err)
	}
	defer f.Close()

	if err := yaml.NewDecoder(f).Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return config{}, fmt.Errorf("error decoding config file: %w", err)
	}

	return cfg, nil
}

// firstEnv returns the first non-empty value among the given environment variables.
func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(os.Getenv(k)); v != "" {
			return v
		}
	}
	return ""
}

func (b BaseLLMConfig) provider() string {
	return b.Provider
}

func (b BaseLLMConfig) model() string {
	return b.Model
}

func (g geminiConfig) completer(ctx context.Context, systemPrompt string, logger *slog.Logger) (session.Completer, error) {
	model := g.Model
	if model == "" {
		model = defaultGeminiModel
	}

	apiKey := g.APIKey
	if apiKey == "" {
		apiKey = firstEnv("API_KEY", "GEMINI_API_KEY")
	}

	var opts []services.GeminiOption
	if g.BaseURL != "" {
		opts = append(opts, services.WithGeminiBaseURL(g.BaseURL))
	}

	return services.NewGemini(ctx, apiKey, model, systemPrompt, g.LLMParameters, logger, opts...)
}

func (g geminiConfig) model() string {
	if g.Model == "" {
		return defaultGeminiModel
	}
	return g.Model
}

func (o openAIConfig) completer(_ context.Context, systemPrompt string, logger *slog.Logger) (session.Completer, error) {
	model := o.Model
	if model == "" {
		model = defaultOpenAIModel
	}

	apiKey := o.APIKey
	if apiKey == "" {
		apiKey = firstEnv("API_KEY", "OPENAI_API_KEY")
	}

	return services.NewOpenAI(apiKey, o.BaseURL, model, systemPrompt, o.LLMParameters, logger), nil
}

func (o openAIConfig) model() string {
	if o.Model == "" {
		return defaultOpenAIModel
	}
	return o.Model
}

func (a anthropicConfig) completer(_ context.Context, systemPrompt string, logger *slog.Logger) (session.Completer, error) {
	if a.Model == "" {
		return nil, fmt.Errorf("model is required")
	}

	apiKey := a.APIKey
	if apiKey == "" {
		apiKey = firstEnv("API_KEY", "ANTHROPIC_API_KEY")
	}

	return services.NewAnthropic(apiKey, a.BaseURL, a.Model, systemPrompt, a.LLMParameters, logger), nil
}

func (o ollamaConfig) completer(_ context.Context, systemPrompt string, logger *slog.Logger) (session.Completer, error) {
	if o.Model == "" {
		return nil, fmt.Errorf("model is required")
	}

	host := o.Host
	if host == "" {
		host = os.Getenv("OLLAMA_HOST")
	}
	if host == "" {
		host = "http://localhost:11434"
	}

	return services.NewOllama(host, o.Model, systemPrompt, o.LLMParameters, logger)
}
