package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
)

// Supported providers.
const (
	ProviderOllama    = "ollama"
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

// LevelTrace is below Debug, used for wire-level payload logging.
const LevelTrace = slog.Level(-8)

// ProviderConfig describes one LLM backend.
type ProviderConfig struct {
	Provider string
	BaseURL  string
	APIKey   string
	// DefaultModel is used for Ping.
	DefaultModel string
}

// LangChainClient implements Client on top of langchaingo. langchaingo
// binds a model name at construction time, so one backend instance is
// created per model on first use and cached.
type LangChainClient struct {
	cfg    ProviderConfig
	logger *slog.Logger

	mu     sync.Mutex
	models map[string]llms.Model

	// newModel is swapped out in tests.
	newModel func(cfg ProviderConfig, model string) (llms.Model, error)
}

// NewLangChainClient validates cfg and returns a client for it.
func NewLangChainClient(cfg ProviderConfig, logger *slog.Logger) (*LangChainClient, error) {
	switch cfg.Provider {
	case ProviderOllama:
	case ProviderOpenAI, ProviderAnthropic:
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("%s API key required", cfg.Provider)
		}
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %q", cfg.Provider)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &LangChainClient{
		cfg:      cfg,
		logger:   logger,
		models:   make(map[string]llms.Model),
		newModel: buildModel,
	}, nil
}

func buildModel(cfg ProviderConfig, model string) (llms.Model, error) {
	switch cfg.Provider {
	case ProviderOllama:
		opts := []ollama.Option{ollama.WithModel(model)}
		if cfg.BaseURL != "" {
			opts = append(opts, ollama.WithServerURL(cfg.BaseURL))
		}
		m, err := ollama.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("create ollama model: %w", err)
		}
		return m, nil

	case ProviderOpenAI:
		opts := []openai.Option{openai.WithToken(cfg.APIKey), openai.WithModel(model)}
		if cfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
		}
		m, err := openai.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("create openai model: %w", err)
		}
		return m, nil

	case ProviderAnthropic:
		m, err := anthropic.New(anthropic.WithToken(cfg.APIKey), anthropic.WithModel(model))
		if err != nil {
			return nil, fmt.Errorf("create anthropic model: %w", err)
		}
		return m, nil
	}
	return nil, fmt.Errorf("unsupported LLM provider: %q", cfg.Provider)
}

func (c *LangChainClient) model(name string) (llms.Model, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if m, ok := c.models[name]; ok {
		return m, nil
	}
	m, err := c.newModel(c.cfg, name)
	if err != nil {
		return nil, err
	}
	c.models[name] = m
	return m, nil
}

// Chat sends messages to model and returns the first choice.
func (c *LangChainClient) Chat(ctx context.Context, model string, messages []Message, opts CallOptions) (*ChatResponse, error) {
	if model == "" {
		model = c.cfg.DefaultModel
	}
	m, err := c.model(model)
	if err != nil {
		return nil, err
	}

	content := make([]llms.MessageContent, 0, len(messages))
	for _, msg := range messages {
		content = append(content, llms.TextParts(chatRole(msg.Role), msg.Content))
	}

	var callOpts []llms.CallOption
	if opts.JSON {
		callOpts = append(callOpts, llms.WithJSONMode())
	}
	if opts.Temperature > 0 {
		callOpts = append(callOpts, llms.WithTemperature(opts.Temperature))
	}
	if opts.MaxTokens > 0 {
		callOpts = append(callOpts, llms.WithMaxTokens(opts.MaxTokens))
	}

	c.logger.Log(ctx, LevelTrace, "llm request", "provider", c.cfg.Provider, "model", model, "messages", len(messages))

	start := time.Now()
	resp, err := m.GenerateContent(ctx, content, callOpts...)
	if err != nil {
		return nil, fmt.Errorf("%s chat: %w", c.cfg.Provider, err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("no response choices")
	}

	choice := resp.Choices[0]
	out := &ChatResponse{
		Model:        model,
		Message:      Assistant(choice.Content),
		InputTokens:  genInt(choice.GenerationInfo, "PromptTokens", "InputTokens"),
		OutputTokens: genInt(choice.GenerationInfo, "CompletionTokens", "OutputTokens"),
		Duration:     time.Since(start),
	}

	c.logger.Log(ctx, LevelTrace, "llm response", "model", model, "content", choice.Content)
	c.logger.Debug("llm call complete", "model", model,
		"input_tokens", out.InputTokens, "output_tokens", out.OutputTokens,
		"elapsed", out.Duration.Round(time.Millisecond))
	return out, nil
}

// Ping issues a one-token completion against the default model.
func (c *LangChainClient) Ping(ctx context.Context) error {
	if c.cfg.DefaultModel == "" {
		return errors.New("no default model configured")
	}
	_, err := c.Chat(ctx, c.cfg.DefaultModel, []Message{User("ping")}, CallOptions{MaxTokens: 1})
	return err
}

func chatRole(role string) llms.ChatMessageType {
	switch role {
	case RoleSystem:
		return llms.ChatMessageTypeSystem
	case RoleAssistant:
		return llms.ChatMessageTypeAI
	default:
		return llms.ChatMessageTypeHuman
	}
}

// genInt reads the first present integer among keys from a provider's
// generation info map. Providers disagree on key names and number types.
func genInt(info map[string]any, keys ...string) int {
	for _, k := range keys {
		switch v := info[k].(type) {
		case int:
			return v
		case int32:
			return int(v)
		case int64:
			return int(v)
		case float64:
			return int(v)
		}
	}
	return 0
}
