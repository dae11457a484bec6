package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"helix/internal/config"
	"helix/internal/metrics"
	"helix/internal/models"

	"github.com/cloudwego/eino-ext/components/model/claude"
	"github.com/cloudwego/eino-ext/components/model/gemini"
	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"google.golang.org/genai"
)

// Temperature is the fixed sampling temperature for every completion.
const Temperature float32 = 0.7

const (
	defaultOpenRouterModel = "openai/gpt-4o-mini"
	defaultOpenAIModel     = "gpt-4o-mini"
	defaultClaudeModel     = "claude-3-5-haiku-latest"
	defaultGeminiModel     = "gemini-2.0-flash"
	claudeMaxTokens        = 1024
	appTitle               = "helix"
)

// ErrNotConfigured is returned when no API key is available; callers fall back.
var ErrNotConfigured = errors.New("completion provider not configured")

// Client sends role-tagged transcripts to one chat model.
type Client struct {
	model    model.BaseChatModel
	provider string
}

// NewClient builds the chat model selected by cfg.
func NewClient(ctx context.Context, cfg config.CompletionConfig) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, ErrNotConfigured
	}
	chatModel, err := newChatModel(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("init %s model: %w", cfg.Provider, err)
	}
	return &Client{model: chatModel, provider: cfg.Provider}, nil
}

// NewWithModel wraps an already built model.
func NewWithModel(provider string, chatModel model.BaseChatModel) *Client {
	return &Client{model: chatModel, provider: provider}
}

func (c *Client) Provider() string {
	return c.provider
}

func newChatModel(ctx context.Context, cfg config.CompletionConfig) (model.BaseChatModel, error) {
	modelName := cfg.Model
	switch cfg.Provider {
	case "openrouter", "":
		if modelName == "" {
			modelName = defaultOpenRouterModel
		}
		baseURL := cfg.BaseURL
		if baseURL == "" {
			baseURL = config.DefaultOpenRouterURL
		}
		return openai.NewChatModel(ctx, &openai.ChatModelConfig{
			BaseURL: baseURL,
			Model:   modelName,
			APIKey:  cfg.APIKey,
			HTTPClient: &http.Client{
				Transport: &titleTransport{title: appTitle, next: http.DefaultTransport},
			},
		})
	case "openai":
		if modelName == "" {
			modelName = defaultOpenAIModel
		}
		return openai.NewChatModel(ctx, &openai.ChatModelConfig{
			BaseURL: cfg.BaseURL,
			Model:   modelName,
			APIKey:  cfg.APIKey,
		})
	case "claude":
		if modelName == "" {
			modelName = defaultClaudeModel
		}
		var baseURLPtr *string
		if cfg.BaseURL != "" {
			baseURLPtr = &cfg.BaseURL
		}
		return claude.NewChatModel(ctx, &claude.Config{
			APIKey:    cfg.APIKey,
			Model:     modelName,
			BaseURL:   baseURLPtr,
			MaxTokens: claudeMaxTokens,
		})
	case "gemini":
		if modelName == "" {
			modelName = defaultGeminiModel
		}
		client, err := genai.NewClient(ctx, &genai.ClientConfig{
			APIKey:  cfg.APIKey,
			Backend: genai.BackendGeminiAPI,
		})
		if err != nil {
			return nil, fmt.Errorf("gemini client: %w", err)
		}
		return gemini.NewChatModel(ctx, &gemini.Config{
			Client: client,
			Model:  modelName,
		})
	default:
		return nil, fmt.Errorf("invalid provider: %s", cfg.Provider)
	}
}

// titleTransport tags every request with the application title header.
type titleTransport struct {
	title string
	next  http.RoundTripper
}

func (t *titleTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.Header.Set("X-Title", t.title)
	return t.next.RoundTrip(req)
}

// Complete sends turns in order and returns the first choice's content.
func (c *Client) Complete(ctx context.Context, turns []models.Turn) (string, error) {
	if c == nil || c.model == nil {
		return "", ErrNotConfigured
	}
	start := time.Now()
	out, err := c.model.Generate(ctx, toSchema(turns), model.WithTemperature(Temperature))
	status := "ok"
	if err != nil {
		status = "error"
	}
	metrics.RecordProviderCall(c.provider, status, time.Since(start))
	if err != nil {
		return "", fmt.Errorf("generate completion: %w", err)
	}
	if out == nil {
		return "", nil
	}
	return out.Content, nil
}

func toSchema(turns []models.Turn) []*schema.Message {
	messages := make([]*schema.Message, 0, len(turns))
	for _, turn := range turns {
		var role schema.RoleType
		switch turn.Role {
		case models.RoleSystem:
			role = schema.System
		case models.RoleAssistant:
			role = schema.Assistant
		default:
			role = schema.User
		}
		messages = append(messages, &schema.Message{Role: role, Content: turn.Content})
	}
	return messages
}
