package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"tcmhub/internal/apperr"
	"tcmhub/internal/config"
	"tcmhub/internal/logger"

	"github.com/cloudwego/eino-ext/components/model/claude"
	"github.com/cloudwego/eino-ext/components/model/gemini"
	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"google.golang.org/genai"
)

// Generator is the part of an eino chat model the gateway needs.
type Generator interface {
	Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error)
}

// Gateway sends one prompt per call to the configured chat model. It does
// not retry and sets no deadline of its own; callers bound ctx.
type Gateway struct {
	model  Generator
	system string
	log    *logger.Logger
}

// NewGateway wraps an already constructed model.
func NewGateway(m Generator, systemInstruction string, log *logger.Logger) *Gateway {
	if systemInstruction == "" {
		systemInstruction = config.DefaultSystemInstruction
	}
	return &Gateway{
		model:  m,
		system: systemInstruction,
		log:    logger.OrNop(log).With("component", "AssistantGateway"),
	}
}

// NewFromConfig builds the chat model of the active provider.
func NewFromConfig(ctx context.Context, cfg *config.Config, log *logger.Logger) (*Gateway, error) {
	provider, provCfg := cfg.Provider()
	chatModel, err := newChatModel(ctx, provider, provCfg)
	if err != nil {
		return nil, err
	}
	return NewGateway(chatModel, cfg.Assistant.SystemInstruction, log), nil
}

func newChatModel(ctx context.Context, provider string, provCfg config.ProviderConfig) (model.ToolCallingChatModel, error) {
	if provCfg.APIKey == "" {
		return nil, fmt.Errorf("provider %s: api key not configured", provider)
	}

	var (
		chatModel model.ToolCallingChatModel
		err       error
	)
	switch provider {
	case "gemini":
		modelName := provCfg.Model
		if modelName == "" {
			modelName = config.DefaultGeminiModel
		}
		var client *genai.Client
		client, err = genai.NewClient(ctx, &genai.ClientConfig{
			APIKey:  provCfg.APIKey,
			Backend: genai.BackendGeminiAPI,
		})
		if err != nil {
			return nil, fmt.Errorf("gemini client: %w", err)
		}
		chatModel, err = gemini.NewChatModel(ctx, &gemini.Config{
			Client: client,
			Model:  modelName,
		})
	case "openai":
		chatModel, err = openai.NewChatModel(ctx, &openai.ChatModelConfig{
			BaseURL: provCfg.BaseURL,
			Model:   provCfg.Model,
			APIKey:  provCfg.APIKey,
		})
	case "claude":
		var baseURLPtr *string
		if provCfg.BaseURL != "" {
			baseURLPtr = &provCfg.BaseURL
		}
		chatModel, err = claude.NewChatModel(ctx, &claude.Config{
			APIKey:    provCfg.APIKey,
			Model:     provCfg.Model,
			BaseURL:   baseURLPtr,
			MaxTokens: 3000,
		})
	default:
		return nil, fmt.Errorf("invalid provider: %s", provider)
	}
	if err != nil {
		return nil, fmt.Errorf("init %s model: %w", provider, err)
	}
	return chatModel, nil
}

// Ask sends the fixed system instruction and prompt, returning the reply
// text. Every provider or transport failure, including an empty reply, is
// reported as apperr.ErrGatewayFailure; the cause is only logged.
func (g *Gateway) Ask(ctx context.Context, prompt string) (string, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return "", fmt.Errorf("%w: prompt is empty", apperr.ErrInvalidArgument)
	}
	if g.model == nil {
		return "", fmt.Errorf("no model configured: %w", apperr.ErrGatewayFailure)
	}

	resp, err := g.model.Generate(ctx, []*schema.Message{
		schema.SystemMessage(g.system),
		schema.UserMessage(prompt),
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			g.log.Warn("assistant call timed out", "error", err)
		} else {
			g.log.Error("assistant call failed", "error", err)
		}
		return "", fmt.Errorf("ask assistant: %w", apperr.ErrGatewayFailure)
	}
	if resp == nil || strings.TrimSpace(resp.Content) == "" {
		g.log.Warn("assistant returned empty reply")
		return "", fmt.Errorf("empty reply: %w", apperr.ErrGatewayFailure)
	}
	return resp.Content, nil
}
