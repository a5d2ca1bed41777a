// Package einochat adapts an eino chat model (a local Ollama by default) to llm.Completer.
package einochat

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/ollama"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/joseph-ayodele/bills-assistant/internal/common"
	"github.com/joseph-ayodele/bills-assistant/internal/llm"
)

var errEmptyResponse = errors.New("empty chat model response")

type Client struct {
	chat   model.BaseChatModel
	name   string
	logger *slog.Logger
}

// NewOllama builds a client over an Ollama chat model.
func NewOllama(ctx context.Context, cfg common.LLMConfig, ollamaURL string, logger *slog.Logger) (*Client, error) {
	chat, err := ollama.NewChatModel(ctx, &ollama.ChatModelConfig{
		BaseURL: ollamaURL,
		Model:   cfg.Model,
		Timeout: cfg.Timeout,
	})
	if err != nil {
		return nil, common.WrapError(err, "create ollama chat model")
	}
	return New(chat, cfg.Model, logger), nil
}

// New wraps any eino chat model.
func New(chat model.BaseChatModel, name string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{chat: chat, name: name, logger: logger}
}

func (c *Client) Complete(ctx context.Context, req llm.CompletionRequest) (string, error) {
	start := time.Now()
	log := common.LoggerFrom(ctx, c.logger)

	msgs := make([]*schema.Message, 0, len(req.Messages)+1)
	for _, m := range req.Messages {
		switch m.Role {
		case llm.RoleSystem:
			msgs = append(msgs, schema.SystemMessage(m.Content))
		case llm.RoleAssistant:
			msgs = append(msgs, schema.AssistantMessage(m.Content, nil))
		default:
			msgs = append(msgs, schema.UserMessage(m.Content))
		}
	}
	if req.JSON {
		msgs = append(msgs, schema.SystemMessage("Output JSON only. No markdown."))
	}

	resp, err := c.chat.Generate(ctx, msgs)
	if err != nil {
		log.Error("llm.eino.generate_error", "model", c.name, "error", err, "elapsed_ms", common.ElapsedMS(start))
		return "", err
	}
	if resp == nil {
		return "", errEmptyResponse
	}
	content := strings.TrimSpace(resp.Content)
	log.Info("llm.eino.ok", "model", c.name, "content_len", len(content), "elapsed_ms", common.ElapsedMS(start))
	return content, nil
}
