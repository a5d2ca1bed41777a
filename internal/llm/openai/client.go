package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joseph-ayodele/bills-assistant/internal/common"
	"github.com/joseph-ayodele/bills-assistant/internal/llm"
)

var errNoChoices = errors.New("no choices in openai response")

// Complete implements llm.Completer using text-only chat/completions.
func (c *Client) Complete(ctx context.Context, req llm.CompletionRequest) (string, error) {
	start := time.Now()
	log := common.LoggerFrom(ctx, c.logger)

	if err := c.limiter.Wait(ctx); err != nil {
		log.Warn("llm.openai.rate_limited", "error", err)
		return "", fmt.Errorf("rate limiter: %w", err)
	}

	messages := make([]map[string]any, 0, len(req.Messages))
	for _, m := range req.Messages {
		messages = append(messages, map[string]any{"role": string(m.Role), "content": m.Content})
	}
	body := map[string]any{
		"model":       c.cfg.Model,
		"temperature": c.cfg.Temperature,
		"messages":    messages,
	}
	if req.JSON {
		body["response_format"] = map[string]any{"type": "json_object"}
	}

	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/chat/completions"
	headers := map[string]string{}
	if c.cfg.APIKey != "" {
		headers["Authorization"] = "Bearer " + c.cfg.APIKey
	}
	raw, err := llm.PostJSON(ctx, c.http, endpoint, body, headers, c.logger)
	if err != nil {
		log.Error("llm.openai.http_error", "model", c.cfg.Model, "error", err, "elapsed_ms", common.ElapsedMS(start))
		return "", err
	}

	var cc struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(raw, &cc); err != nil {
		log.Error("llm.openai.decode_error", "error", err, "raw_bytes", len(raw), "elapsed_ms", common.ElapsedMS(start))
		return "", fmt.Errorf("decode openai response: %w", err)
	}
	if len(cc.Choices) == 0 {
		log.Error("llm.openai.no_choices", "elapsed_ms", common.ElapsedMS(start))
		return "", errNoChoices
	}

	content := strings.TrimSpace(cc.Choices[0].Message.Content)
	log.Info("llm.openai.ok", "model", c.cfg.Model, "content_len", len(content), "elapsed_ms", common.ElapsedMS(start))
	return content, nil
}
