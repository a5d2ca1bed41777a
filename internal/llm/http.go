package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/bills-assistant/internal/common"
)

// maxReplyBytes caps how much of a provider reply is read. Chat replies for plans and
// bills are a few KB.
const maxReplyBytes = 1 << 20

// StatusError is a non-2xx reply from a chat completion endpoint.
type StatusError struct {
	Status     int
	Body       string
	RetryAfter time.Duration
}

func (e *StatusError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("llm endpoint returned %d, retry after %s", e.Status, e.RetryAfter)
	}
	return fmt.Sprintf("llm endpoint returned %d", e.Status)
}

// Retryable reports whether the provider asked to be called again later.
func (e *StatusError) Retryable() bool {
	return e.Status == http.StatusTooManyRequests || e.Status >= 500
}

// PostJSON posts body to url and returns the reply body. The caller's request id is
// forwarded as X-Request-ID so provider logs can be joined with ours.
func PostJSON(ctx context.Context, client *http.Client, url string, body any, headers map[string]string, logger *slog.Logger) ([]byte, error) {
	if client == nil {
		client = &http.Client{Timeout: 45 * time.Second}
	}
	reqID := common.RequestIDFromContext(ctx)
	if reqID == "" {
		reqID = uuid.NewString()
	}
	log := common.LoggerFrom(ctx, logger).With("req_id", reqID)
	start := time.Now()

	bs, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode chat request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(bs))
	if err != nil {
		return nil, fmt.Errorf("build chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", reqID)
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		log.Error("llm.http.send_error", "error", err, "elapsed_ms", common.ElapsedMS(start))
		return nil, err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			log.Warn("llm.http.close_error", "error", err)
		}
	}()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxReplyBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read chat reply: %w", err)
	}
	if len(raw) > maxReplyBytes {
		return nil, fmt.Errorf("chat reply exceeds %d bytes", maxReplyBytes)
	}
	log.Debug("llm.http.response", "status", resp.StatusCode, "request_bytes", len(bs), "reply_bytes", len(raw), "elapsed_ms", common.ElapsedMS(start))

	if resp.StatusCode/100 != 2 {
		return nil, &StatusError{
			Status:     resp.StatusCode,
			Body:       truncate(string(raw), 512),
			RetryAfter: retryAfter(resp.Header.Get("Retry-After")),
		}
	}
	return raw, nil
}

// retryAfter reads the seconds form of Retry-After, the one rate-limiting providers send.
func retryAfter(v string) time.Duration {
	secs, err := strconv.Atoi(v)
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}
