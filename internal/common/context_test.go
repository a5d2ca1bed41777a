package common

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func TestLoggerFrom(t *testing.T) {
	var buf bytes.Buffer
	base := slog.New(slog.NewTextHandler(&buf, nil))

	ctx := WithUserID(WithRequestID(context.Background(), "req-1"), "u1")
	LoggerFrom(ctx, base).Info("router.route.ok")

	line := buf.String()
	for _, want := range []string{"req_id=req-1", "user_id=u1", "msg=router.route.ok"} {
		if !strings.Contains(line, want) {
			t.Errorf("log line %q missing %q", line, want)
		}
	}
	if LoggerFrom(context.Background(), base) != base {
		t.Error("LoggerFrom without attributes should return the logger unchanged")
	}
	if LoggerFrom(context.Background(), nil) == nil {
		t.Error("LoggerFrom(nil logger) should fall back to the default logger")
	}
}

func TestWithTimeout(t *testing.T) {
	ctx, cancel := WithTimeout(context.Background(), 0)
	if _, ok := ctx.Deadline(); ok {
		t.Error("zero timeout should not set a deadline")
	}
	cancel()
	if ctx.Err() == nil {
		t.Error("cancel should cancel the context")
	}

	ctx, cancel = WithTimeout(context.Background(), time.Minute)
	defer cancel()
	if _, ok := ctx.Deadline(); !ok {
		t.Error("positive timeout should set a deadline")
	}
}
