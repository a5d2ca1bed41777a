package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/joseph-ayodele/bills-assistant/internal/common"
)

// Assistant implements the classifier, time extractor, answer generator and bill
// extractor over one Completer.
type Assistant struct {
	llm    Completer
	logger *slog.Logger
}

func NewAssistant(c Completer, logger *slog.Logger) *Assistant {
	if logger == nil {
		logger = slog.Default()
	}
	return &Assistant{llm: c, logger: logger}
}

type sanitizer func(raw []byte, logger *slog.Logger) ([]byte, []string, error)

// Classify turns a user query into a raw plan object.
func (a *Assistant) Classify(ctx context.Context, query string) (map[string]any, error) {
	start := time.Now()
	log := common.LoggerFrom(ctx, a.logger)
	log.Info("llm.classify.start", "query_len", len(query))

	content, err := a.llm.Complete(ctx, CompletionRequest{Messages: BuildClassifierMessages(query), JSON: true})
	if err != nil {
		log.Error("llm.classify.http_error", "error", err, "elapsed_ms", common.ElapsedMS(start))
		return nil, common.CollaboratorUnavailable("classifier", err)
	}

	raw, err := a.validated(log, "classify", content, planSchema, SanitizePlanJSON)
	if err != nil {
		return nil, common.MalformedPlan("classifier output: %v", err)
	}
	plan, err := decodeObject(raw)
	if err != nil {
		return nil, common.MalformedPlan("classifier output: %v", err)
	}
	log.Info("llm.classify.ok", "type", plan["type"], "operation", plan["operation"], "elapsed_ms", common.ElapsedMS(start))
	return plan, nil
}

// ExtractTime asks for a time expression candidate. A reply the candidate schema
// rejects is reported as InvalidTimeExpression; callers treat it as absent.
func (a *Assistant) ExtractTime(ctx context.Context, text string) (map[string]any, error) {
	start := time.Now()
	log := common.LoggerFrom(ctx, a.logger)

	content, err := a.llm.Complete(ctx, CompletionRequest{Messages: BuildTimeMessages(text), JSON: true})
	if err != nil {
		log.Warn("llm.time.http_error", "error", err, "elapsed_ms", common.ElapsedMS(start))
		return nil, common.CollaboratorUnavailable("time extractor", err)
	}
	raw, err := a.validated(log, "time", content, timeRangeSchema, nil)
	if err != nil {
		return nil, common.InvalidTimeExpression("time extractor output: %v", err)
	}
	candidate, err := decodeObject(raw)
	if err != nil {
		return nil, common.InvalidTimeExpression("time extractor output: %v", err)
	}
	log.Info("llm.time.ok", "type", candidate["type"], "granularity", candidate["granularity"], "elapsed_ms", common.ElapsedMS(start))
	return candidate, nil
}

// Generate returns a free-text answer for prompt.
func (a *Assistant) Generate(ctx context.Context, prompt string) (string, error) {
	start := time.Now()
	log := common.LoggerFrom(ctx, a.logger)

	content, err := a.llm.Complete(ctx, CompletionRequest{Messages: []Message{{Role: RoleUser, Content: prompt}}})
	if err != nil {
		log.Error("llm.generate.http_error", "error", err, "elapsed_ms", common.ElapsedMS(start))
		return "", common.CollaboratorUnavailable("answer generator", err)
	}
	log.Info("llm.generate.ok", "answer_len", len(content), "elapsed_ms", common.ElapsedMS(start))
	return strings.TrimSpace(content), nil
}

// ExtractBill pulls structured bill fields out of already-extracted bill text.
func (a *Assistant) ExtractBill(ctx context.Context, text string) (BillFields, error) {
	start := time.Now()
	log := common.LoggerFrom(ctx, a.logger)
	log.Info("llm.extract.start", "text_len", len(text))

	content, err := a.llm.Complete(ctx, CompletionRequest{Messages: BuildBillMessages(text), JSON: true})
	if err != nil {
		log.Error("llm.extract.http_error", "error", err, "elapsed_ms", common.ElapsedMS(start))
		return BillFields{}, common.CollaboratorUnavailable("bill extractor", err)
	}
	// The extraction schema is stricter than what models emit, so sanitize first.
	obj, err := ExtractJSONObject(content)
	if err != nil {
		log.Error("llm.extract.decode_error", "error", err, "elapsed_ms", common.ElapsedMS(start))
		return BillFields{}, common.WrapError(err, "bill extractor output")
	}
	cleaned, _, err := SanitizeBillJSON(obj, log)
	if err != nil {
		return BillFields{}, common.WrapError(err, "bill extractor output")
	}
	schema, err := billSchema()
	if err != nil {
		return BillFields{}, common.Internal("bill schema: %v", err)
	}
	if err := schema.Validate(cleaned); err != nil {
		log.Error("llm.extract.schema_validation_failed", "error", err, "content", truncate(string(cleaned), 512))
		return BillFields{}, fmt.Errorf("schema validation failed: %w", err)
	}

	var out BillFields
	if err := json.Unmarshal(cleaned, &out); err != nil {
		return BillFields{}, fmt.Errorf("unmarshal fields: %w", err)
	}
	log.Info("llm.extract.ok",
		"vendor", out.Vendor,
		"date", out.BillDate,
		"category", out.Category,
		"items", len(out.Items),
		"elapsed_ms", common.ElapsedMS(start),
	)
	return out, nil
}

// validated validates strictly first; when that fails and a sanitizer is given it
// sanitizes and re-validates.
func (a *Assistant) validated(log *slog.Logger, op, content string, load func() (*Schema, error), sanitize sanitizer) ([]byte, error) {
	schema, err := load()
	if err != nil {
		log.Error("llm."+op+".schema_compile_failed", "error", err)
		return nil, err
	}
	raw, err := ExtractJSONObject(content)
	if err != nil {
		log.Warn("llm."+op+".decode_error", "error", err, "content", truncate(content, 256))
		return nil, err
	}
	err = schema.Validate(raw)
	if err == nil {
		return raw, nil
	}
	if sanitize == nil {
		log.Warn("llm."+op+".schema_validation_failed", "error", err)
		return nil, err
	}
	cleaned, changed, sErr := sanitize(raw, log)
	if sErr != nil {
		log.Warn("llm."+op+".sanitize_failed", "error", sErr)
		return nil, sErr
	}
	if vErr := schema.Validate(cleaned); vErr != nil {
		log.Warn("llm."+op+".schema_validation_failed", "error", vErr, "content", truncate(string(cleaned), 256))
		return nil, vErr
	}
	log.Warn("llm."+op+".lenient_sanitize_applied", "changed", changed)
	return cleaned, nil
}
