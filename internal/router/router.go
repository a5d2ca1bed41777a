// Package router turns a natural-language bill question into either structured rows or
// a generated answer.
package router

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/joseph-ayodele/bills-assistant/constants"
	"github.com/joseph-ayodele/bills-assistant/internal/common"
	"github.com/joseph-ayodele/bills-assistant/internal/llm"
	"github.com/joseph-ayodele/bills-assistant/internal/metrics"
	"github.com/joseph-ayodele/bills-assistant/internal/pipeline"
	"github.com/joseph-ayodele/bills-assistant/internal/queryplan"
	"github.com/joseph-ayodele/bills-assistant/internal/temporal"
	"github.com/joseph-ayodele/bills-assistant/internal/utils"
	"github.com/joseph-ayodele/bills-assistant/internal/vector"
)

// DefaultTopK is the number of passages used as answer context.
const DefaultTopK = 5

const noFacts = "No matching records."

type Classifier interface {
	Classify(ctx context.Context, query string) (map[string]any, error)
}

type AnswerGenerator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

type DocumentStore interface {
	RunPipeline(ctx context.Context, collection string, stages []pipeline.Stage) ([]pipeline.Row, error)
}

// Result carries rows for FILTER/AGGREGATION plans and an answer for SEMANTIC/MIXED.
type Result struct {
	Type   constants.QueryType
	Rows   []pipeline.Row
	Answer string
}

// HasAnswer reports whether the result is a generated answer rather than rows.
func (r *Result) HasAnswer() bool {
	return r.Type == constants.QueryTypeSemantic || r.Type == constants.QueryTypeMixed
}

type Router struct {
	classifier Classifier
	normalizer *queryplan.Normalizer
	store      DocumentStore
	searcher   vector.Searcher
	generator  AnswerGenerator
	timeouts   common.RouterConfig
	topK       int
	logger     *slog.Logger
}

type Option func(*Router)

func WithTimeouts(t common.RouterConfig) Option {
	return func(r *Router) { r.timeouts = t }
}

func WithTopK(k int) Option {
	return func(r *Router) {
		if k > 0 {
			r.topK = k
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(r *Router) {
		if l != nil {
			r.logger = l
		}
	}
}

func New(classifier Classifier, normalizer *queryplan.Normalizer, store DocumentStore, searcher vector.Searcher, generator AnswerGenerator, opts ...Option) *Router {
	if normalizer == nil {
		normalizer = queryplan.NewNormalizer(nil)
	}
	r := &Router{
		classifier: classifier,
		normalizer: normalizer,
		store:      store,
		searcher:   searcher,
		generator:  generator,
		topK:       DefaultTopK,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Route classifies query, normalizes the plan and executes it for userID.
func (r *Router) Route(ctx context.Context, query, userID string) (res *Result, err error) {
	start := time.Now()
	var planType string
	defer func() { metrics.ObserveRoute(planType, start, err) }()

	if err := checkRequest(query, userID); err != nil {
		return nil, err
	}
	ctx = common.WithUserID(ctx, userID)
	log := common.LoggerFrom(ctx, r.logger)
	log.Info("router.route.start", "query_len", len(query))

	raw, err := r.classify(ctx, query)
	if err != nil {
		log.Error("router.classify.failed", "error", err, "elapsed_ms", common.ElapsedMS(start))
		return nil, err
	}
	plan, err := r.normalizer.Normalize(ctx, raw, query)
	if err != nil {
		log.Warn("router.normalize.failed", "error", err, "elapsed_ms", common.ElapsedMS(start))
		return nil, err
	}
	planType = string(plan.Type)

	res, err = r.Execute(ctx, plan, query, userID)
	if err != nil {
		log.Error("router.route.failed", "type", plan.Type, "error", err, "elapsed_ms", common.ElapsedMS(start))
		return nil, err
	}
	log.Info("router.route.ok", "type", plan.Type, "rows", len(res.Rows), "answer_len", len(res.Answer), "elapsed_ms", common.ElapsedMS(start))
	return res, nil
}

// Execute runs an already-normalized plan.
func (r *Router) Execute(ctx context.Context, plan *queryplan.QueryPlan, query, userID string) (*Result, error) {
	switch plan.Type {
	case constants.QueryTypeFilter, constants.QueryTypeAggregation:
		rows, err := r.runPlan(ctx, plan, userID)
		if err != nil {
			return nil, err
		}
		return &Result{Type: plan.Type, Rows: rows}, nil

	case constants.QueryTypeSemantic:
		passages, err := r.search(ctx, query, vector.Filter{UserID: userID, Category: plan.Category()})
		if err != nil {
			return nil, err
		}
		answer, err := r.generate(ctx, llm.SemanticAnswerPrompt(vector.JoinText(passages), query))
		if err != nil {
			return nil, err
		}
		return &Result{Type: plan.Type, Answer: answer}, nil

	case constants.QueryTypeMixed:
		var rows []pipeline.Row
		var passages []vector.Passage
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			var err error
			rows, err = r.runPlan(gctx, plan, userID)
			return err
		})
		g.Go(func() error {
			var err error
			passages, err = r.search(gctx, query, vector.Filter{UserID: userID, Category: plan.Category()})
			return err
		})
		if err := g.Wait(); err != nil {
			return nil, err
		}
		answer, err := r.generate(ctx, llm.MixedAnswerPrompt(factsText(rows), vector.JoinText(passages), query))
		if err != nil {
			return nil, err
		}
		return &Result{Type: plan.Type, Answer: answer}, nil
	}
	return nil, common.UnsupportedQueryType(string(plan.Type))
}

// Report runs a canned report. A non-empty query contributes its time window through
// the normalizer's extraction path.
func (r *Router) Report(ctx context.Context, template, query, userID string) (res []pipeline.Row, err error) {
	start := time.Now()
	defer func() { metrics.ObserveRoute("REPORT", start, err) }()

	if strings.TrimSpace(userID) == "" {
		return nil, common.InvalidInput("user_id is required")
	}
	tpl, ok := constants.ParseReportTemplate(template)
	if !ok {
		return nil, common.InvalidInput("unknown report template %q", template)
	}
	ctx = common.WithUserID(ctx, userID)
	log := common.LoggerFrom(ctx, r.logger)

	plan, err := r.timePlan(ctx, query)
	if err != nil {
		return nil, err
	}
	stages, err := pipeline.CompileTemplate(tpl, plan, userID)
	if err != nil {
		return nil, err
	}
	rows, err := r.runStages(ctx, stages)
	if err != nil {
		return nil, err
	}
	log.Info("router.report.ok", "template", tpl, "rows", len(rows), "elapsed_ms", common.ElapsedMS(start))
	return rows, nil
}

// Window resolves the bill_date window query implies. It is nil when query is blank or
// names no time range.
func (r *Router) Window(ctx context.Context, query string) (*temporal.Window, error) {
	plan, err := r.timePlan(ctx, query)
	if err != nil || plan == nil {
		return nil, err
	}
	return plan.Filters.BillDate, nil
}

// timePlan normalizes a FILTER/list plan for query without calling the classifier, so
// only the time extraction path contributes.
func (r *Router) timePlan(ctx context.Context, query string) (*queryplan.QueryPlan, error) {
	if strings.TrimSpace(query) == "" {
		return nil, nil
	}
	raw := map[string]any{"type": string(constants.QueryTypeFilter), "operation": string(constants.OperationList)}
	return r.normalizer.Normalize(ctx, raw, query)
}

func (r *Router) classify(ctx context.Context, query string) (map[string]any, error) {
	start := time.Now()
	cctx, cancel := common.WithTimeout(ctx, r.timeouts.ClassifyTimeout)
	defer cancel()
	raw, err := r.classifier.Classify(cctx, query)
	err = collaboratorErr("classifier", err)
	metrics.ObserveCollaborator("classifier", start, err)
	return raw, err
}

func (r *Router) runPlan(ctx context.Context, plan *queryplan.QueryPlan, userID string) ([]pipeline.Row, error) {
	stages, err := pipeline.Compile(plan, userID)
	if err != nil {
		return nil, err
	}
	common.LoggerFrom(ctx, r.logger).Debug("router.pipeline.compiled", "stages", pipeline.Describe(stages))
	return r.runStages(ctx, stages)
}

func (r *Router) runStages(ctx context.Context, stages []pipeline.Stage) ([]pipeline.Row, error) {
	start := time.Now()
	sctx, cancel := common.WithTimeout(ctx, r.timeouts.StoreTimeout)
	defer cancel()
	rows, err := r.store.RunPipeline(sctx, constants.BillsCollection, stages)
	err = collaboratorErr("document store", err)
	metrics.ObserveCollaborator("document_store", start, err)
	return rows, err
}

func (r *Router) search(ctx context.Context, query string, filter vector.Filter) ([]vector.Passage, error) {
	start := time.Now()
	sctx, cancel := common.WithTimeout(ctx, r.timeouts.SearchTimeout)
	defer cancel()
	passages, err := r.searcher.Search(sctx, query, filter, r.topK)
	err = collaboratorErr("vector store", err)
	metrics.ObserveCollaborator("vector_store", start, err)
	return passages, err
}

func (r *Router) generate(ctx context.Context, prompt string) (string, error) {
	start := time.Now()
	gctx, cancel := common.WithTimeout(ctx, r.timeouts.GenerateTimeout)
	defer cancel()
	answer, err := r.generator.Generate(gctx, prompt)
	err = collaboratorErr("answer generator", err)
	metrics.ObserveCollaborator("answer_generator", start, err)
	return answer, err
}

// collaboratorErr keeps domain errors as they are and marks everything else as an
// infrastructure failure of the named collaborator.
func collaboratorErr(name string, err error) error {
	if err == nil {
		return nil
	}
	var app *common.AppError
	if errors.As(err, &app) {
		return err
	}
	return common.CollaboratorUnavailable(name, err)
}

// factsText renders the first pipeline row as JSON for the answer prompt.
func factsText(rows []pipeline.Row) string {
	if len(rows) == 0 {
		return noFacts
	}
	bs, err := json.Marshal(utils.NormalizeRow(rows[0]))
	if err != nil {
		return noFacts
	}
	return string(bs)
}

func checkRequest(query, userID string) error {
	if strings.TrimSpace(query) == "" {
		return common.InvalidInput("query is required")
	}
	if strings.TrimSpace(userID) == "" {
		return common.InvalidInput("user_id is required")
	}
	return nil
}
