package explore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"strings"

	"github.com/askbi/askbi/internal/llm"
	"github.com/askbi/askbi/internal/observability"
	"github.com/askbi/askbi/internal/prompt"
	"github.com/askbi/askbi/internal/queryspec"
	"github.com/askbi/askbi/internal/semantic"
)

const (
	kindFieldExtraction = "fields_filters_pivots_sorts"
	kindLimits          = "limits"
	kindPivots          = "pivots"
	kindMergeValidate   = "merge_validate"
	kindExploration     = "exploration_output"
)

const defaultMaxCharsPerPrompt = 30000

var pivotKeywords = []string{"pivot", "pivoting", "pivotting"}

type Config struct {
	ChunkSize         int
	MaxCharsPerPrompt int
}

// QueryRunner executes an existing BI query and returns its rows.
type QueryRunner interface {
	RunQuery(ctx context.Context, queryID string) ([]map[string]any, error)
}

type Pipeline struct {
	Bridge  llm.Bridge
	Prompts *prompt.Catalog
	Runner  QueryRunner
	Config  Config
	Logger  *slog.Logger
}

type TranslateRequest struct {
	Fields   []semantic.FieldMetadata
	Question string
	Model    string
	View     string
}

type Result struct {
	QueryID  string         `json:"query_id"`
	ClientID string         `json:"client_id"`
	Model    string         `json:"model"`
	View     string         `json:"view"`
	Spec     queryspec.Spec `json:"spec"`
}

// ExploreURL links to the embedded explore that renders the created query.
func (r Result) ExploreURL(host string) string {
	host = strings.TrimRight(host, "/")
	return fmt.Sprintf("%s/embed/explore/%s/%s?qid=%s",
		host, url.PathEscape(r.Model), url.PathEscape(r.View), url.QueryEscape(r.ClientID))
}

// Translate turns a natural-language question into a created BI query.
func (p *Pipeline) Translate(ctx context.Context, req TranslateRequest) (Result, error) {
	d, err := p.resolve()
	if err != nil {
		return Result{}, err
	}
	d.logger = observability.WithTrace(ctx, d.logger).With(slog.String("model", req.Model), slog.String("view", req.View))
	run := &translation{
		deps:    d,
		req:     req,
		allowed: queryspec.NewAllowList(semantic.FieldNames(req.Fields)),
		spec:    queryspec.Empty(""),
	}
	result, err := run.execute(ctx)
	if err != nil {
		run.transition(ctx, StateFailed)
		return Result{}, err
	}
	return result, nil
}

type deps struct {
	bridge  llm.Bridge
	prompts *prompt.Catalog
	runner  QueryRunner
	cfg     Config
	logger  *slog.Logger
}

// resolve applies defaults without mutating p, so one Pipeline can serve
// concurrent requests.
func (p *Pipeline) resolve() (deps, error) {
	if p.Bridge == nil {
		return deps{}, fmt.Errorf("llm bridge is required")
	}
	d := deps{bridge: p.Bridge, prompts: p.Prompts, runner: p.Runner, cfg: p.Config, logger: p.Logger}
	if d.prompts == nil {
		catalog, err := prompt.NewCatalog(nil)
		if err != nil {
			return deps{}, fmt.Errorf("build default prompt catalog: %w", err)
		}
		d.prompts = catalog
	}
	if d.cfg.ChunkSize <= 0 {
		d.cfg.ChunkSize = semantic.DefaultChunkSize
	}
	if d.cfg.MaxCharsPerPrompt <= 0 {
		d.cfg.MaxCharsPerPrompt = defaultMaxCharsPerPrompt
	}
	if d.logger == nil {
		d.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return d, nil
}

// translation is the per-request accumulator. It is never shared.
type translation struct {
	deps
	req     TranslateRequest
	allowed queryspec.AllowList
	state   State
	shards  int
	spec    queryspec.Spec
}

func (t *translation) transition(ctx context.Context, next State) {
	t.state = next
	t.logger.DebugContext(ctx, "translate state", slog.String("state", next.String()))
}

func (t *translation) execute(ctx context.Context) (Result, error) {
	t.transition(ctx, StateChunking)
	chunks := semantic.Chunk(t.req.Fields, t.cfg.ChunkSize)
	t.shards = len(chunks)

	if err := t.extract(ctx, chunks); err != nil {
		return Result{}, err
	}

	t.transition(ctx, StateAwaitingLimitAndPivots)
	t.spec.Limit = t.refineLimit(ctx)
	t.refinePivots(ctx)
	if !mentionsPivot(t.req.Question) {
		t.spec = t.spec.WithoutPivots()
	}

	if t.shards > 1 {
		t.transition(ctx, StateAwaitingMergeValidation)
		t.validateMerge(ctx)
	}

	t.transition(ctx, StateReady)
	ref, err := t.bridge.CreateQuery(ctx, llm.QueryRequest{
		Model: t.req.Model,
		View:  t.req.View,
		Spec:  t.spec,
	})
	observability.ObserveQueryCreation(observability.Outcome(err))
	if err != nil {
		return Result{}, asQueryCreationError(err)
	}
	t.transition(ctx, StateQueryCreated)

	result := Result{
		QueryID:  ref.QueryID,
		ClientID: ref.ClientID,
		Model:    ref.Model,
		View:     ref.View,
		Spec:     t.spec,
	}
	if result.Model == "" {
		result.Model = t.req.Model
	}
	if result.View == "" {
		result.View = t.req.View
	}
	return result, nil
}

func (t *translation) extract(ctx context.Context, chunks [][]semantic.FieldMetadata) error {
	if len(chunks) == 0 {
		t.transition(ctx, StateMerging)
		return nil
	}

	prompts := make([]string, 0, len(chunks))
	for i, chunk := range chunks {
		serialized, err := json.Marshal(chunk)
		if err != nil {
			return fmt.Errorf("serialize shard %d: %w", i, err)
		}
		rendered, err := t.prompts.Render(prompt.FieldsFiltersPivotsSorts, prompt.Vars{
			SerializedModelFields: string(serialized),
			UserInput:             t.req.Question,
		})
		if err != nil {
			return fmt.Errorf("render field extraction prompt: %w", err)
		}
		prompts = append(prompts, rendered)
	}

	t.transition(ctx, StateAwaitingFieldExtraction)
	rows, err := t.bridge.Generate(ctx, kindFieldExtraction, prompts)
	if err != nil {
		return fmt.Errorf("extract fields: %w", err)
	}

	t.transition(ctx, StateMerging)
	usable, failures := 0, 0
	for i, row := range rows {
		if row.Failed() || strings.TrimSpace(row.Text) == "" {
			t.logger.WarnContext(ctx, "shard returned no answer", slog.Int("shard", i), slog.String("status", row.Status))
			failures++
			continue
		}
		raw, err := queryspec.Parse(row.Text)
		if err != nil {
			t.logger.WarnContext(ctx, "shard answer is not a query spec", slog.Int("shard", i), slog.Any("error", err))
			failures++
			continue
		}
		shard, dropped := queryspec.New(raw, t.allowed)
		if len(dropped) > 0 {
			t.logger.DebugContext(ctx, "dropped unknown fields", slog.Int("shard", i), slog.Any("dropped", dropped))
		}
		t.spec = t.spec.Merge(shard)
		usable++
	}
	observability.IncrementShardParseFailures(failures)

	if usable == 0 {
		observability.IncrementEmptyExtraction()
		t.logger.WarnContext(ctx, "no shard produced a usable query spec", slog.Int("shards", len(rows)))
	}
	return nil
}

// refineLimit asks for the row limit. Anything but an integer in range falls
// back to the default.
func (t *translation) refineLimit(ctx context.Context) string {
	rendered, err := t.prompts.Render(prompt.Limits, prompt.Vars{UserInput: t.req.Question})
	if err != nil {
		t.logger.WarnContext(ctx, "render limit prompt failed", slog.Any("error", err))
		return queryspec.DefaultLimit
	}
	text, ok := t.single(ctx, kindLimits, rendered)
	if !ok {
		return queryspec.DefaultLimit
	}
	limit, ok := queryspec.NormalizeLimit(queryspec.StripFence(text))
	if !ok {
		t.logger.DebugContext(ctx, "limit answer out of range", slog.String("answer", text))
		return queryspec.DefaultLimit
	}
	return limit
}

func (t *translation) refinePivots(ctx context.Context) {
	potential, err := json.Marshal(t.spec.Fields)
	if err != nil {
		return
	}
	rendered, err := t.prompts.Render(prompt.Pivots, prompt.Vars{
		PotentialFields: string(potential),
		UserInput:       t.req.Question,
	})
	if err != nil {
		t.logger.WarnContext(ctx, "render pivot prompt failed", slog.Any("error", err))
		return
	}
	text, ok := t.single(ctx, kindPivots, rendered)
	if !ok {
		return
	}
	raw, err := queryspec.Parse(text)
	if err != nil {
		t.logger.DebugContext(ctx, "pivot answer ignored", slog.Any("error", err))
		return
	}
	refined := t.spec.WithPivots(raw.Pivots, t.allowed)
	if len(refined.Pivots) == 0 {
		t.logger.DebugContext(ctx, "pivot answer names no known field", slog.Any("pivots", raw.Pivots))
		return
	}
	t.spec = refined
}

// validateMerge asks the model to prune a multi-shard merge. A call or parse
// failure keeps the merged spec as it is.
func (t *translation) validateMerge(ctx context.Context) {
	merged, err := json.Marshal(t.spec.Raw())
	if err != nil {
		observability.ObserveMergeValidation(observability.OutcomeError)
		return
	}
	rendered, err := t.prompts.Render(prompt.MergeValidate, prompt.Vars{
		MergedResults: string(merged),
		UserInput:     t.req.Question,
	})
	if err != nil {
		t.logger.WarnContext(ctx, "render merge validation prompt failed", slog.Any("error", err))
		observability.ObserveMergeValidation(observability.OutcomeError)
		return
	}
	text, ok := t.single(ctx, kindMergeValidate, rendered)
	if !ok {
		observability.ObserveMergeValidation(observability.OutcomeError)
		return
	}
	raw, err := queryspec.Parse(text)
	if err != nil {
		t.logger.WarnContext(ctx, "merge validation answer ignored", slog.Any("error", err))
		observability.ObserveMergeValidation(observability.OutcomeError)
		return
	}
	// A parsed answer replaces the merge wholesale, even when it is empty.
	validated, dropped := queryspec.New(raw, t.allowed)
	if len(dropped) > 0 {
		t.logger.DebugContext(ctx, "merge validation named unknown fields", slog.Any("dropped", dropped))
	}
	if !mentionsPivot(t.req.Question) {
		validated = validated.WithoutPivots()
	}
	if validated.Limit == "" {
		validated.Limit = t.spec.Limit
	}
	t.spec = validated
	observability.ObserveMergeValidation(observability.OutcomeOK)
}

// single runs one prompt and returns its text when the model answered.
func (t *translation) single(ctx context.Context, kind, rendered string) (string, bool) {
	rows, err := t.bridge.Generate(ctx, kind, []string{rendered})
	if err != nil {
		t.logger.WarnContext(ctx, "refinement call failed", slog.String("kind", kind), slog.Any("error", err))
		return "", false
	}
	if len(rows) == 0 || rows[0].Failed() || strings.TrimSpace(rows[0].Text) == "" {
		return "", false
	}
	return rows[0].Text, true
}

func mentionsPivot(question string) bool {
	lowered := strings.ToLower(question)
	for _, keyword := range pivotKeywords {
		if strings.Contains(lowered, keyword) {
			return true
		}
	}
	return false
}

func asQueryCreationError(err error) error {
	var creationErr *llm.QueryCreationError
	if errors.As(err, &creationErr) {
		return err
	}
	return &llm.QueryCreationError{Reason: "query service call failed", Err: err}
}
