package summarizer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"docsummary/internal/chunker"
)

const (
	DefaultTokenThreshold            = 12000
	DefaultIndividualMaxOutputTokens = 1000
	DefaultMapConcurrency            = 4
	DefaultDocumentConcurrency       = 2

	minMultipleDocuments = 2
)

// Options are the process-wide summarization defaults.
type Options struct {
	Model           string
	Temperature     float64
	MaxOutputTokens int64
	// IndividualMaxOutputTokens caps each per-document summary of a
	// hierarchical run.
	IndividualMaxOutputTokens int64
	// TokenThreshold is the estimated input size above which a chunked
	// strategy is used.
	TokenThreshold      int
	ChunkSize           int
	ChunkOverlap        int
	MapConcurrency      int
	DocumentConcurrency int
}

func DefaultOptions() Options {
	return Options{
		Model:                     DefaultModel,
		Temperature:               DefaultTemperature,
		MaxOutputTokens:           DefaultMaxOutputTokens,
		IndividualMaxOutputTokens: DefaultIndividualMaxOutputTokens,
		TokenThreshold:            DefaultTokenThreshold,
		ChunkSize:                 chunker.DefaultChunkSize,
		ChunkOverlap:              chunker.DefaultChunkOverlap,
		MapConcurrency:            DefaultMapConcurrency,
		DocumentConcurrency:       DefaultDocumentConcurrency,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()

	if strings.TrimSpace(o.Model) == "" {
		o.Model = d.Model
	}
	if o.Temperature < 0 {
		o.Temperature = d.Temperature
	}
	if o.MaxOutputTokens <= 0 {
		o.MaxOutputTokens = d.MaxOutputTokens
	}
	if o.IndividualMaxOutputTokens <= 0 {
		o.IndividualMaxOutputTokens = d.IndividualMaxOutputTokens
	}
	if o.TokenThreshold <= 0 {
		o.TokenThreshold = d.TokenThreshold
	}
	if o.ChunkSize <= 0 {
		o.ChunkSize = d.ChunkSize
	}
	if o.ChunkOverlap < 0 {
		o.ChunkOverlap = d.ChunkOverlap
	}
	if o.MapConcurrency <= 0 {
		o.MapConcurrency = 1
	}
	if o.DocumentConcurrency <= 0 {
		o.DocumentConcurrency = 1
	}

	return o
}

// CallOptions override the model settings of a single summarization.
// Zero values keep the engine defaults.
type CallOptions struct {
	Model           string
	Temperature     *float64
	MaxOutputTokens int64
}

type callSettings struct {
	model           string
	temperature     float64
	maxOutputTokens int64
}

func (e *Engine) settings(call CallOptions) callSettings {
	s := callSettings{
		model:           e.opts.Model,
		temperature:     e.opts.Temperature,
		maxOutputTokens: e.opts.MaxOutputTokens,
	}

	if m := strings.TrimSpace(call.Model); m != "" {
		s.model = m
	}
	if call.Temperature != nil && *call.Temperature >= 0 {
		s.temperature = *call.Temperature
	}
	if call.MaxOutputTokens > 0 {
		s.maxOutputTokens = call.MaxOutputTokens
	}

	return s
}

// Engine picks and runs a summarization strategy for each request.
type Engine struct {
	invoker Invoker
	opts    Options
	rec     Recorder
	log     *slog.Logger
}

// NewEngine builds an engine. A nil invoker means the model backend is not
// configured: every summarization fails with ErrUpstreamUnavailable.
func NewEngine(invoker Invoker, opts Options, rec Recorder, log *slog.Logger) *Engine {
	if rec == nil {
		rec = nopRecorder{}
	}
	if log == nil {
		log = slog.Default()
	}

	return &Engine{
		invoker: invoker,
		opts:    opts.withDefaults(),
		rec:     rec,
		log:     log,
	}
}

func (e *Engine) Configured() bool {
	return e.invoker != nil
}

func (e *Engine) Model() string {
	return e.opts.Model
}

// SummarizeSingle summarizes one document's text, switching to map-reduce
// when the estimated size exceeds the token threshold.
func (e *Engine) SummarizeSingle(
	ctx context.Context,
	text string,
	call CallOptions,
) (*Result, error) {
	start := time.Now()

	res, err := e.summarizeSingle(ctx, text, e.settings(call))

	e.finish(ctx, res, err, start)

	return res, err
}

// SummarizeMultiple summarizes at least two named documents into one
// integrated summary, switching to the hierarchical strategy when their
// combined estimated size exceeds the token threshold.
func (e *Engine) SummarizeMultiple(
	ctx context.Context,
	docs []Document,
	call CallOptions,
) (*Result, error) {
	start := time.Now()

	res, err := e.summarizeMultiple(ctx, docs, e.settings(call))

	e.finish(ctx, res, err, start)

	return res, err
}

func (e *Engine) summarizeSingle(
	ctx context.Context,
	text string,
	s callSettings,
) (*Result, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("%w: text is empty", ErrInvalidInput)
	}

	if e.invoker == nil {
		return nil, ErrUpstreamUnavailable
	}

	estimate := EstimateTokens(text)
	if estimate > e.opts.TokenThreshold {
		e.log.DebugContext(ctx, "Text exceeds token threshold so map-reduce is used",
			"estimatedTokens", estimate,
			"threshold", e.opts.TokenThreshold)

		return e.mapReduce(ctx, text, s)
	}

	return e.stuffSingle(ctx, text, s)
}

func (e *Engine) summarizeMultiple(
	ctx context.Context,
	docs []Document,
	s callSettings,
) (*Result, error) {
	if len(docs) < minMultipleDocuments {
		return nil, fmt.Errorf(
			"%w: at least %d documents are required, got %d",
			ErrInvalidInput,
			minMultipleDocuments,
			len(docs),
		)
	}

	names := make([]string, len(docs))
	texts := make([]string, len(docs))
	for i, doc := range docs {
		text := strings.TrimSpace(doc.Text)
		if text == "" {
			return nil, fmt.Errorf("%w: document %d (%s) has no text", ErrInvalidInput, i+1, doc.Name)
		}

		names[i] = doc.Name
		texts[i] = text
	}

	if e.invoker == nil {
		return nil, ErrUpstreamUnavailable
	}

	combined := joinLabeled(names, texts)

	estimate := EstimateTokens(combined)
	if estimate > e.opts.TokenThreshold {
		e.log.DebugContext(ctx, "Documents exceed token threshold so hierarchical summary is used",
			"estimatedTokens", estimate,
			"threshold", e.opts.TokenThreshold,
			"documentCount", len(docs))

		return e.hierarchical(ctx, names, texts, s)
	}

	return e.stuffMultiple(ctx, combined, len(docs), s)
}

// invoke performs one model call and returns the trimmed generated text.
func (e *Engine) invoke(
	ctx context.Context,
	step Step,
	prompt string,
	s callSettings,
) (string, string, error) {
	resp, err := e.invoker.Invoke(ctx, Request{
		Step:            step,
		Prompt:          prompt,
		Model:           s.model,
		Temperature:     s.temperature,
		MaxOutputTokens: s.maxOutputTokens,
	})
	if err != nil {
		e.rec.ObserveModelCall(string(step), "error", 0)

		return "", "", fmt.Errorf("invoke model (step = %s): %w", step, err)
	}

	e.rec.ObserveModelCall(string(step), "ok", resp.Elapsed)

	text := strings.TrimSpace(resp.Text)
	if text == "" {
		return "", "", fmt.Errorf("%w: empty output (step = %s)", ErrUpstreamError, step)
	}

	model := resp.Model
	if model == "" {
		model = s.model
	}

	return text, model, nil
}

func (e *Engine) finish(ctx context.Context, res *Result, err error, start time.Time) {
	elapsed := time.Since(start)

	if err != nil {
		method := "unknown"
		if errors.Is(err, ErrInvalidInput) {
			method = "rejected"
		}
		e.rec.ObserveSummary(method, "error", elapsed, 0)

		e.log.WarnContext(ctx, "Summarization failed",
			"error", err,
			"elapsedMs", elapsed.Milliseconds())

		return
	}

	res.ProcessingTimeMs = elapsed.Milliseconds()
	e.rec.ObserveSummary(string(res.Method), "ok", elapsed, res.TokensUsed)

	e.log.InfoContext(ctx, "Summarization is completed",
		"method", res.Method,
		"model", res.Model,
		"tokensUsed", res.TokensUsed,
		"processingTimeMs", res.ProcessingTimeMs)
}
