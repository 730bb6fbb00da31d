package summarizer

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"docsummary/internal/chunker"
)

func (e *Engine) stuffSingle(ctx context.Context, text string, s callSettings) (*Result, error) {
	prompt, err := renderPrompt(singleDocumentTemplate, promptData{Text: text})
	if err != nil {
		return nil, err
	}

	summary, model, err := e.invoke(ctx, StepStuff, prompt, s)
	if err != nil {
		return nil, err
	}

	return &Result{
		Content:    summary,
		Model:      model,
		TokensUsed: EstimateTokens(text) + EstimateTokens(summary),
		Method:     MethodStuff,
	}, nil
}

func (e *Engine) stuffMultiple(
	ctx context.Context,
	combined string,
	documentCount int,
	s callSettings,
) (*Result, error) {
	prompt, err := renderPrompt(multiDocumentTemplate, promptData{
		Text:          combined,
		DocumentCount: documentCount,
	})
	if err != nil {
		return nil, err
	}

	summary, model, err := e.invoke(ctx, StepStuffMultiple, prompt, s)
	if err != nil {
		return nil, err
	}

	return &Result{
		Content:       summary,
		Model:         model,
		TokensUsed:    EstimateTokens(combined) + EstimateTokens(summary),
		Method:        MethodStuff,
		DocumentCount: &documentCount,
	}, nil
}

// mapReduce summarizes every chunk independently, then combines the chunk
// summaries in chunk order. Any failed chunk aborts the run before reduce
// and keeps chunks that have not started from reaching the model.
func (e *Engine) mapReduce(ctx context.Context, text string, s callSettings) (*Result, error) {
	chunks := chunker.SplitChunks(text, e.opts.ChunkSize, e.opts.ChunkOverlap)
	if len(chunks) == 0 {
		return nil, fmt.Errorf("%w: text produced no chunks", ErrInvalidInput)
	}

	partials := make([]string, len(chunks))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.opts.MapConcurrency)

	for _, c := range chunks {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			prompt, err := renderPrompt(mapTemplate, promptData{
				Text:  c.Text,
				Part:  c.Index + 1,
				Total: len(chunks),
			})
			if err != nil {
				return err
			}

			summary, _, err := e.invoke(gctx, StepMap, prompt, s)
			if err != nil {
				return fmt.Errorf("summarize chunk %d/%d: %w", c.Index+1, len(chunks), err)
			}

			partials[c.Index] = summary

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	e.log.DebugContext(ctx, "Chunks are summarized",
		"chunkCount", len(chunks),
		"chunkSize", e.opts.ChunkSize,
		"chunkOverlap", e.opts.ChunkOverlap)

	var b strings.Builder
	for i, partial := range partials {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "[Part %d]\n%s", i+1, partial)
	}

	prompt, err := renderPrompt(reduceTemplate, promptData{Text: b.String()})
	if err != nil {
		return nil, err
	}

	summary, model, err := e.invoke(ctx, StepReduce, prompt, s)
	if err != nil {
		return nil, err
	}

	chunkCount := len(chunks)

	return &Result{
		Content:    summary,
		Model:      model,
		TokensUsed: EstimateTokens(text) + EstimateTokens(summary),
		Method:     MethodMapReduce,
		ChunkCount: &chunkCount,
	}, nil
}

// hierarchical summarizes each document on its own (recursing into
// map-reduce for oversized ones), then combines the labeled summaries.
func (e *Engine) hierarchical(
	ctx context.Context,
	names []string,
	texts []string,
	s callSettings,
) (*Result, error) {
	individual := make([]IndividualSummary, len(texts))

	docSettings := s
	docSettings.maxOutputTokens = min(s.maxOutputTokens, e.opts.IndividualMaxOutputTokens)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.opts.DocumentConcurrency)

	for i := range texts {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			res, err := e.summarizeSingle(gctx, texts[i], docSettings)
			if err != nil {
				return fmt.Errorf("summarize document %d (%s): %w", i+1, names[i], err)
			}

			individual[i] = IndividualSummary{Name: names[i], Summary: res.Content}

			e.log.DebugContext(gctx, "Document is summarized",
				"index", i+1,
				"name", names[i],
				"method", res.Method)

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	summaries := make([]string, len(individual))
	for i, is := range individual {
		summaries[i] = is.Summary
	}
	combined := joinLabeled(names, summaries)

	prompt, err := renderPrompt(hierarchicalTemplate, promptData{
		Text:          combined,
		DocumentCount: len(texts),
	})
	if err != nil {
		return nil, err
	}

	summary, model, err := e.invoke(ctx, StepCombine, prompt, s)
	if err != nil {
		return nil, err
	}

	documentCount := len(texts)

	return &Result{
		Content:       summary,
		Model:         model,
		TokensUsed:    EstimateTokens(combined) + EstimateTokens(summary),
		Method:        MethodHierarchical,
		DocumentCount: &documentCount,
		Individual:    individual,
	}, nil
}
