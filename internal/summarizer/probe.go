package summarizer

import (
	"context"
	"errors"
	"unicode/utf8"
)

const (
	probePrompt          = "Hello"
	probeMaxOutputTokens = 10
	probePreviewRunes    = 100
)

// ConnectionStatus is the outcome of a connectivity probe.
type ConnectionStatus struct {
	Success         bool   `json:"success"`
	Model           string `json:"model,omitempty"`
	ResponsePreview string `json:"responsePreview,omitempty"`
	Error           string `json:"error,omitempty"`
}

// TestConnection sends a minimal prompt to verify the backend is reachable.
// It is a standalone status check and is never used by the strategies.
func (e *Engine) TestConnection(ctx context.Context) ConnectionStatus {
	if e.invoker == nil {
		return ConnectionStatus{Error: ErrUpstreamUnavailable.Error()}
	}

	resp, err := e.invoker.Invoke(ctx, Request{
		Step:            StepProbe,
		Prompt:          probePrompt,
		Model:           e.opts.Model,
		Temperature:     e.opts.Temperature,
		MaxOutputTokens: probeMaxOutputTokens,
	})
	if err != nil {
		status := "error"
		if errors.Is(err, ErrUpstreamUnavailable) {
			status = "unavailable"
		}
		e.rec.ObserveModelCall(string(StepProbe), status, 0)

		e.log.WarnContext(ctx, "Model connectivity probe failed",
			"error", err,
			"model", e.opts.Model)

		return ConnectionStatus{Model: e.opts.Model, Error: err.Error()}
	}

	e.rec.ObserveModelCall(string(StepProbe), "ok", resp.Elapsed)

	model := resp.Model
	if model == "" {
		model = e.opts.Model
	}

	return ConnectionStatus{
		Success:         true,
		Model:           model,
		ResponsePreview: preview(resp.Text, probePreviewRunes),
	}
}

func preview(text string, n int) string {
	if utf8.RuneCountInString(text) <= n {
		return text
	}

	return string([]rune(text)[:n]) + "..."
}
