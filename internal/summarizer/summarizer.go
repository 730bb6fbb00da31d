package summarizer

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrInvalidInput reports a violated precondition; no upstream call is made.
	ErrInvalidInput = errors.New("invalid input")
	// ErrUpstreamUnavailable reports a missing or rejected model credential.
	ErrUpstreamUnavailable = errors.New("model backend is not configured")
	// ErrUpstreamError reports a failed model call (network, rate limit,
	// malformed response).
	ErrUpstreamError = errors.New("model backend error")
)

type Method string

const (
	MethodStuff        Method = "stuff"
	MethodMapReduce    Method = "map_reduce"
	MethodHierarchical Method = "hierarchical"
)

// Step names the role of a single model call within a strategy.
type Step string

const (
	StepStuff         Step = "stuff"
	StepStuffMultiple Step = "stuff_multiple"
	StepMap           Step = "map"
	StepReduce        Step = "reduce"
	StepCombine       Step = "combine"
	StepProbe         Step = "probe"
)

// Request is one call to the chat-completion backend.
type Request struct {
	Step            Step
	Prompt          string
	Model           string
	Temperature     float64
	MaxOutputTokens int64
}

type Response struct {
	Text    string
	Model   string
	Elapsed time.Duration
}

// Invoker sends a prompt to the model backend. Implementations never retry.
type Invoker interface {
	Invoke(ctx context.Context, req Request) (*Response, error)
}

// Document is one named input of a multi-document request.
type Document struct {
	Name string
	Text string
}

type IndividualSummary struct {
	Name    string `json:"name"`
	Summary string `json:"summary"`
}

type Result struct {
	Content          string `json:"content"`
	Model            string `json:"model"`
	TokensUsed       int    `json:"tokensUsed"`
	ProcessingTimeMs int64  `json:"processingTimeMs"`
	Method           Method `json:"method"`
	ChunkCount       *int   `json:"chunkCount,omitempty"`
	DocumentCount    *int   `json:"documentCount,omitempty"`
	// Individual holds the per-document breakdown of a hierarchical run.
	Individual []IndividualSummary `json:"individual,omitempty"`
}

// Recorder receives summarization and model-call observations.
type Recorder interface {
	ObserveSummary(method string, status string, elapsed time.Duration, tokens int)
	ObserveModelCall(step string, status string, elapsed time.Duration)
}

type nopRecorder struct{}

func (nopRecorder) ObserveSummary(string, string, time.Duration, int) {}

func (nopRecorder) ObserveModelCall(string, string, time.Duration) {}
