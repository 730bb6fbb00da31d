package summaries

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"docsummary/internal/domain"
	"docsummary/internal/store"
	"docsummary/internal/summarizer"
)

const minDocuments = 2

type Engine interface {
	SummarizeSingle(ctx context.Context, text string, call summarizer.CallOptions) (*summarizer.Result, error)
	SummarizeMultiple(ctx context.Context, docs []summarizer.Document, call summarizer.CallOptions) (*summarizer.Result, error)
	TestConnection(ctx context.Context) summarizer.ConnectionStatus
	Configured() bool
	Model() string
}

type Service struct {
	store   store.Store
	engine  Engine
	timeout time.Duration
	now     func() time.Time
	log     *slog.Logger
}

func New(s store.Store, engine Engine, timeout time.Duration, log *slog.Logger) *Service {
	return &Service{
		store:   s,
		engine:  engine,
		timeout: timeout,
		now:     time.Now,
		log:     log,
	}
}

// Outcome is a persisted summary plus the per-document breakdown of a
// hierarchical run, which is not persisted.
type Outcome struct {
	Summary    *domain.Summary
	Individual []summarizer.IndividualSummary
}

// Status reports whether the model backend is configured and reachable.
type Status struct {
	Configured bool                        `json:"configured"`
	Model      string                      `json:"model"`
	Connection summarizer.ConnectionStatus `json:"connection"`
}

func (s *Service) SummarizeDocument(
	ctx context.Context,
	userID string,
	documentID string,
	call summarizer.CallOptions,
) (*Outcome, error) {
	doc, err := s.completedDocument(ctx, userID, documentID)
	if err != nil {
		return nil, err
	}

	runCtx, cancel := s.withTimeout(ctx)
	defer cancel()

	res, err := s.engine.SummarizeSingle(runCtx, doc.Text, call)
	if err != nil {
		return nil, fmt.Errorf("summarize document %s: %w", documentID, err)
	}

	return s.persist(ctx, userID, []string{documentID}, domain.SummaryTypeSingle, res)
}

// SummarizeDocuments summarizes at least two distinct documents in the
// order given.
func (s *Service) SummarizeDocuments(
	ctx context.Context,
	userID string,
	documentIDs []string,
	call summarizer.CallOptions,
) (*Outcome, error) {
	if len(documentIDs) < minDocuments {
		return nil, fmt.Errorf(
			"%w: at least %d documents are required, got %d",
			domain.ErrInvalidInput,
			minDocuments,
			len(documentIDs),
		)
	}

	seen := make(map[string]struct{}, len(documentIDs))
	docs := make([]summarizer.Document, 0, len(documentIDs))

	for _, id := range documentIDs {
		id = strings.TrimSpace(id)
		if _, ok := seen[id]; ok {
			return nil, fmt.Errorf("%w: document %s is listed more than once", domain.ErrInvalidInput, id)
		}
		seen[id] = struct{}{}

		doc, err := s.completedDocument(ctx, userID, id)
		if err != nil {
			return nil, err
		}

		docs = append(docs, summarizer.Document{Name: doc.OriginalName, Text: doc.Text})
	}

	runCtx, cancel := s.withTimeout(ctx)
	defer cancel()

	res, err := s.engine.SummarizeMultiple(runCtx, docs, call)
	if err != nil {
		return nil, fmt.Errorf("summarize %d documents: %w", len(docs), err)
	}

	ids := make([]string, 0, len(seen))
	for _, id := range documentIDs {
		ids = append(ids, strings.TrimSpace(id))
	}

	return s.persist(ctx, userID, ids, domain.SummaryTypeMultiple, res)
}

func (s *Service) Get(ctx context.Context, userID string, summaryID string) (*domain.Summary, error) {
	summary, err := s.store.FindSummaryByID(ctx, summaryID)
	if err != nil {
		return nil, fmt.Errorf("get summary: %w", err)
	}

	if summary.UserID != userID {
		return nil, fmt.Errorf("get summary %s: %w", summaryID, store.ErrNotFound)
	}

	return summary, nil
}

func (s *Service) List(
	ctx context.Context,
	userID string,
	filter domain.SummaryFilter,
) ([]domain.Summary, error) {
	list, err := s.store.FindSummariesByUserID(ctx, userID, filter)
	if err != nil {
		return nil, fmt.Errorf("list summaries: %w", err)
	}

	return list, nil
}

func (s *Service) Delete(ctx context.Context, userID string, summaryID string) error {
	if _, err := s.Get(ctx, userID, summaryID); err != nil {
		return err
	}

	if err := s.store.DeleteSummary(ctx, summaryID); err != nil {
		return fmt.Errorf("delete summary: %w", err)
	}

	s.log.InfoContext(ctx, "Summary is deleted",
		"summaryID", summaryID,
		"userID", userID)

	return nil
}

func (s *Service) Status(ctx context.Context) Status {
	return Status{
		Configured: s.engine.Configured(),
		Model:      s.engine.Model(),
		Connection: s.engine.TestConnection(ctx),
	}
}

func (s *Service) completedDocument(
	ctx context.Context,
	userID string,
	documentID string,
) (*domain.Document, error) {
	doc, err := s.store.FindDocumentByID(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("get document: %w", err)
	}

	if doc.UserID != userID {
		return nil, fmt.Errorf("get document %s: %w", documentID, store.ErrNotFound)
	}

	if doc.Status != domain.DocumentStatusCompleted {
		return nil, fmt.Errorf(
			"%w: document %s is %s, text extraction must complete first",
			domain.ErrInvalidInput,
			documentID,
			doc.Status,
		)
	}

	if strings.TrimSpace(doc.Text) == "" {
		return nil, fmt.Errorf("%w: document %s has no text", domain.ErrInvalidInput, documentID)
	}

	return doc, nil
}

func (s *Service) persist(
	ctx context.Context,
	userID string,
	documentIDs []string,
	summaryType domain.SummaryType,
	res *summarizer.Result,
) (*Outcome, error) {
	// Documents can be deleted while a long summarization runs.
	for _, id := range documentIDs {
		if _, err := s.store.FindDocumentByID(ctx, id); err != nil {
			return nil, fmt.Errorf("save summary: document %s: %w", id, err)
		}
	}

	summary := &domain.Summary{
		ID:               uuid.NewString(),
		UserID:           userID,
		DocumentIDs:      documentIDs,
		Type:             summaryType,
		Content:          res.Content,
		Model:            res.Model,
		TokensUsed:       res.TokensUsed,
		ProcessingTimeMs: res.ProcessingTimeMs,
		Method:           string(res.Method),
		ChunkCount:       res.ChunkCount,
		DocumentCount:    res.DocumentCount,
		CreatedAt:        s.now().UTC(),
	}

	if err := s.store.CreateSummary(ctx, summary); err != nil {
		return nil, fmt.Errorf("save summary: %w", err)
	}

	s.log.InfoContext(ctx, "Summary is created",
		"summaryID", summary.ID,
		"userID", userID,
		"type", summaryType,
		"method", summary.Method,
		"documentCount", len(documentIDs),
		"tokensUsed", summary.TokensUsed,
		"processingTimeMs", summary.ProcessingTimeMs)

	return &Outcome{Summary: summary, Individual: res.Individual}, nil
}

func (s *Service) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(ctx)
	}

	return context.WithTimeout(ctx, s.timeout)
}
