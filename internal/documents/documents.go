package documents

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"docsummary/internal/domain"
	"docsummary/internal/store"
)

type Storage interface {
	Save(userID string, originalName string, r io.Reader) (string, int64, error)
	Remove(path string) error
}

type Enqueuer interface {
	Enqueue(ctx context.Context, documentID string) error
}

type Service struct {
	store   store.Store
	storage Storage
	queue   Enqueuer
	now     func() time.Time
	log     *slog.Logger
}

func New(s store.Store, storage Storage, queue Enqueuer, log *slog.Logger) *Service {
	return &Service{
		store:   s,
		storage: storage,
		queue:   queue,
		now:     time.Now,
		log:     log,
	}
}

// Upload stores the file, creates a pending document and queues its text
// extraction. A full queue leaves the document pending for the scheduler.
func (s *Service) Upload(
	ctx context.Context,
	userID string,
	originalName string,
	r io.Reader,
) (*domain.Document, error) {
	originalName = filepath.Base(strings.TrimSpace(originalName))

	path, size, err := s.storage.Save(userID, originalName, r)
	if err != nil {
		return nil, fmt.Errorf("save upload: %w", err)
	}

	now := s.now().UTC()
	doc := &domain.Document{
		ID:           uuid.NewString(),
		UserID:       userID,
		OriginalName: originalName,
		StoredPath:   path,
		Size:         size,
		Status:       domain.DocumentStatusPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err = s.store.CreateDocument(ctx, doc); err != nil {
		if removeErr := s.storage.Remove(path); removeErr != nil {
			s.log.WarnContext(ctx, "Failed to remove orphaned upload",
				"error", removeErr,
				"path", path)
		}

		return nil, fmt.Errorf("create document: %w", err)
	}

	s.log.InfoContext(ctx, "Document is uploaded",
		"documentID", doc.ID,
		"userID", userID,
		"size", size)

	if err = s.queue.Enqueue(ctx, doc.ID); err != nil {
		s.log.WarnContext(ctx, "Failed to queue document extraction",
			"error", err,
			"documentID", doc.ID)
	}

	return doc, nil
}

// Get returns a document owned by userID. Documents of other users are
// reported as not found.
func (s *Service) Get(ctx context.Context, userID string, documentID string) (*domain.Document, error) {
	doc, err := s.store.FindDocumentByID(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("get document: %w", err)
	}

	if doc.UserID != userID {
		return nil, fmt.Errorf("get document %s: %w", documentID, store.ErrNotFound)
	}

	return doc, nil
}

func (s *Service) List(ctx context.Context, userID string) ([]domain.Document, error) {
	docs, err := s.store.FindDocumentsByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}

	return docs, nil
}

// Text returns the extracted text of a completed document.
func (s *Service) Text(ctx context.Context, userID string, documentID string) (string, error) {
	doc, err := s.Get(ctx, userID, documentID)
	if err != nil {
		return "", err
	}

	if doc.Status != domain.DocumentStatusCompleted {
		return "", fmt.Errorf("%w: document %s is %s", domain.ErrInvalidInput, documentID, doc.Status)
	}

	return doc.Text, nil
}

// Delete removes the document record, its summaries and the stored file.
func (s *Service) Delete(ctx context.Context, userID string, documentID string) error {
	doc, err := s.Get(ctx, userID, documentID)
	if err != nil {
		return err
	}

	removed, err := s.store.DeleteSummariesByDocumentID(ctx, documentID)
	if err != nil {
		return fmt.Errorf("delete document summaries: %w", err)
	}

	if err = s.store.DeleteDocument(ctx, documentID); err != nil && !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("delete document: %w", err)
	}

	if err = s.storage.Remove(doc.StoredPath); err != nil {
		s.log.WarnContext(ctx, "Failed to remove document file",
			"error", err,
			"documentID", documentID,
			"path", doc.StoredPath)
	}

	s.log.InfoContext(ctx, "Document is deleted",
		"documentID", documentID,
		"userID", userID,
		"summariesDeleted", removed)

	return nil
}
