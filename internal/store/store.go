// Package store defines the persistence contract for users, documents and
// summaries. Implementations live in store/jsonfile and internal/database.
package store

import (
	"context"
	"errors"
	"maps"
	"slices"
	"sort"

	"docsummary/internal/domain"
)

var (
	ErrNotFound = errors.New("record not found")
	ErrConflict = errors.New("record already exists")
)

// Store persists records. Callers assign ids and timestamps; lookups return
// copies that are safe to mutate.
type Store interface {
	CreateUser(ctx context.Context, user *domain.User) error
	FindUserByID(ctx context.Context, id string) (*domain.User, error)
	FindUserByEmail(ctx context.Context, email string) (*domain.User, error)
	UpdateUser(ctx context.Context, user *domain.User) error

	CreateDocument(ctx context.Context, doc *domain.Document) error
	FindDocumentByID(ctx context.Context, id string) (*domain.Document, error)
	UpdateDocument(ctx context.Context, doc *domain.Document) error
	DeleteDocument(ctx context.Context, id string) error
	// FindDocumentsByUserID returns the user's documents, newest first.
	FindDocumentsByUserID(ctx context.Context, userID string) ([]domain.Document, error)
	FindDocumentsByStatus(ctx context.Context, statuses ...domain.DocumentStatus) ([]domain.Document, error)

	CreateSummary(ctx context.Context, summary *domain.Summary) error
	FindSummaryByID(ctx context.Context, id string) (*domain.Summary, error)
	// FindSummariesByUserID returns the user's summaries matching filter,
	// newest first.
	FindSummariesByUserID(ctx context.Context, userID string, filter domain.SummaryFilter) ([]domain.Summary, error)
	DeleteSummary(ctx context.Context, id string) error
	DeleteSummariesByDocumentID(ctx context.Context, documentID string) (int, error)

	Close() error
}

func SortDocumentsNewestFirst(docs []domain.Document) {
	sort.SliceStable(docs, func(i, j int) bool {
		return docs[i].CreatedAt.After(docs[j].CreatedAt)
	})
}

func SortSummariesNewestFirst(summaries []domain.Summary) {
	sort.SliceStable(summaries, func(i, j int) bool {
		return summaries[i].CreatedAt.After(summaries[j].CreatedAt)
	})
}

func CloneDocument(doc domain.Document) domain.Document {
	doc.Metadata = maps.Clone(doc.Metadata)

	return doc
}

func CloneSummary(s domain.Summary) domain.Summary {
	s.DocumentIDs = slices.Clone(s.DocumentIDs)

	if s.ChunkCount != nil {
		n := *s.ChunkCount
		s.ChunkCount = &n
	}
	if s.DocumentCount != nil {
		n := *s.DocumentCount
		s.DocumentCount = &n
	}

	return s
}
