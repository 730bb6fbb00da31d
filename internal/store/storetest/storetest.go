// Package storetest holds behavior checks shared by every store.Store
// implementation.
package storetest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docsummary/internal/domain"
	"docsummary/internal/store"
)

var base = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

// Run exercises a fresh store returned by open for each subtest.
func Run(t *testing.T, open func(t *testing.T) store.Store) {
	t.Helper()

	t.Run("users", func(t *testing.T) { testUsers(t, open(t)) })
	t.Run("documents", func(t *testing.T) { testDocuments(t, open(t)) })
	t.Run("summaries", func(t *testing.T) { testSummaries(t, open(t)) })
}

func testUsers(t *testing.T, s store.Store) {
	ctx := context.Background()

	user := &domain.User{
		ID:           "u1",
		Email:        "ada@example.com",
		Name:         "Ada",
		PasswordHash: "hash",
		CreatedAt:    base,
		UpdatedAt:    base,
	}
	require.NoError(t, s.CreateUser(ctx, user))

	dup := *user
	dup.ID = "u2"
	dup.Email = "ADA@example.com"
	require.ErrorIs(t, s.CreateUser(ctx, &dup), store.ErrConflict)

	got, err := s.FindUserByEmail(ctx, "ada@example.com")
	require.NoError(t, err)
	assert.Equal(t, "u1", got.ID)
	assert.Equal(t, "hash", got.PasswordHash)

	got.Name = "Ada Lovelace"
	got.UpdatedAt = base.Add(time.Hour)
	require.NoError(t, s.UpdateUser(ctx, got))

	got, err = s.FindUserByID(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "Ada Lovelace", got.Name)
	assert.True(t, got.UpdatedAt.Equal(base.Add(time.Hour)))

	_, err = s.FindUserByID(ctx, "missing")
	require.ErrorIs(t, err, store.ErrNotFound)

	_, err = s.FindUserByEmail(ctx, "nobody@example.com")
	require.ErrorIs(t, err, store.ErrNotFound)

	require.ErrorIs(t, s.UpdateUser(ctx, &domain.User{ID: "missing"}), store.ErrNotFound)
}

func testDocuments(t *testing.T, s store.Store) {
	ctx := context.Background()

	for i, id := range []string{"d1", "d2", "d3"} {
		userID := "u1"
		if id == "d3" {
			userID = "u2"
		}

		require.NoError(t, s.CreateDocument(ctx, &domain.Document{
			ID:           id,
			UserID:       userID,
			OriginalName: id + ".pdf",
			StoredPath:   "/uploads/" + id + ".pdf",
			Size:         int64(100 * (i + 1)),
			Status:       domain.DocumentStatusPending,
			CreatedAt:    base.Add(time.Duration(i) * time.Minute),
			UpdatedAt:    base.Add(time.Duration(i) * time.Minute),
		}))
	}

	require.ErrorIs(t, s.CreateDocument(ctx, &domain.Document{ID: "d1"}), store.ErrConflict)

	docs, err := s.FindDocumentsByUserID(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "d2", docs[0].ID, "newest first")
	assert.Equal(t, "d1", docs[1].ID)

	doc, err := s.FindDocumentByID(ctx, "d1")
	require.NoError(t, err)

	doc.Status = domain.DocumentStatusCompleted
	doc.Text = "extracted text"
	doc.PageCount = 3
	doc.Metadata = map[string]string{"title": "Report", "pages": "3"}
	require.NoError(t, s.UpdateDocument(ctx, doc))

	doc.Metadata["title"] = "mutated after update"

	got, err := s.FindDocumentByID(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, domain.DocumentStatusCompleted, got.Status)
	assert.Equal(t, "extracted text", got.Text)
	assert.Equal(t, 3, got.PageCount)
	assert.Equal(t, "Report", got.Metadata["title"])

	pending, err := s.FindDocumentsByStatus(ctx, domain.DocumentStatusPending, domain.DocumentStatusProcessing)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"d2", "d3"}, documentIDs(pending))

	require.NoError(t, s.DeleteDocument(ctx, "d2"))
	require.ErrorIs(t, s.DeleteDocument(ctx, "d2"), store.ErrNotFound)

	_, err = s.FindDocumentByID(ctx, "d2")
	require.ErrorIs(t, err, store.ErrNotFound)

	require.ErrorIs(t, s.UpdateDocument(ctx, &domain.Document{ID: "d2"}), store.ErrNotFound)
}

func testSummaries(t *testing.T, s store.Store) {
	ctx := context.Background()

	chunkCount := 5
	documentCount := 2

	summaries := []domain.Summary{
		{
			ID:          "s1",
			UserID:      "u1",
			DocumentIDs: []string{"d1"},
			Type:        domain.SummaryTypeSingle,
			Content:     "first",
			Model:       "gpt-4o-mini",
			TokensUsed:  100,
			Method:      "stuff",
			CreatedAt:   base,
		},
		{
			ID:          "s2",
			UserID:      "u1",
			DocumentIDs: []string{"d1"},
			Type:        domain.SummaryTypeSingle,
			Content:     "second",
			Method:      "map_reduce",
			ChunkCount:  &chunkCount,
			CreatedAt:   base.Add(time.Minute),
		},
		{
			ID:            "s3",
			UserID:        "u1",
			DocumentIDs:   []string{"d1", "d2"},
			Type:          domain.SummaryTypeMultiple,
			Content:       "third",
			Method:        "hierarchical",
			DocumentCount: &documentCount,
			CreatedAt:     base.Add(2 * time.Minute),
		},
		{
			ID:          "s4",
			UserID:      "u2",
			DocumentIDs: []string{"d9"},
			Type:        domain.SummaryTypeSingle,
			Method:      "stuff",
			CreatedAt:   base.Add(3 * time.Minute),
		},
	}
	for i := range summaries {
		require.NoError(t, s.CreateSummary(ctx, &summaries[i]))
	}

	require.ErrorIs(t, s.CreateSummary(ctx, &domain.Summary{ID: "s1"}), store.ErrConflict)

	got, err := s.FindSummaryByID(ctx, "s2")
	require.NoError(t, err)
	require.NotNil(t, got.ChunkCount)
	assert.Equal(t, 5, *got.ChunkCount)
	assert.Nil(t, got.DocumentCount)

	got, err = s.FindSummaryByID(ctx, "s3")
	require.NoError(t, err)
	assert.Equal(t, []string{"d1", "d2"}, got.DocumentIDs)
	require.NotNil(t, got.DocumentCount)
	assert.Equal(t, 2, *got.DocumentCount)

	tests := []struct {
		name   string
		filter domain.SummaryFilter
		want   []string
	}{
		{name: "all newest first", want: []string{"s3", "s2", "s1"}},
		{name: "by method", filter: domain.SummaryFilter{Method: "map_reduce"}, want: []string{"s2"}},
		{name: "by type", filter: domain.SummaryFilter{Type: domain.SummaryTypeMultiple}, want: []string{"s3"}},
		{name: "by document", filter: domain.SummaryFilter{DocumentID: "d2"}, want: []string{"s3"}},
		{name: "limit", filter: domain.SummaryFilter{Limit: 2}, want: []string{"s3", "s2"}},
		{name: "no match", filter: domain.SummaryFilter{DocumentID: "d9"}, want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			list, err := s.FindSummariesByUserID(ctx, "u1", tt.filter)
			require.NoError(t, err)
			assert.Equal(t, tt.want, summaryIDs(list))
		})
	}

	removed, err := s.DeleteSummariesByDocumentID(ctx, "d2")
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	require.NoError(t, s.DeleteSummary(ctx, "s1"))
	require.ErrorIs(t, s.DeleteSummary(ctx, "s1"), store.ErrNotFound)

	list, err := s.FindSummariesByUserID(ctx, "u1", domain.SummaryFilter{})
	require.NoError(t, err)
	assert.Equal(t, []string{"s2"}, summaryIDs(list))
}

func documentIDs(docs []domain.Document) []string {
	var ids []string
	for _, d := range docs {
		ids = append(ids, d.ID)
	}

	return ids
}

func summaryIDs(summaries []domain.Summary) []string {
	var ids []string
	for _, s := range summaries {
		ids = append(ids, s.ID)
	}

	return ids
}
