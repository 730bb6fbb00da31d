package summaries

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docsummary/internal/domain"
	"docsummary/internal/store"
	"docsummary/internal/store/jsonfile"
	"docsummary/internal/summarizer"
)

type stubInvoker struct {
	mu    sync.Mutex
	calls []summarizer.Request
	err   error
	delay time.Duration
	// onCall runs before every model call.
	onCall func()
}

func (s *stubInvoker) Invoke(ctx context.Context, req summarizer.Request) (*summarizer.Response, error) {
	s.mu.Lock()
	s.calls = append(s.calls, req)
	s.mu.Unlock()

	if s.onCall != nil {
		s.onCall()
	}

	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if s.err != nil {
		return nil, s.err
	}

	return &summarizer.Response{Text: "summary via " + string(req.Step), Model: "stub-model"}, nil
}

func (s *stubInvoker) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.calls)
}

type fixture struct {
	svc     *Service
	store   store.Store
	invoker *stubInvoker
}

func newFixture(t *testing.T, timeout time.Duration) *fixture {
	t.Helper()

	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	s, err := jsonfile.Open(context.Background(), t.TempDir(), log)
	require.NoError(t, err)

	inv := &stubInvoker{}
	engine := summarizer.NewEngine(inv, summarizer.DefaultOptions(), nil, log)

	return &fixture{
		svc:     New(s, engine, timeout, log),
		store:   s,
		invoker: inv,
	}
}

func (f *fixture) addDocument(t *testing.T, id, userID string, status domain.DocumentStatus, text string) {
	t.Helper()

	now := time.Now().UTC()
	require.NoError(t, f.store.CreateDocument(context.Background(), &domain.Document{
		ID:           id,
		UserID:       userID,
		OriginalName: id + ".pdf",
		Status:       status,
		Text:         text,
		CreatedAt:    now,
		UpdatedAt:    now,
	}))
}

func TestSummarizeDocument(t *testing.T) {
	f := newFixture(t, time.Minute)
	f.addDocument(t, "d1", "u1", domain.DocumentStatusCompleted, "A short document about testing.")

	out, err := f.svc.SummarizeDocument(context.Background(), "u1", "d1", summarizer.CallOptions{})
	require.NoError(t, err)

	s := out.Summary
	assert.Equal(t, "summary via stuff", s.Content)
	assert.Equal(t, "stub-model", s.Model)
	assert.Equal(t, "stuff", s.Method)
	assert.Equal(t, domain.SummaryTypeSingle, s.Type)
	assert.Equal(t, []string{"d1"}, s.DocumentIDs)
	assert.Positive(t, s.TokensUsed)
	assert.Nil(t, s.ChunkCount)

	stored, err := f.svc.Get(context.Background(), "u1", s.ID)
	require.NoError(t, err)
	assert.Equal(t, s.Content, stored.Content)
}

func TestSummarizeDocumentMapReduce(t *testing.T) {
	f := newFixture(t, time.Minute)
	f.addDocument(t, "big", "u1", domain.DocumentStatusCompleted, strings.Repeat("word ", 40_000))

	out, err := f.svc.SummarizeDocument(context.Background(), "u1", "big", summarizer.CallOptions{})
	require.NoError(t, err)

	assert.Equal(t, "map_reduce", out.Summary.Method)
	require.NotNil(t, out.Summary.ChunkCount)
	assert.Equal(t, 53, *out.Summary.ChunkCount)
	assert.Equal(t, 54, f.invoker.callCount())
}

func TestSummarizeDocumentRejections(t *testing.T) {
	f := newFixture(t, time.Minute)
	f.addDocument(t, "pending", "u1", domain.DocumentStatusPending, "")
	f.addDocument(t, "failed", "u1", domain.DocumentStatusFailed, "")
	f.addDocument(t, "blank", "u1", domain.DocumentStatusCompleted, "   ")
	f.addDocument(t, "foreign", "u2", domain.DocumentStatusCompleted, "text")

	tests := []struct {
		name    string
		id      string
		wantErr error
	}{
		{name: "pending", id: "pending", wantErr: domain.ErrInvalidInput},
		{name: "failed", id: "failed", wantErr: domain.ErrInvalidInput},
		{name: "blank text", id: "blank", wantErr: domain.ErrInvalidInput},
		{name: "other user", id: "foreign", wantErr: store.ErrNotFound},
		{name: "missing", id: "missing", wantErr: store.ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.SummarizeDocument(context.Background(), "u1", tt.id, summarizer.CallOptions{})
			require.ErrorIs(t, err, tt.wantErr)
		})
	}

	assert.Zero(t, f.invoker.callCount())
}

func TestSummarizeDocuments(t *testing.T) {
	f := newFixture(t, time.Minute)
	f.addDocument(t, "a", "u1", domain.DocumentStatusCompleted, "First document text.")
	f.addDocument(t, "b", "u1", domain.DocumentStatusCompleted, "Second document text.")

	out, err := f.svc.SummarizeDocuments(context.Background(), "u1", []string{"b", "a"}, summarizer.CallOptions{})
	require.NoError(t, err)

	s := out.Summary
	assert.Equal(t, domain.SummaryTypeMultiple, s.Type)
	assert.Equal(t, []string{"b", "a"}, s.DocumentIDs)
	assert.Equal(t, "stuff", s.Method)
	require.NotNil(t, s.DocumentCount)
	assert.Equal(t, 2, *s.DocumentCount)

	require.Equal(t, 1, f.invoker.callCount())
	prompt := f.invoker.calls[0].Prompt
	assert.Less(t,
		strings.Index(prompt, "=== Document 1: b.pdf ==="),
		strings.Index(prompt, "=== Document 2: a.pdf ==="),
		"caller order is preserved")
}

func TestSummarizeDocumentsHierarchical(t *testing.T) {
	f := newFixture(t, time.Minute)
	f.addDocument(t, "a", "u1", domain.DocumentStatusCompleted, strings.Repeat("a", 30_000))
	f.addDocument(t, "b", "u1", domain.DocumentStatusCompleted, strings.Repeat("b", 30_000))

	out, err := f.svc.SummarizeDocuments(context.Background(), "u1", []string{"a", "b"}, summarizer.CallOptions{})
	require.NoError(t, err)

	assert.Equal(t, "hierarchical", out.Summary.Method)
	require.Len(t, out.Individual, 2)
	assert.Equal(t, "a.pdf", out.Individual[0].Name)
	assert.Equal(t, 3, f.invoker.callCount())
}

func TestSummarizeDocumentsRejections(t *testing.T) {
	f := newFixture(t, time.Minute)
	f.addDocument(t, "a", "u1", domain.DocumentStatusCompleted, "text a")
	f.addDocument(t, "p", "u1", domain.DocumentStatusProcessing, "")

	tests := []struct {
		name    string
		ids     []string
		wantErr error
	}{
		{name: "single id", ids: []string{"a"}, wantErr: domain.ErrInvalidInput},
		{name: "no ids", ids: nil, wantErr: domain.ErrInvalidInput},
		{name: "duplicates", ids: []string{"a", "a"}, wantErr: domain.ErrInvalidInput},
		{name: "not ready", ids: []string{"a", "p"}, wantErr: domain.ErrInvalidInput},
		{name: "missing", ids: []string{"a", "zzz"}, wantErr: store.ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.SummarizeDocuments(context.Background(), "u1", tt.ids, summarizer.CallOptions{})
			require.ErrorIs(t, err, tt.wantErr)
		})
	}

	assert.Zero(t, f.invoker.callCount())
}

func TestFailedSummaryIsNotPersisted(t *testing.T) {
	f := newFixture(t, time.Minute)
	f.addDocument(t, "d1", "u1", domain.DocumentStatusCompleted, "text")
	f.invoker.err = errors.Join(summarizer.ErrUpstreamError, errors.New("rate limited"))

	_, err := f.svc.SummarizeDocument(context.Background(), "u1", "d1", summarizer.CallOptions{})
	require.ErrorIs(t, err, summarizer.ErrUpstreamError)

	list, err := f.svc.List(context.Background(), "u1", domain.SummaryFilter{})
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestSummaryOfDeletedDocumentIsNotPersisted(t *testing.T) {
	tests := []struct {
		name      string
		deleteID  string
		summarize func(f *fixture) error
	}{
		{
			name:     "single",
			deleteID: "d1",
			summarize: func(f *fixture) error {
				_, err := f.svc.SummarizeDocument(context.Background(), "u1", "d1", summarizer.CallOptions{})
				return err
			},
		},
		{
			name:     "multiple",
			deleteID: "d2",
			summarize: func(f *fixture) error {
				_, err := f.svc.SummarizeDocuments(
					context.Background(), "u1", []string{"d1", "d2"}, summarizer.CallOptions{},
				)
				return err
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, time.Minute)
			f.addDocument(t, "d1", "u1", domain.DocumentStatusCompleted, "first text")
			f.addDocument(t, "d2", "u1", domain.DocumentStatusCompleted, "second text")

			var once sync.Once
			f.invoker.onCall = func() {
				once.Do(func() {
					require.NoError(t, f.store.DeleteDocument(context.Background(), tt.deleteID))
				})
			}

			err := tt.summarize(f)
			require.ErrorIs(t, err, store.ErrNotFound)
			assert.Contains(t, err.Error(), tt.deleteID)
			assert.Equal(t, 1, f.invoker.callCount())

			list, err := f.svc.List(context.Background(), "u1", domain.SummaryFilter{})
			require.NoError(t, err)
			assert.Empty(t, list)
		})
	}
}

func TestSummarizeTimeout(t *testing.T) {
	f := newFixture(t, 20*time.Millisecond)
	f.addDocument(t, "d1", "u1", domain.DocumentStatusCompleted, "text")
	f.invoker.delay = time.Second

	_, err := f.svc.SummarizeDocument(context.Background(), "u1", "d1", summarizer.CallOptions{})
	require.ErrorIs(t, err, context.DeadlineExceeded)

	list, err := f.svc.List(context.Background(), "u1", domain.SummaryFilter{})
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestGetListDeleteScopedToOwner(t *testing.T) {
	f := newFixture(t, time.Minute)
	f.addDocument(t, "d1", "u1", domain.DocumentStatusCompleted, "text")

	out, err := f.svc.SummarizeDocument(context.Background(), "u1", "d1", summarizer.CallOptions{})
	require.NoError(t, err)
	id := out.Summary.ID

	_, err = f.svc.Get(context.Background(), "u2", id)
	require.ErrorIs(t, err, store.ErrNotFound)
	require.ErrorIs(t, f.svc.Delete(context.Background(), "u2", id), store.ErrNotFound)

	list, err := f.svc.List(context.Background(), "u1", domain.SummaryFilter{DocumentID: "d1"})
	require.NoError(t, err)
	require.Len(t, list, 1)

	require.NoError(t, f.svc.Delete(context.Background(), "u1", id))

	_, err = f.svc.Get(context.Background(), "u1", id)
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestStatus(t *testing.T) {
	f := newFixture(t, time.Minute)

	status := f.svc.Status(context.Background())
	assert.True(t, status.Configured)
	assert.Equal(t, summarizer.DefaultModel, status.Model)
	assert.True(t, status.Connection.Success)
	assert.Equal(t, "stub-model", status.Connection.Model)

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	unconfigured := New(f.store, summarizer.NewEngine(nil, summarizer.Options{}, nil, log), time.Minute, log)

	status = unconfigured.Status(context.Background())
	assert.False(t, status.Configured)
	assert.False(t, status.Connection.Success)
	assert.NotEmpty(t, status.Connection.Error)
}
