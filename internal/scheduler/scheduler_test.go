package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docsummary/internal/domain"
	"docsummary/internal/store/jsonfile"
)

type recordingQueue struct {
	ids  []string
	fail map[string]bool
}

func (q *recordingQueue) Enqueue(_ context.Context, id string) error {
	if q.fail[id] {
		return errors.New("queue is full")
	}

	q.ids = append(q.ids, id)

	return nil
}

func TestReconcile(t *testing.T) {
	ctx := context.Background()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	s, err := jsonfile.Open(ctx, t.TempDir(), log)
	require.NoError(t, err)

	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	docs := []struct {
		id      string
		status  domain.DocumentStatus
		updated time.Time
	}{
		{id: "stale-pending", status: domain.DocumentStatusPending, updated: now.Add(-time.Hour)},
		{id: "stale-processing", status: domain.DocumentStatusProcessing, updated: now.Add(-10 * time.Minute)},
		{id: "fresh-pending", status: domain.DocumentStatusPending, updated: now.Add(-time.Second)},
		{id: "completed", status: domain.DocumentStatusCompleted, updated: now.Add(-time.Hour)},
		{id: "failed", status: domain.DocumentStatusFailed, updated: now.Add(-time.Hour)},
		{id: "stale-rejected", status: domain.DocumentStatusPending, updated: now.Add(-time.Hour)},
	}
	for _, d := range docs {
		require.NoError(t, s.CreateDocument(ctx, &domain.Document{
			ID:        d.id,
			UserID:    "u1",
			Status:    d.status,
			CreatedAt: d.updated,
			UpdatedAt: d.updated,
		}))
	}

	queue := &recordingQueue{fail: map[string]bool{"stale-rejected": true}}
	sched := New(ctx, "", s, queue, log)
	sched.now = func() time.Time { return now }

	queued, err := sched.Reconcile(ctx, StaleAfter)
	require.NoError(t, err)

	assert.Equal(t, 2, queued)
	assert.ElementsMatch(t, []string{"stale-pending", "stale-processing"}, queue.ids)
}

func TestStartRejectsInvalidSpec(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	sched := New(context.Background(), "not a cron spec", nil, &recordingQueue{}, log)
	require.Error(t, sched.Start())
}
