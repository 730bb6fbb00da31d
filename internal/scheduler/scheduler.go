package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"docsummary/internal/domain"
	"docsummary/internal/store"
)

const (
	DefaultReconcileSpec  = "*/10 * * * *"
	Timezone              = "UTC"
	TimezoneOffsetSeconds = 0
	reconcileTimeout      = 5 * time.Minute
)

// StaleAfter is how long a document may stay pending or processing before it
// is queued again.
const StaleAfter = 2 * time.Minute

type Enqueuer interface {
	Enqueue(ctx context.Context, documentID string) error
}

// Scheduler periodically re-queues documents whose extraction never
// finished, e.g. because the process restarted mid-way.
type Scheduler struct {
	ctx   context.Context
	cron  *cron.Cron
	spec  string
	store store.Store
	queue Enqueuer
	now   func() time.Time
	log   *slog.Logger
}

func New(
	ctx context.Context,
	spec string,
	s store.Store,
	queue Enqueuer,
	log *slog.Logger,
) *Scheduler {
	c := cron.New(cron.WithLocation(time.FixedZone(Timezone, TimezoneOffsetSeconds)))

	if spec == "" {
		spec = DefaultReconcileSpec
	}

	return &Scheduler{
		ctx:   ctx,
		cron:  c,
		spec:  spec,
		store: s,
		queue: queue,
		now:   time.Now,
		log:   log,
	}
}

func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(s.spec, s.reconcile); err != nil {
		return err
	}

	s.cron.Start()

	return nil
}

func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

func (s *Scheduler) reconcile() {
	ctx, cancel := context.WithTimeout(s.ctx, reconcileTimeout)
	defer cancel()

	select {
	case <-ctx.Done():
		s.log.InfoContext(ctx, "Scheduler context is done",
			"error", ctx.Err())
		return
	default:
	}

	if _, err := s.Reconcile(ctx, StaleAfter); err != nil {
		s.log.ErrorContext(ctx, "Failed to reconcile documents",
			"error", err)
	}
}

// Reconcile queues every pending or processing document that has not been
// updated for olderThan and returns how many were queued.
func (s *Scheduler) Reconcile(ctx context.Context, olderThan time.Duration) (int, error) {
	docs, err := s.store.FindDocumentsByStatus(ctx,
		domain.DocumentStatusPending,
		domain.DocumentStatusProcessing)
	if err != nil {
		return 0, err
	}

	cutoff := s.now().Add(-olderThan)
	queued := 0

	for _, doc := range docs {
		if doc.UpdatedAt.After(cutoff) {
			continue
		}

		if err = s.queue.Enqueue(ctx, doc.ID); err != nil {
			s.log.WarnContext(ctx, "Failed to requeue document",
				"error", err,
				"documentID", doc.ID,
				"status", doc.Status)

			continue
		}

		queued++
	}

	if queued > 0 {
		s.log.InfoContext(ctx, "Stale documents are requeued",
			"queued", queued,
			"candidates", len(docs))
	}

	return queued, nil
}
