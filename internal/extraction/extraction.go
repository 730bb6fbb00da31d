package extraction

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"docsummary/internal/domain"
	"docsummary/internal/extractor"
	"docsummary/internal/store"
)

const (
	queueSize      = 1000
	extractTimeout = 5 * time.Minute

	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

var (
	ErrQueueFull = errors.New("extraction queue is full")
	ErrStopped   = errors.New("extraction queue is stopped")
)

type Recorder interface {
	ObserveExtraction(status string)
}

type nopRecorder struct{}

func (nopRecorder) ObserveExtraction(string) {}

// Queue moves uploaded documents from pending through processing to
// completed or failed on a fixed pool of workers.
type Queue struct {
	store     store.Store
	extractor extractor.Extractor
	rec       Recorder
	workers   int
	jobs      chan string
	queued    map[string]struct{}
	mu        sync.Mutex
	wg        sync.WaitGroup
	ctx       context.Context
	cancel    context.CancelFunc
	now       func() time.Time
	log       *slog.Logger
}

func New(
	s store.Store,
	ext extractor.Extractor,
	rec Recorder,
	workers int,
	log *slog.Logger,
) *Queue {
	ctx, cancel := context.WithCancel(context.Background())

	if rec == nil {
		rec = nopRecorder{}
	}

	return &Queue{
		store:     s,
		extractor: ext,
		rec:       rec,
		workers:   max(workers, 1),
		jobs:      make(chan string, queueSize),
		queued:    make(map[string]struct{}),
		ctx:       ctx,
		cancel:    cancel,
		now:       time.Now,
		log:       log,
	}
}

func (q *Queue) Start() {
	for range q.workers {
		q.wg.Go(q.work)
	}
}

// Stop stops accepting jobs and waits for the workers to return. Jobs still
// queued stay pending in the store.
func (q *Queue) Stop() {
	q.cancel()
	q.wg.Wait()
}

// Enqueue schedules extraction of a document without blocking. A document
// that is already queued or in progress is skipped.
func (q *Queue) Enqueue(ctx context.Context, documentID string) error {
	if q.ctx.Err() != nil {
		return ErrStopped
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if _, ok := q.queued[documentID]; ok {
		q.log.DebugContext(ctx, "Document is already queued for extraction",
			"documentID", documentID)

		return nil
	}

	select {
	case q.jobs <- documentID:
		q.queued[documentID] = struct{}{}

		return nil
	default:
		q.log.WarnContext(ctx, "Extraction queue is full",
			"documentID", documentID,
			"queueLen", len(q.jobs))

		return ErrQueueFull
	}
}

func (q *Queue) work() {
	for {
		select {
		case id := <-q.jobs:
			q.process(id)
		case <-q.ctx.Done():
			return
		}
	}
}

func (q *Queue) process(documentID string) {
	defer func() {
		q.mu.Lock()
		delete(q.queued, documentID)
		q.mu.Unlock()
	}()

	ctx, cancel := context.WithTimeout(q.ctx, extractTimeout)
	defer cancel()

	doc, err := q.store.FindDocumentByID(ctx, documentID)
	if err != nil {
		q.log.WarnContext(ctx, "Failed to load document for extraction",
			"error", err,
			"documentID", documentID)

		return
	}

	if doc.Status == domain.DocumentStatusCompleted || doc.Status == domain.DocumentStatusFailed {
		return
	}

	doc.Status = domain.DocumentStatusProcessing
	doc.UpdatedAt = q.now().UTC()
	if err = q.store.UpdateDocument(ctx, doc); err != nil {
		q.log.ErrorContext(ctx, "Failed to mark document as processing",
			"error", err,
			"documentID", documentID)

		return
	}

	start := time.Now()
	ext, err := q.extractor.Extract(ctx, doc.StoredPath)

	if q.ctx.Err() != nil {
		q.log.InfoContext(ctx, "Extraction is interrupted by shutdown",
			"documentID", documentID)

		return
	}

	doc.UpdatedAt = q.now().UTC()

	if err != nil {
		doc.Status = domain.DocumentStatusFailed
		doc.Error = err.Error()
		q.rec.ObserveExtraction(StatusFailed)

		q.log.WarnContext(ctx, "Document extraction failed",
			"error", err,
			"documentID", documentID,
			"elapsed", time.Since(start))
	} else {
		doc.Status = domain.DocumentStatusCompleted
		doc.Text = ext.Text
		doc.PageCount = ext.PageCount
		doc.Metadata = ext.Metadata
		doc.Error = ""
		q.rec.ObserveExtraction(StatusCompleted)

		q.log.InfoContext(ctx, "Document is extracted",
			"documentID", documentID,
			"pageCount", ext.PageCount,
			"textLength", len(ext.Text),
			"elapsed", time.Since(start))
	}

	if err = q.store.UpdateDocument(ctx, doc); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			q.log.InfoContext(ctx, "Document is deleted during extraction",
				"documentID", documentID)

			return
		}

		q.log.ErrorContext(ctx, "Failed to save extraction result",
			"error", fmt.Errorf("update document: %w", err),
			"documentID", documentID)
	}
}
