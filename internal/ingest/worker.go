package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/kalambet/learnbot/internal/annotate"
	"github.com/kalambet/learnbot/internal/session"
	"github.com/kalambet/learnbot/internal/storage"
)

// JobLearnCorpus is the job type that feeds a stored corpus to a bot.
const JobLearnCorpus = "learn_corpus"

// JobStore abstracts the job queue operations.
type JobStore interface {
	ClaimNextJob(types []string) (*storage.Job, error)
	CompleteJob(id string) error
	FailJob(id string, errMsg string) error
	FailJobPermanently(id string, errMsg string) error
	GetCorpus(id string) (storage.Corpus, error)
}

// Queue stores corpora and schedules them.
type Queue interface {
	SaveCorpus(c storage.Corpus) error
	EnqueueJob(job storage.Job) error
}

// Learner merges a corpus into a bot. Implemented by session.Session.
type Learner interface {
	Learn(ctx context.Context, req session.LearnRequest) (session.LearnResult, error)
}

type learnPayload struct {
	CorpusID string `json:"corpus_id"`
}

// Enqueue saves c and schedules a learn_corpus job for it. It returns the
// corpus with ID and CreatedAt filled in, and the job ID.
func Enqueue(q Queue, c storage.Corpus) (storage.Corpus, string, error) {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	if err := q.SaveCorpus(c); err != nil {
		return storage.Corpus{}, "", fmt.Errorf("saving corpus: %w", err)
	}

	payload, err := json.Marshal(learnPayload{CorpusID: c.ID})
	if err != nil {
		return storage.Corpus{}, "", fmt.Errorf("creating job payload: %w", err)
	}
	job := storage.Job{
		ID:          uuid.New().String(),
		Type:        JobLearnCorpus,
		PayloadJSON: string(payload),
	}
	if err := q.EnqueueJob(job); err != nil {
		return storage.Corpus{}, "", fmt.Errorf("enqueueing job: %w", err)
	}
	return c, job.ID, nil
}

// Worker processes learn_corpus jobs from the SQLite job queue.
type Worker struct {
	store   JobStore
	learner Learner
	poll    time.Duration
	logger  *slog.Logger
}

// NewWorker creates a Worker with the given dependencies.
// If pollInterval is <= 0, it defaults to 500ms.
func NewWorker(store JobStore, learner Learner, pollInterval time.Duration) *Worker {
	if pollInterval <= 0 {
		pollInterval = 500 * time.Millisecond
	}
	return &Worker{
		store:   store,
		learner: learner,
		poll:    pollInterval,
		logger:  slog.Default(),
	}
}

// Run polls for jobs until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		done, err := w.RunOnce(ctx)
		if err != nil {
			w.logger.Error("worker iteration failed", "error", err)
		}
		if done {
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(w.poll):
		}
	}
}

// RunOnce claims and processes a single learn_corpus job.
// Returns true if a job was processed (regardless of success/failure).
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	job, err := w.store.ClaimNextJob([]string{JobLearnCorpus})
	if err != nil {
		return false, fmt.Errorf("claiming job: %w", err)
	}
	if job == nil {
		return false, nil
	}

	if err := w.processJob(ctx, job); err != nil {
		fail := w.store.FailJob
		if isPermanent(err) {
			fail = w.store.FailJobPermanently
		}
		w.logger.Warn("job failed", "job_id", job.ID, "permanent", isPermanent(err), "error", err)
		if failErr := fail(job.ID, err.Error()); failErr != nil {
			w.logger.Error("failed to mark job as failed", "job_id", job.ID, "error", failErr)
		}
		return true, nil
	}

	if err := w.store.CompleteJob(job.ID); err != nil {
		return true, fmt.Errorf("completing job %s: %w", job.ID, err)
	}
	return true, nil
}

// isPermanent reports errors that retrying cannot fix.
func isPermanent(err error) bool {
	return errors.Is(err, annotate.ErrCorpusFormat) ||
		errors.Is(err, session.ErrInvalidName) ||
		errors.Is(err, storage.ErrNotFound) ||
		errors.Is(err, errBadPayload)
}

var errBadPayload = errors.New("malformed job payload")

func (w *Worker) processJob(ctx context.Context, job *storage.Job) error {
	var payload learnPayload
	if err := json.Unmarshal([]byte(job.PayloadJSON), &payload); err != nil {
		return fmt.Errorf("%w: %v", errBadPayload, err)
	}

	c, err := w.store.GetCorpus(payload.CorpusID)
	if err != nil {
		return fmt.Errorf("loading corpus %s: %w", payload.CorpusID, err)
	}

	res, err := w.learner.Learn(ctx, session.LearnRequest{
		Bot:      c.Bot,
		Category: c.Category,
		Corpus:   c.Content,
	})
	if err != nil {
		return fmt.Errorf("learning corpus %s: %w", c.ID, err)
	}

	w.logger.Info("corpus learned",
		"corpus_id", c.ID,
		"bot", res.Bot,
		"category", res.Category,
		"added_words", res.AddedWords,
		"added_questions", res.AddedQuestions,
	)
	return nil
}
