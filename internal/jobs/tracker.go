// Komf - Media Server Metadata Synchronization
// Copyright 2026 The Komf Authors
// SPDX-License-Identifier: MIT
// https://github.com/komf-project/komf

/*
tracker.go - Metadata Job Tracking

The tracker runs synchronization work asynchronously and gives every run
a durable job row plus an in-memory progress stream. Late subscribers
get the replay buffer first, then live events. The replay buffer is
bounded; when it overflows the oldest events are dropped.

Job rows outlive the process, progress streams do not. Subscribing to a
job that only exists as a row (finished before a restart) replays
nothing and closes immediately. Subscribing to an unknown id yields a
single not-found event.
*/

package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/komf-project/komf/internal/logging"
	"github.com/komf-project/komf/internal/metrics"
	"github.com/komf-project/komf/internal/models"
)

// Store persists job rows.
type Store interface {
	InsertJob(ctx context.Context, job *models.MetadataJob) error
	FinishJob(ctx context.Context, id string, status models.JobStatus, message string, finishedAt time.Time) error
	GetJob(ctx context.Context, id string) (*models.MetadataJob, error)
	ListJobs(ctx context.Context, status models.JobStatus, page, pageSize int) (*models.JobPage, error)
	DeleteAllJobs(ctx context.Context) error
}

// Work is one synchronization run. Progress goes through emit; the
// returned error decides the terminal status.
type Work func(ctx context.Context, emit func(Event)) error

const subscriberBuffer = 64

// Tracker runs jobs and fans their progress events out to subscribers.
type Tracker struct {
	store      Store
	bufferSize int

	mu      sync.Mutex
	streams map[string]*stream

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// stream is the in-memory event state of one job.
type stream struct {
	mu     sync.Mutex
	buffer []Event
	subs   map[chan Event]struct{}
	closed bool
}

// NewTracker creates a tracker. bufferSize bounds the per-job replay
// buffer; values below 1 fall back to 100.
func NewTracker(store Store, bufferSize int) *Tracker {
	if bufferSize < 1 {
		bufferSize = 100
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Tracker{
		store:      store,
		bufferSize: bufferSize,
		streams:    make(map[string]*stream),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Track creates a job in RUNNING status and runs work asynchronously.
// The job id is returned as soon as the row is persisted; work runs on
// the tracker's own context so it survives the caller's request scope.
func (t *Tracker) Track(ctx context.Context, seriesID string, work Work) (string, error) {
	job := &models.MetadataJob{
		ID:        uuid.New().String(),
		SeriesID:  seriesID,
		Status:    models.JobStatusRunning,
		StartedAt: time.Now(),
	}
	if err := t.store.InsertJob(ctx, job); err != nil {
		return "", fmt.Errorf("failed to create job: %w", err)
	}

	s := &stream{subs: make(map[chan Event]struct{})}
	t.mu.Lock()
	t.streams[job.ID] = s
	t.mu.Unlock()

	metrics.JobsStarted.Inc()
	logging.Info().Str("job_id", job.ID).Str("series_id", seriesID).Msg("Job started")

	t.wg.Add(1)
	go t.run(job.ID, s, work)
	return job.ID, nil
}

func (t *Tracker) run(jobID string, s *stream, work Work) {
	defer t.wg.Done()

	emit := func(ev Event) {
		ev.JobID = jobID
		t.append(s, ev)
	}

	err := t.runGuarded(work, emit)

	status := models.JobStatusCompleted
	message := ""
	if err != nil {
		status = models.JobStatusFailed
		message = err.Error()
		logging.Warn().Str("job_id", jobID).Err(err).Msg("Job failed")
	} else {
		logging.Info().Str("job_id", jobID).Msg("Job completed")
	}

	finishCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := t.store.FinishJob(finishCtx, jobID, status, message, time.Now()); err != nil {
		logging.Error().Str("job_id", jobID).Err(err).Msg("Failed to persist job status")
	}
	metrics.JobsCompleted.WithLabelValues(string(status)).Inc()

	t.closeStream(s)
}

// runGuarded converts a panic in work into a failed job instead of
// taking the process down.
func (t *Tracker) runGuarded(work Work, emit func(Event)) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job panicked: %v", r)
		}
	}()
	return work(t.ctx, emit)
}

// append records an event in the replay buffer and broadcasts it.
func (t *Tracker) append(s *stream, ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}

	if len(s.buffer) >= t.bufferSize {
		copy(s.buffer, s.buffer[1:])
		s.buffer[len(s.buffer)-1] = ev
	} else {
		s.buffer = append(s.buffer, ev)
	}

	for ch := range s.subs {
		select {
		case ch <- ev:
		default:
			// Slow subscriber; the event stays in the replay buffer.
			logging.Warn().Str("job_id", ev.JobID).Msg("Dropping job event for slow subscriber")
		}
	}
}

func (t *Tracker) closeStream(s *stream) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	for ch := range s.subs {
		close(ch)
	}
	s.subs = make(map[chan Event]struct{})
}

// Subscribe returns a channel seeded with the job's replay buffer and
// then fed live events until the job finishes, at which point the
// channel is closed. A job that only exists as a persisted row (its
// stream predates this process) gets an already-closed channel; a job
// id with no stream and no row yields a single not-found event. The
// returned func detaches the subscriber.
func (t *Tracker) Subscribe(jobID string) (<-chan Event, func()) {
	t.mu.Lock()
	s, ok := t.streams[jobID]
	t.mu.Unlock()

	if !ok {
		ch := make(chan Event, 1)
		lookupCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if _, err := t.store.GetJob(lookupCtx, jobID); err != nil {
			ch <- Event{JobID: jobID, Type: EventNotFound}
		}
		close(ch)
		return ch, func() {}
	}

	s.mu.Lock()
	replay := make([]Event, len(s.buffer))
	copy(replay, s.buffer)

	ch := make(chan Event, len(replay)+subscriberBuffer)
	for _, ev := range replay {
		ch <- ev
	}
	if s.closed {
		close(ch)
		s.mu.Unlock()
		return ch, func() {}
	}
	s.subs[ch] = struct{}{}
	s.mu.Unlock()

	metrics.JobEventSubscribers.Inc()
	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			s.mu.Lock()
			if _, attached := s.subs[ch]; attached {
				delete(s.subs, ch)
				close(ch)
			}
			s.mu.Unlock()
			metrics.JobEventSubscribers.Dec()
		})
	}
	return ch, unsubscribe
}

// GetJob returns a single job row.
func (t *Tracker) GetJob(ctx context.Context, id string) (*models.MetadataJob, error) {
	return t.store.GetJob(ctx, id)
}

// GetJobs returns one page of job rows, optionally filtered by status.
func (t *Tracker) GetJobs(ctx context.Context, status models.JobStatus, page, pageSize int) (*models.JobPage, error) {
	return t.store.ListJobs(ctx, status, page, pageSize)
}

// DeleteAll purges persisted job rows and the streams of finished jobs.
// In-flight jobs keep running; their streams stay live.
func (t *Tracker) DeleteAll(ctx context.Context) error {
	if err := t.store.DeleteAllJobs(ctx); err != nil {
		return err
	}

	t.mu.Lock()
	for id, s := range t.streams {
		s.mu.Lock()
		closed := s.closed
		s.mu.Unlock()
		if closed {
			delete(t.streams, id)
		}
	}
	t.mu.Unlock()
	return nil
}

// Stop cancels running jobs and waits for them to finish.
func (t *Tracker) Stop() {
	t.cancel()
	t.wg.Wait()
}
