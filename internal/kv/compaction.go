package kv

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/eigerco/pebblekv/pkg/db"
)

// maxCompactionHistory bounds how many finished jobs stay queryable.
const maxCompactionHistory = 32

type CompactionState string

const (
	CompactionRunning CompactionState = "running"
	CompactionDone    CompactionState = "done"
	CompactionFailed  CompactionState = "failed"
)

// CompactionJob describes one manual compaction request.
type CompactionJob struct {
	ID         uint64          `json:"id"`
	State      CompactionState `json:"state"`
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt *time.Time      `json:"finished_at,omitempty"`
	Error      string          `json:"error,omitempty"`
}

// compactor runs at most one whole-keyspace compaction at a time in the
// background and remembers recent jobs for polling.
type compactor struct {
	store  db.KVStore
	logger zerolog.Logger
	now    func() time.Time

	mu      sync.Mutex
	nextID  uint64
	running *CompactionJob
	jobs    map[uint64]*CompactionJob
	order   []uint64
	closed  bool
	wg      sync.WaitGroup
}

func newCompactor(store db.KVStore, logger zerolog.Logger) *compactor {
	return &compactor{
		store:  store,
		logger: logger,
		now:    time.Now,
		jobs:   make(map[uint64]*CompactionJob),
	}
}

// submit starts a compaction, or returns the one already running.
func (c *compactor) submit() (CompactionJob, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return CompactionJob{}, db.ErrHandleClosed
	}
	if c.running != nil {
		return *c.running, nil
	}

	c.nextID++
	job := &CompactionJob{
		ID:        c.nextID,
		State:     CompactionRunning,
		StartedAt: c.now(),
	}
	c.remember(job)
	c.running = job

	c.wg.Add(1)
	go c.run(job)
	return *job, nil
}

func (c *compactor) run(job *CompactionJob) {
	defer c.wg.Done()

	c.logger.Info().Uint64("job", job.ID).Msg("manual compaction started")
	err := c.store.Compact(nil, nil)
	if err != nil && !errors.Is(err, db.ErrHandleClosed) && !errors.Is(err, db.ErrEngineIO) {
		err = fmt.Errorf("%w: %v", db.ErrEngineIO, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	finished := c.now()
	job.FinishedAt = &finished
	if err != nil {
		job.State = CompactionFailed
		job.Error = err.Error()
		c.logger.Error().Err(err).Uint64("job", job.ID).Msg("manual compaction failed")
	} else {
		job.State = CompactionDone
		c.logger.Info().Uint64("job", job.ID).Dur("duration", finished.Sub(job.StartedAt)).Msg("manual compaction finished")
	}
	c.running = nil
}

func (c *compactor) remember(job *CompactionJob) {
	c.jobs[job.ID] = job
	c.order = append(c.order, job.ID)
	for len(c.order) > maxCompactionHistory {
		delete(c.jobs, c.order[0])
		c.order = c.order[1:]
	}
}

func (c *compactor) status(id uint64) (CompactionJob, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	job, ok := c.jobs[id]
	if !ok {
		return CompactionJob{}, false
	}
	return *job, true
}

// close refuses new jobs and blocks until every started one has finished.
func (c *compactor) close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()

	c.wg.Wait()
}
