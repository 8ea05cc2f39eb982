// Package kv implements the key-value access layer: point operations,
// atomic batches, prefix scans, manual compaction and statistics over a
// db.KVStore.
//
// The service adds no locking of its own; single-key writes, batches and
// reads are serialized by the engine. Each scan owns a private cursor that
// is released on every exit path.
package kv

import (
	"errors"
	"fmt"
	"iter"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/eigerco/pebblekv/internal/stats"
	"github.com/eigerco/pebblekv/pkg/db"
	"github.com/eigerco/pebblekv/pkg/log"
)

var ErrInvalidOperation = errors.New("kv: invalid batch operation")

// Service is the access layer over an open store. It does not own the
// store: whoever opened the store closes it after closing the service.
type Service struct {
	store     db.KVStore
	stats     *stats.Collector
	compactor *compactor
	logger    zerolog.Logger
	closed    atomic.Bool
}

func NewService(store db.KVStore) *Service {
	return &Service{
		store:     store,
		stats:     stats.NewCollector(store),
		compactor: newCompactor(store, log.Store),
		logger:    log.Store,
	}
}

func (s *Service) checkOpen() error {
	if s.closed.Load() {
		return db.ErrHandleClosed
	}
	return nil
}

// Put stores value under key, replacing any previous value.
func (s *Service) Put(key, value []byte) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	return s.store.Put(key, value)
}

// Get returns the value stored under key. A missing key is reported with
// found == false and a nil error.
func (s *Service) Get(key []byte) (value []byte, found bool, err error) {
	if err := s.checkOpen(); err != nil {
		return nil, false, err
	}
	value, err = s.store.Get(key)
	if errors.Is(err, db.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

// Delete removes key. Deleting a missing key succeeds.
func (s *Service) Delete(key []byte) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	return s.store.Delete(key)
}

// BatchWrite applies ops atomically in order; a later operation on the same
// key overrides an earlier one. An empty batch succeeds without touching
// the engine.
func (s *Service) BatchWrite(ops []Operation) error {
	if err := s.checkOpen(); err != nil {
		return err
	}

	batch, err := s.store.NewBatch()
	if err != nil {
		return err
	}
	defer func() {
		if err := batch.Close(); err != nil {
			s.logger.Error().Err(err).Msg("error closing batch")
		}
	}()

	if len(ops) == 0 {
		return nil
	}

	for i, op := range ops {
		switch op.Kind {
		case OpPut:
			err = batch.Put(op.Key, op.Value)
		case OpDelete:
			err = batch.Delete(op.Key)
		default:
			return fmt.Errorf("%w: operation %d has kind %s", ErrInvalidOperation, i, op.Kind)
		}
		if err != nil {
			return fmt.Errorf("%w: stage operation %d: %v", db.ErrEngineWrite, i, err)
		}
	}

	return batch.Commit()
}

// OpenCursor returns a cursor over the keys starting with prefix. The
// caller must Close it.
func (s *Service) OpenCursor(prefix []byte) (*Cursor, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	return newCursor(s.store, prefix)
}

// ScanPrefix lazily yields the entries whose key starts with prefix in
// ascending key order. Every range over the result opens a fresh cursor
// that sees the store as of that moment, and releases it when the loop
// ends, breaks or fails.
func (s *Service) ScanPrefix(prefix []byte) iter.Seq2[Entry, error] {
	prefix = append([]byte(nil), prefix...)
	return func(yield func(Entry, error) bool) {
		c, err := s.OpenCursor(prefix)
		if err != nil {
			yield(Entry{}, err)
			return
		}
		defer func() {
			if err := c.Close(); err != nil {
				s.logger.Error().Err(err).Msg("error closing cursor")
			}
		}()

		for c.Next() {
			if !yield(c.Entry(), nil) {
				return
			}
		}
		if err := c.Err(); err != nil {
			yield(Entry{}, err)
		}
	}
}

// ScanAll lazily yields every entry in ascending key order.
func (s *Service) ScanAll() iter.Seq2[Entry, error] {
	return s.ScanPrefix(nil)
}

// CollectPrefix drains ScanPrefix into a slice.
func (s *Service) CollectPrefix(prefix []byte) ([]Entry, error) {
	return Collect(s.ScanPrefix(prefix))
}

// CollectAll drains ScanAll into a slice.
func (s *Service) CollectAll() ([]Entry, error) {
	return Collect(s.ScanAll())
}

// Compact asks the engine to compact the whole keyspace and returns as soon
// as the request is submitted. While a compaction is running further
// requests return the running job. Use CompactionStatus to poll.
func (s *Service) Compact() (CompactionJob, error) {
	if err := s.checkOpen(); err != nil {
		return CompactionJob{}, err
	}
	return s.compactor.submit()
}

// CompactionStatus returns a recent compaction job by id.
func (s *Service) CompactionStatus(id uint64) (CompactionJob, bool) {
	return s.compactor.status(id)
}

// Stats returns the engine statistics. Metrics the engine cannot provide
// are omitted.
func (s *Service) Stats() (stats.Report, error) {
	if err := s.checkOpen(); err != nil {
		return stats.Report{}, err
	}
	return s.stats.Collect()
}

// Close refuses further operations and waits for background compactions.
// It does not close the store.
func (s *Service) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	s.compactor.close()
	return nil
}
