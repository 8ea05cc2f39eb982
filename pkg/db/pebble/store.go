package pebble

import (
	"bytes"
	"errors"
	"fmt"
	"sync"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
	"github.com/rs/zerolog"

	"github.com/eigerco/pebblekv/internal/config"
	"github.com/eigerco/pebblekv/pkg/db"
	"github.com/eigerco/pebblekv/pkg/log"
)

// KVStore is the handle over one open Pebble instance. It owns the engine,
// its block cache and the write options until Close.
type KVStore struct {
	db        *pebble.DB
	cache     *pebble.Cache
	writeOpts *pebble.WriteOptions
	dir       string
	logger    zerolog.Logger

	// mu guards closed. Every operation registers in inflight while holding
	// the read lock so Close can wait for all of them after flipping closed.
	mu       sync.RWMutex
	closed   bool
	inflight sync.WaitGroup
}

// Option customizes Open.
type Option func(*openSettings)

type openSettings struct {
	fs     vfs.FS
	logger zerolog.Logger
}

// WithFS opens the engine on the given filesystem instead of the OS one.
func WithFS(fs vfs.FS) Option {
	return func(s *openSettings) { s.fs = fs }
}

// WithLogger replaces the store logger, log.Store by default.
func WithLogger(l zerolog.Logger) Option {
	return func(s *openSettings) { s.logger = l }
}

// Open creates the data directory if needed and opens the engine with the
// given tuning.
func Open(cfg config.Engine, opts ...Option) (*KVStore, error) {
	s := openSettings{fs: vfs.Default, logger: log.Store}
	for _, o := range opts {
		o(&s)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", db.ErrEngineOpen, err)
	}
	if cfg.CreateIfMissing {
		if err := s.fs.MkdirAll(cfg.Dir, 0o755); err != nil {
			return nil, fmt.Errorf("%w: create data directory %s: %v", db.ErrEngineOpen, cfg.Dir, err)
		}
	}

	pebbleOpts, cache := newPebbleOptions(cfg, s.fs, s.logger)
	pdb, err := pebble.Open(cfg.Dir, pebbleOpts)
	if err != nil {
		if cache != nil {
			cache.Unref()
		}
		return nil, fmt.Errorf("%w: %s: %v", db.ErrEngineOpen, cfg.Dir, err)
	}

	writeOpts := pebble.Sync
	if !cfg.SyncWrites {
		writeOpts = pebble.NoSync
	}

	s.logger.Info().
		Str("dir", cfg.Dir).
		Uint64("write_buffer_size", cfg.WriteBufferSize).
		Int("max_write_buffer_number", cfg.MaxWriteBufferNumber).
		Int("max_background_jobs", cfg.MaxBackgroundJobs).
		Str("compression", cfg.Compression).
		Str("bottommost_compression", cfg.BottommostCompression).
		Int64("block_cache_size", cfg.BlockCacheSize).
		Msg("engine opened")

	return &KVStore{
		db:        pdb,
		cache:     cache,
		writeOpts: writeOpts,
		dir:       cfg.Dir,
		logger:    s.logger,
	}, nil
}

// NewKVStore opens an in-memory engine with the default tuning. It exists for
// tests and tools that need a throwaway store.
func NewKVStore(opts ...Option) (*KVStore, error) {
	cfg := config.DefaultEngine()
	cfg.Dir = "kv"
	cfg.BlockCacheSize = 8 << 20
	cfg.SyncWrites = false
	return Open(cfg, append([]Option{WithFS(vfs.NewMem())}, opts...)...)
}

// acquire registers an operation against the open engine. The returned func
// must be called exactly once when the operation is finished.
func (p *KVStore) acquire() (func(), error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed || p.db == nil {
		return nil, db.ErrHandleClosed
	}
	p.inflight.Add(1)
	return p.inflight.Done, nil
}

func (p *KVStore) Get(key []byte) ([]byte, error) {
	release, err := p.acquire()
	if err != nil {
		return nil, err
	}
	defer release()

	value, closer, err := p.db.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, db.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get: %v", db.ErrEngineIO, err)
	}
	defer closer.Close() //nolint:errcheck // closing a get result only releases memory

	result := make([]byte, len(value))
	copy(result, value)
	return result, nil
}

func (p *KVStore) Put(key, value []byte) error {
	release, err := p.acquire()
	if err != nil {
		return err
	}
	defer release()

	if err := p.db.Set(key, value, p.writeOpts); err != nil {
		return fmt.Errorf("%w: put: %v", db.ErrEngineWrite, err)
	}
	return nil
}

func (p *KVStore) Delete(key []byte) error {
	release, err := p.acquire()
	if err != nil {
		return err
	}
	defer release()

	if err := p.db.Delete(key, p.writeOpts); err != nil {
		return fmt.Errorf("%w: delete: %v", db.ErrEngineWrite, err)
	}
	return nil
}

// Compact compacts [start, end]. With a nil bound the range is widened to
// the first or last key currently stored; an empty store is a no-op.
func (p *KVStore) Compact(start, end []byte) error {
	release, err := p.acquire()
	if err != nil {
		return err
	}
	defer release()

	if start == nil || end == nil {
		first, last, ok, err := p.keyspaceBounds()
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		if start == nil {
			start = first
		}
		if end == nil {
			end = last
		}
	}
	// Pebble wants start < end; appending a zero byte makes end the
	// immediate successor of the last key so it is still covered.
	end = append(bytes.Clone(end), 0)
	if bytes.Compare(start, end) >= 0 {
		return nil
	}

	if err := p.db.Compact(start, end, true); err != nil {
		return fmt.Errorf("%w: compact: %v", db.ErrEngineIO, err)
	}
	return nil
}

func (p *KVStore) keyspaceBounds() (first, last []byte, ok bool, err error) {
	iter, err := p.db.NewIter(nil)
	if err != nil {
		return nil, nil, false, fmt.Errorf("%w: %v", db.ErrEngineIO, err)
	}
	defer iter.Close() //nolint:errcheck // read-only iterator, error surfaced by Error below

	if !iter.First() {
		return nil, nil, false, iter.Error()
	}
	first = bytes.Clone(iter.Key())
	if !iter.Last() {
		return nil, nil, false, iter.Error()
	}
	last = bytes.Clone(iter.Key())
	return first, last, true, nil
}

// Dir returns the data directory the engine was opened on.
func (p *KVStore) Dir() string {
	return p.dir
}

// Close waits for in-flight operations, open iterators and running
// compactions, then closes the engine. It is safe to call more than once and
// on a nil store.
func (p *KVStore) Close() error {
	if p == nil {
		return nil
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	p.inflight.Wait()

	if p.db == nil {
		return nil
	}
	err := p.db.Close()
	if p.cache != nil {
		p.cache.Unref()
	}
	if err != nil {
		return fmt.Errorf("%w: close: %v", db.ErrEngineIO, err)
	}
	p.logger.Info().Str("dir", p.dir).Msg("engine closed")
	return nil
}
