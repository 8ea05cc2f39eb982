package pebble

import (
	"fmt"
	"sync/atomic"

	"github.com/cockroachdb/pebble"

	"github.com/eigerco/pebblekv/pkg/db"
)

// Batch collects writes that are applied to the engine in one atomic commit.
// Nothing in the batch is visible before Commit succeeds.
type Batch struct {
	store  *KVStore
	batch  *pebble.Batch
	done   atomic.Bool
	closed atomic.Bool
}

func (p *KVStore) NewBatch() (db.Batch, error) {
	release, err := p.acquire()
	if err != nil {
		return nil, err
	}
	defer release()

	return &Batch{
		store: p,
		batch: p.db.NewBatch(),
	}, nil
}

func (b *Batch) Put(key, value []byte) error {
	if b.done.Load() {
		return db.ErrBatchDone
	}
	return b.batch.Set(key, value, nil)
}

func (b *Batch) Delete(key []byte) error {
	if b.done.Load() {
		return db.ErrBatchDone
	}
	return b.batch.Delete(key, nil)
}

// Len returns the number of operations recorded so far.
func (b *Batch) Len() int {
	return int(b.batch.Count())
}

func (b *Batch) Commit() error {
	if b.done.Load() {
		return db.ErrBatchDone
	}
	release, err := b.store.acquire()
	if err != nil {
		return err
	}
	defer release()

	if err := b.batch.Commit(b.store.writeOpts); err != nil {
		return fmt.Errorf("%w: commit batch: %v", db.ErrEngineWrite, err)
	}
	b.done.Store(true)
	return nil
}

// Close releases the batch. An uncommitted batch is discarded.
func (b *Batch) Close() error {
	b.done.Store(true)
	if !b.closed.CompareAndSwap(false, true) {
		return nil
	}
	return b.batch.Close()
}
