package pebble

import (
	"fmt"
	"sync/atomic"

	"github.com/cockroachdb/pebble"

	"github.com/eigerco/pebblekv/pkg/db"
)

// Iterator walks [start, end) forward. It pins the engine state as of its
// creation and keeps the store open until Close.
type Iterator struct {
	iter    *pebble.Iterator
	release func()
	started bool
	closed  atomic.Bool
}

func (p *KVStore) NewIterator(start, end []byte) (db.Iterator, error) {
	release, err := p.acquire()
	if err != nil {
		return nil, err
	}

	iter, err := p.db.NewIter(&pebble.IterOptions{
		LowerBound: start,
		UpperBound: end,
	})
	if err != nil {
		release()
		return nil, fmt.Errorf("%w: create iterator: %v", db.ErrEngineIO, err)
	}
	return &Iterator{iter: iter, release: release}, nil
}

func (it *Iterator) Next() bool {
	if it.closed.Load() {
		return false
	}
	// The first call positions the iterator at the lower bound
	if !it.started {
		it.started = true
		return it.iter.First()
	}
	if !it.iter.Valid() {
		return false
	}
	return it.iter.Next()
}

func (it *Iterator) Key() []byte {
	if it.closed.Load() || !it.iter.Valid() {
		return nil
	}
	key := it.iter.Key()
	result := make([]byte, len(key))
	copy(result, key)
	return result
}

func (it *Iterator) Value() ([]byte, error) {
	if it.closed.Load() || !it.iter.Valid() {
		return nil, db.ErrIteratorInvalid
	}

	val, err := it.iter.ValueAndErr()
	if err != nil {
		return nil, fmt.Errorf("%w: iterator value: %v", db.ErrEngineIO, err)
	}

	result := make([]byte, len(val))
	copy(result, val)
	return result, nil
}

func (it *Iterator) Valid() bool {
	return !it.closed.Load() && it.iter.Valid()
}

func (it *Iterator) Error() error {
	if it.closed.Load() {
		return nil
	}
	if err := it.iter.Error(); err != nil {
		return fmt.Errorf("%w: iterate: %v", db.ErrEngineIO, err)
	}
	return nil
}

// Close releases the engine iterator. Calling it again is a no-op.
func (it *Iterator) Close() error {
	if !it.closed.CompareAndSwap(false, true) {
		return nil
	}
	defer it.release()
	if err := it.iter.Close(); err != nil {
		return fmt.Errorf("%w: close iterator: %v", db.ErrEngineIO, err)
	}
	return nil
}
