package kv

import (
	"bytes"
	"iter"

	"github.com/eigerco/pebblekv/pkg/db"
)

// Cursor is a forward-only scan over the keys sharing a prefix. It belongs
// to a single caller and must be closed; Close is idempotent.
type Cursor struct {
	iter   db.Iterator
	prefix []byte
	entry  Entry
	err    error
	done   bool
}

func newCursor(store db.KVStore, prefix []byte) (*Cursor, error) {
	prefix = bytes.Clone(prefix)
	it, err := store.NewIterator(prefix, prefixUpperBound(prefix))
	if err != nil {
		return nil, err
	}
	return &Cursor{iter: it, prefix: prefix}, nil
}

// Next advances to the next matching entry. It returns false at the end of
// the range or on error; check Err afterwards.
func (c *Cursor) Next() bool {
	if c.done {
		return false
	}
	if !c.iter.Next() {
		c.err = c.iter.Error()
		c.done = true
		return false
	}
	key := c.iter.Key()
	// The upper bound already stops the iterator; this keeps the scan
	// correct for prefixes without a finite successor.
	if !bytes.HasPrefix(key, c.prefix) {
		c.done = true
		return false
	}
	value, err := c.iter.Value()
	if err != nil {
		c.err = err
		c.done = true
		return false
	}
	c.entry = Entry{Key: key, Value: value}
	return true
}

// Entry returns the entry the cursor is positioned on.
func (c *Cursor) Entry() Entry {
	return c.entry
}

func (c *Cursor) Err() error {
	return c.err
}

func (c *Cursor) Close() error {
	c.done = true
	return c.iter.Close()
}

// prefixUpperBound returns the smallest key greater than every key starting
// with prefix, or nil when there is none (empty prefix or all 0xff bytes).
func prefixUpperBound(prefix []byte) []byte {
	end := bytes.Clone(prefix)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil
}

// Collect drains a scan into a slice, stopping at the first error.
func Collect(seq iter.Seq2[Entry, error]) ([]Entry, error) {
	var out []Entry
	for e, err := range seq {
		if err != nil {
			return out, err
		}
		out = append(out, e)
	}
	return out, nil
}
