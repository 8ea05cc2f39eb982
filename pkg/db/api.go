package db

// KVStore represents a key-value storage interface providing basic operations
// for data manipulation and iteration.
type KVStore interface {
	Writer
	PropertySource
	Get(key []byte) ([]byte, error)
	Delete(key []byte) error
	NewBatch() (Batch, error)
	NewIterator(start, end []byte) (Iterator, error)
	// Compact reorganizes the on-disk data in [start, end]. Nil bounds cover
	// the whole keyspace. It blocks until the engine finishes.
	Compact(start, end []byte) error
	Close() error
}

type Writer interface {
	Put(key []byte, value []byte) error
}

// PropertySource exposes named engine properties as text.
type PropertySource interface {
	Property(name string) (string, error)
}

// Batch represents an atomic batch of operations.
// All operations in a batch are performed atomically.
type Batch interface {
	Writer
	Delete(key []byte) error
	Len() int
	Commit() error
	Close() error
}

// Iterator provides sequential access over a range of key-value pairs.
// Iterators must be closed after use.
type Iterator interface {
	Next() bool
	Key() []byte
	Value() ([]byte, error)
	Valid() bool
	// Error returns the error that stopped iteration, if any.
	Error() error
	Close() error
}
