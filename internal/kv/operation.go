package kv

import "fmt"

// Entry is a key/value pair read from the store. Both slices belong to the
// caller.
type Entry struct {
	Key   []byte
	Value []byte
}

type OpKind uint8

const (
	OpPut OpKind = iota + 1
	OpDelete
)

func (k OpKind) String() string {
	switch k {
	case OpPut:
		return "put"
	case OpDelete:
		return "delete"
	default:
		return fmt.Sprintf("OpKind(%d)", uint8(k))
	}
}

// Operation is one element of a batch: a put of Value under Key, or a
// delete of Key.
type Operation struct {
	Kind  OpKind
	Key   []byte
	Value []byte
}

func Put(key, value []byte) Operation {
	return Operation{Kind: OpPut, Key: key, Value: value}
}

func Delete(key []byte) Operation {
	return Operation{Kind: OpDelete, Key: key}
}
