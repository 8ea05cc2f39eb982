package db

import "errors"

var (
	ErrEngineOpen   = errors.New("kv-store: unable to open engine")
	ErrHandleClosed = errors.New("kv-store: database is closed")
	ErrEngineWrite  = errors.New("kv-store: write failed")
	ErrEngineIO     = errors.New("kv-store: engine i/o failed")
	ErrEngineQuery  = errors.New("kv-store: property unavailable")
	ErrNotFound     = errors.New("kv-store: key not found")

	ErrBatchDone       = errors.New("kv-store: batch already committed or closed")
	ErrIteratorInvalid = errors.New("kv-store: iterator is not positioned")
)
