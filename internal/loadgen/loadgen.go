// Package loadgen writes synthetic entries through the batch path and
// measures how long it took.
package loadgen

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/eigerco/pebblekv/internal/kv"
)

const (
	// BatchSize is the number of entries per batch write.
	BatchSize = 100
	// DefaultCount is used when the caller does not ask for a count.
	DefaultCount = 1000
)

var ErrInvalidCount = errors.New("loadgen: count must not be negative")

// BatchWriter is the write path under test.
type BatchWriter interface {
	BatchWrite(ops []kv.Operation) error
}

// Result reports a finished run.
type Result struct {
	Count      int           `json:"count"`
	Duration   time.Duration `json:"-"`
	DurationMs int64         `json:"duration_ms"`
	// Throughput is entries per second, 0 when the run took under a
	// millisecond.
	Throughput int64 `json:"throughput_ops_per_sec"`
}

// Key returns the key of the i-th generated entry.
func Key(i int) []byte {
	return []byte(fmt.Sprintf("test:key:%d", i))
}

// Value returns the value of the i-th generated entry, stamped with now.
func Value(i int, now time.Time) []byte {
	return []byte(fmt.Sprintf("test_value_%d:%d", i, now.UnixMilli()))
}

// Generator produces test data. The zero value is not usable, use New.
type Generator struct {
	writer BatchWriter
	now    func() time.Time
}

func New(writer BatchWriter) *Generator {
	return &Generator{writer: writer, now: time.Now}
}

// Generate writes count entries in batches of BatchSize. The context is
// checked between batches.
func (g *Generator) Generate(ctx context.Context, count int) (Result, error) {
	if count < 0 {
		return Result{}, fmt.Errorf("%w: %d", ErrInvalidCount, count)
	}

	start := g.now()
	for processed := 0; processed < count; {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		n := min(BatchSize, count-processed)
		ops := make([]kv.Operation, 0, n)
		for i := processed; i < processed+n; i++ {
			ops = append(ops, kv.Put(Key(i), Value(i, g.now())))
		}
		if err := g.writer.BatchWrite(ops); err != nil {
			return Result{}, fmt.Errorf("write batch at entry %d: %w", processed, err)
		}
		processed += n
	}
	elapsed := g.now().Sub(start)

	r := Result{
		Count:      count,
		Duration:   elapsed,
		DurationMs: elapsed.Milliseconds(),
	}
	if r.DurationMs > 0 {
		r.Throughput = int64(count) * 1000 / r.DurationMs
	}
	return r, nil
}
