// Package api maps client requests onto the key-value service. The
// Dispatcher is transport independent; the HTTP handler feeds it decoded
// requests and the QUIC server feeds it raw frames through Handle.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/eigerco/pebblekv/internal/kv"
	"github.com/eigerco/pebblekv/internal/loadgen"
	"github.com/eigerco/pebblekv/internal/metrics"
	"github.com/eigerco/pebblekv/internal/stats"
	"github.com/eigerco/pebblekv/pkg/db"
	"github.com/eigerco/pebblekv/pkg/log"
)

var ErrInvalidRequest = errors.New("invalid request")

// Service is the part of kv.Service the dispatcher calls.
type Service interface {
	Put(key, value []byte) error
	Get(key []byte) ([]byte, bool, error)
	Delete(key []byte) error
	BatchWrite(ops []kv.Operation) error
	CollectPrefix(prefix []byte) ([]kv.Entry, error)
	CollectAll() ([]kv.Entry, error)
	Compact() (kv.CompactionJob, error)
	CompactionStatus(id uint64) (kv.CompactionJob, bool)
	Stats() (stats.Report, error)
}

// Generator writes test data.
type Generator interface {
	Generate(ctx context.Context, count int) (loadgen.Result, error)
}

type Dispatcher struct {
	svc     Service
	gen     Generator
	metrics *metrics.Metrics
	logger  zerolog.Logger
}

type Option func(*Dispatcher)

// WithMetrics records every dispatched request.
func WithMetrics(m *metrics.Metrics) Option {
	return func(d *Dispatcher) { d.metrics = m }
}

// WithGenerator replaces the default generator, which writes through svc.
func WithGenerator(g Generator) Option {
	return func(d *Dispatcher) { d.gen = g }
}

func NewDispatcher(svc Service, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		svc:    svc,
		gen:    loadgen.New(svc),
		logger: log.API,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch runs one request. It never fails: errors come back as a Reply
// with an error status and the matching code.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) Reply {
	start := time.Now()
	reply := d.dispatch(ctx, req)
	if d.metrics != nil {
		d.metrics.Observe(req.Op, outcome(reply.Code), time.Since(start))
	}
	d.logger.Debug().
		Str("op", req.Op).
		Int("code", reply.Code).
		Dur("elapsed", time.Since(start)).
		Msg("request dispatched")
	return reply
}

func (d *Dispatcher) dispatch(ctx context.Context, req Request) Reply {
	c, err := codecFor(req.Encoding)
	if err != nil {
		return d.fail(req.Op, err)
	}

	switch req.Op {
	case OpPut:
		return d.put(c, req)
	case OpGet:
		return d.get(c, req)
	case OpDelete:
		return d.delete(c, req)
	case OpBatch:
		return d.batch(c, req)
	case OpSearch:
		return d.search(c, req)
	case OpAll:
		return d.all(c)
	case OpStats:
		return d.stats()
	case OpCompact:
		return d.compact()
	case OpCompaction:
		return d.compaction(req)
	case OpGenerate:
		return d.generate(ctx, req)
	default:
		return d.fail(req.Op, fmt.Errorf("%w: unknown operation %q", ErrInvalidRequest, req.Op))
	}
}

func (d *Dispatcher) put(c codec, req Request) Reply {
	if req.Key == nil || req.Value == nil {
		return d.fail(req.Op, fmt.Errorf("%w: key and value are required", ErrInvalidRequest))
	}
	key, err := c.decode(*req.Key)
	if err != nil {
		return d.fail(req.Op, err)
	}
	value, err := c.decode(*req.Value)
	if err != nil {
		return d.fail(req.Op, err)
	}
	if err := d.svc.Put(key, value); err != nil {
		return d.fail(req.Op, err)
	}
	return ok(messageBody{Status: StatusSuccess, Message: "Key-value pair stored successfully"})
}

func (d *Dispatcher) get(c codec, req Request) Reply {
	if req.Key == nil {
		return d.fail(req.Op, fmt.Errorf("%w: key is required", ErrInvalidRequest))
	}
	key, err := c.decode(*req.Key)
	if err != nil {
		return d.fail(req.Op, err)
	}
	value, found, err := d.svc.Get(key)
	if err != nil {
		return d.fail(req.Op, err)
	}
	if !found {
		return Reply{
			Code: http.StatusNotFound,
			Body: messageBody{Status: StatusNotFound, Message: "Key not found"},
		}
	}
	return ok(getBody{Status: StatusSuccess, Key: *req.Key, Value: c.encode(value)})
}

func (d *Dispatcher) delete(c codec, req Request) Reply {
	if req.Key == nil {
		return d.fail(req.Op, fmt.Errorf("%w: key is required", ErrInvalidRequest))
	}
	key, err := c.decode(*req.Key)
	if err != nil {
		return d.fail(req.Op, err)
	}
	if err := d.svc.Delete(key); err != nil {
		return d.fail(req.Op, err)
	}
	return ok(messageBody{Status: StatusSuccess, Message: "Key deleted successfully"})
}

func (d *Dispatcher) batch(c codec, req Request) Reply {
	ops := make([]kv.Operation, 0, len(req.Operations))
	for i, bo := range req.Operations {
		key, err := c.decode(bo.Key)
		if err != nil {
			return d.fail(req.Op, err)
		}
		switch bo.Type {
		case OpPut:
			if bo.Value == nil {
				return d.fail(req.Op, fmt.Errorf("%w: operation %d: put without value", ErrInvalidRequest, i))
			}
			value, err := c.decode(*bo.Value)
			if err != nil {
				return d.fail(req.Op, err)
			}
			ops = append(ops, kv.Put(key, value))
		case OpDelete:
			ops = append(ops, kv.Delete(key))
		default:
			return d.fail(req.Op, fmt.Errorf("%w: operation %d: unknown type %q", ErrInvalidRequest, i, bo.Type))
		}
	}
	if err := d.svc.BatchWrite(ops); err != nil {
		return d.fail(req.Op, err)
	}
	return ok(messageBody{Status: StatusSuccess, Message: "Batch operations completed successfully"})
}

func (d *Dispatcher) search(c codec, req Request) Reply {
	if req.Prefix == nil {
		return d.fail(req.Op, fmt.Errorf("%w: prefix is required", ErrInvalidRequest))
	}
	prefix, err := c.decode(*req.Prefix)
	if err != nil {
		return d.fail(req.Op, err)
	}
	entries, err := d.svc.CollectPrefix(prefix)
	if err != nil {
		return d.fail(req.Op, err)
	}
	body := scanResults(c, entries)
	body.Prefix = req.Prefix
	return ok(body)
}

func (d *Dispatcher) all(c codec) Reply {
	entries, err := d.svc.CollectAll()
	if err != nil {
		return d.fail(OpAll, err)
	}
	return ok(scanResults(c, entries))
}

func scanResults(c codec, entries []kv.Entry) scanBody {
	results := make([]entryBody, 0, len(entries))
	for _, e := range entries {
		results = append(results, entryBody{Key: c.encode(e.Key), Value: c.encode(e.Value)})
	}
	return scanBody{Status: StatusSuccess, Count: len(results), Results: results}
}

func (d *Dispatcher) stats() Reply {
	r, err := d.svc.Stats()
	if err != nil {
		return d.fail(OpStats, err)
	}
	return ok(statsBody{Status: StatusSuccess, Stats: r.Stats, SizeInfo: r.SizeInfo})
}

func (d *Dispatcher) compact() Reply {
	job, err := d.svc.Compact()
	if err != nil {
		return d.fail(OpCompact, err)
	}
	return Reply{
		Code: http.StatusAccepted,
		Body: compactBody{Status: StatusAccepted, Message: "Compaction started", Job: job},
	}
}

func (d *Dispatcher) compaction(req Request) Reply {
	job, found := d.svc.CompactionStatus(req.JobID)
	if !found {
		return Reply{
			Code: http.StatusNotFound,
			Body: messageBody{Status: StatusNotFound, Message: fmt.Sprintf("Compaction %d not found", req.JobID)},
		}
	}
	return ok(compactBody{Status: StatusSuccess, Job: job})
}

func (d *Dispatcher) generate(ctx context.Context, req Request) Reply {
	count := loadgen.DefaultCount
	if req.Count != nil {
		count = *req.Count
	}
	r, err := d.gen.Generate(ctx, count)
	if err != nil {
		return d.fail(req.Op, err)
	}
	return ok(generateBody{Status: StatusSuccess, Message: "Test data generated successfully", Result: r})
}

func ok(body any) Reply {
	return Reply{Code: http.StatusOK, Body: body}
}

func (d *Dispatcher) fail(op string, err error) Reply {
	code := statusCode(err)
	if code >= http.StatusInternalServerError {
		d.logger.Error().Err(err).Str("op", op).Msg("request failed")
	}
	return Reply{Code: code, Body: messageBody{Status: StatusError, Message: err.Error()}}
}

func statusCode(err error) int {
	switch {
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, kv.ErrInvalidOperation),
		errors.Is(err, loadgen.ErrInvalidCount):
		return http.StatusBadRequest
	case errors.Is(err, db.ErrHandleClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func outcome(code int) string {
	switch {
	case code == http.StatusNotFound:
		return metrics.OutcomeNotFound
	case code == http.StatusServiceUnavailable:
		return metrics.OutcomeClosed
	case code >= http.StatusInternalServerError:
		return metrics.OutcomeError
	case code >= http.StatusBadRequest:
		return metrics.OutcomeInvalid
	default:
		return metrics.OutcomeOK
	}
}
