package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strconv"
	"time"

	"github.com/eigerco/pebblekv/pkg/log"
)

const (
	// MaxBodySize caps batch request bodies.
	MaxBodySize = 32 << 20

	readHeaderTimeout = 10 * time.Second
)

// NewHandler routes the HTTP surface to d. metricsHandler, when not nil, is
// served on /metrics.
func NewHandler(d *Dispatcher, metricsHandler http.Handler) http.Handler {
	h := &httpHandler{d: d}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/kv/put", h.put)
	mux.HandleFunc("GET /api/kv/get/{key...}", h.get)
	mux.HandleFunc("DELETE /api/kv/delete/{key...}", h.delete)
	mux.HandleFunc("POST /api/kv/batch", h.batch)
	mux.HandleFunc("GET /api/kv/search", h.search)
	mux.HandleFunc("GET /api/kv/all", h.all)
	mux.HandleFunc("GET /api/kv/stats", h.stats)
	mux.HandleFunc("POST /api/kv/compact", h.compact)
	mux.HandleFunc("GET /api/kv/compact/{id}", h.compaction)
	mux.HandleFunc("POST /api/kv/generate-test-data", h.generate)
	mux.HandleFunc("GET /healthz", h.healthz)
	if metricsHandler != nil {
		mux.Handle("GET /metrics", metricsHandler)
	}
	return mux
}

// NewServer returns an http.Server for handler. The caller runs and shuts
// it down.
func NewServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: readHeaderTimeout,
	}
}

type httpHandler struct {
	d *Dispatcher
}

func (h *httpHandler) serve(w http.ResponseWriter, r *http.Request, req Request) {
	req.Encoding = r.URL.Query().Get("encoding")
	writeReply(w, h.d.Dispatch(r.Context(), req))
}

func writeReply(w http.ResponseWriter, reply Reply) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(reply.Code)
	if err := json.NewEncoder(w).Encode(reply.Body); err != nil {
		log.API.Error().Err(err).Msg("error writing response")
	}
}

func badRequest(w http.ResponseWriter, err error) {
	writeReply(w, Reply{
		Code: http.StatusBadRequest,
		Body: messageBody{Status: StatusError, Message: fmt.Errorf("%w: %v", ErrInvalidRequest, err).Error()},
	})
}

// formValue returns nil when name is absent from both the query and the
// form body.
func formValue(r *http.Request, name string) *string {
	if !r.Form.Has(name) {
		return nil
	}
	v := r.Form.Get(name)
	return &v
}

func (h *httpHandler) put(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		badRequest(w, err)
		return
	}
	h.serve(w, r, Request{Op: OpPut, Key: formValue(r, "key"), Value: formValue(r, "value")})
}

func (h *httpHandler) get(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	h.serve(w, r, Request{Op: OpGet, Key: &key})
}

func (h *httpHandler) delete(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	h.serve(w, r, Request{Op: OpDelete, Key: &key})
}

// batch accepts either an object mapping keys to values, where null
// deletes, or an ordered array of operations.
func (h *httpHandler) batch(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxBodySize))
	if err != nil {
		badRequest(w, err)
		return
	}
	ops, err := decodeBatch(body)
	if err != nil {
		badRequest(w, err)
		return
	}
	h.serve(w, r, Request{Op: OpBatch, Operations: ops})
}

func decodeBatch(body []byte) ([]BatchOperation, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil, fmt.Errorf("empty body")
	}

	switch body[0] {
	case '[':
		var ops []BatchOperation
		if err := json.Unmarshal(body, &ops); err != nil {
			return nil, err
		}
		return ops, nil
	case '{':
		var m map[string]*string
		if err := json.Unmarshal(body, &m); err != nil {
			return nil, err
		}
		// keys are distinct, sorting only makes the batch deterministic
		keys := make([]string, 0, len(m))
		for k := range m {
			keys = append(keys, k)
		}
		slices.Sort(keys)

		ops := make([]BatchOperation, 0, len(keys))
		for _, k := range keys {
			if m[k] == nil {
				ops = append(ops, BatchOperation{Type: OpDelete, Key: k})
				continue
			}
			ops = append(ops, BatchOperation{Type: OpPut, Key: k, Value: m[k]})
		}
		return ops, nil
	default:
		return nil, fmt.Errorf("body must be a JSON object or array")
	}
}

func (h *httpHandler) search(w http.ResponseWriter, r *http.Request) {
	var prefix *string
	if q := r.URL.Query(); q.Has("prefix") {
		p := q.Get("prefix")
		prefix = &p
	}
	h.serve(w, r, Request{Op: OpSearch, Prefix: prefix})
}

func (h *httpHandler) all(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, Request{Op: OpAll})
}

func (h *httpHandler) stats(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, Request{Op: OpStats})
}

func (h *httpHandler) compact(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, Request{Op: OpCompact})
}

func (h *httpHandler) compaction(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(r.PathValue("id"), 10, 64)
	if err != nil {
		badRequest(w, err)
		return
	}
	h.serve(w, r, Request{Op: OpCompaction, JobID: id})
}

func (h *httpHandler) generate(w http.ResponseWriter, r *http.Request) {
	req := Request{Op: OpGenerate}
	if s := r.URL.Query().Get("count"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			badRequest(w, err)
			return
		}
		req.Count = &n
	}
	h.serve(w, r, req)
}

func (h *httpHandler) healthz(w http.ResponseWriter, _ *http.Request) {
	writeReply(w, ok(messageBody{Status: StatusSuccess, Message: "ok"}))
}
