package api

import (
	"github.com/eigerco/pebblekv/internal/kv"
	"github.com/eigerco/pebblekv/internal/loadgen"
)

// Operation names, shared by every transport.
const (
	OpPut        = "put"
	OpGet        = "get"
	OpDelete     = "delete"
	OpBatch      = "batch"
	OpSearch     = "search"
	OpAll        = "all"
	OpStats      = "stats"
	OpCompact    = "compact"
	OpCompaction = "compaction"
	OpGenerate   = "generate"
)

// Response statuses.
const (
	StatusSuccess  = "success"
	StatusAccepted = "accepted"
	StatusNotFound = "not_found"
	StatusError    = "error"
)

// Request is a decoded client request. Key and value are in the request
// encoding; nil means the field was not sent.
type Request struct {
	Op         string           `json:"op"`
	Key        *string          `json:"key,omitempty"`
	Value      *string          `json:"value,omitempty"`
	Prefix     *string          `json:"prefix,omitempty"`
	Operations []BatchOperation `json:"operations,omitempty"`
	Count      *int             `json:"count,omitempty"`
	JobID      uint64           `json:"job_id,omitempty"`
	Encoding   string           `json:"encoding,omitempty"`
}

// BatchOperation is one element of a batch request. Type is "put" or
// "delete"; Value is ignored for deletes.
type BatchOperation struct {
	Type  string  `json:"type"`
	Key   string  `json:"key"`
	Value *string `json:"value,omitempty"`
}

// Reply pairs a response body with the HTTP-equivalent status code.
type Reply struct {
	Code int `json:"code"`
	Body any `json:"body"`
}

type messageBody struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

type getBody struct {
	Status string `json:"status"`
	Key    string `json:"key"`
	Value  string `json:"value"`
}

type entryBody struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

type scanBody struct {
	Status  string      `json:"status"`
	Prefix  *string     `json:"prefix,omitempty"`
	Count   int         `json:"count"`
	Results []entryBody `json:"results"`
}

type statsBody struct {
	Status   string            `json:"status"`
	Stats    string            `json:"stats"`
	SizeInfo map[string]string `json:"size_info"`
}

type compactBody struct {
	Status  string           `json:"status"`
	Message string           `json:"message,omitempty"`
	Job     kv.CompactionJob `json:"job"`
}

type generateBody struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	loadgen.Result
}
