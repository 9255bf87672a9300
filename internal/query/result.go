// Package query implements the read-only operations over the vector store:
// listing collections, describing one, counting its documents and similarity
// search.
//
// Every operation returns a Result rather than a Go error. A Result carries
// either the payload or an Error whose Message is safe to show to MCP clients
// and HTTP callers verbatim.
package query

import (
	"encoding/json"
	"fmt"
)

// Kind classifies a failed operation.
type Kind string

const (
	KindUnavailable Kind = "unavailable"
	KindListFailed  Kind = "list_failed"
	KindGetFailed   Kind = "get_failed"
	KindCountFailed Kind = "count_failed"
	KindQueryFailed Kind = "query_failed"
)

// UnavailableMessage is reported when the store is not configured.
const UnavailableMessage = "Chroma client unavailable."

// Error is a failed operation as reported to callers.
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

func unavailable() *Error {
	return &Error{Kind: KindUnavailable, Message: UnavailableMessage}
}

func failed(kind Kind, err error) *Error {
	var prefix string
	switch kind {
	case KindListFailed:
		prefix = "Failed to list collections"
	case KindGetFailed:
		prefix = "Failed to get collection info"
	case KindCountFailed:
		prefix = "Failed to get document count"
	default:
		prefix = "Failed to query documents"
	}
	return &Error{Kind: kind, Message: fmt.Sprintf("%s: %v", prefix, err)}
}

// Result is the outcome of an operation: Value when Err is nil.
type Result[T any] struct {
	Value T
	Err   *Error
}

func ok[T any](v T) Result[T] {
	return Result[T]{Value: v}
}

func fail[T any](err *Error) Result[T] {
	return Result[T]{Err: err}
}

// OK reports whether the operation succeeded.
func (r Result[T]) OK() bool {
	return r.Err == nil
}

// MarshalJSON encodes the payload, or {"error": message} on failure.
func (r Result[T]) MarshalJSON() ([]byte, error) {
	if r.Err != nil {
		return json.Marshal(ErrorBody{Error: r.Err.Message})
	}
	return json.Marshal(r.Value)
}

// ErrorBody is the JSON shape of a failed Result.
type ErrorBody struct {
	Error string `json:"error"`
}

// Count is the payload of GetCollectionCount.
type Count struct {
	Count int `json:"count"`
}
