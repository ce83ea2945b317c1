// Package docstore defines the generic Record Store contract: keyed JSON
// documents grouped in named collections, with no secondary indexes and no
// transactions across documents.
package docstore

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"
)

var (
	ErrNotFound    = errors.New("document not found")
	ErrExists      = errors.New("document already exists")
	ErrUnavailable = errors.New("record store unavailable")
)

type (
	// Filter is an equality predicate on a top-level document field.
	Filter struct {
		Field string
		Value interface{}
	}

	// Store is a generic document store. Every call is an independent
	// round-trip; callers must not assume atomicity across calls, and Scan
	// results carry no ordering guarantee.
	Store interface {
		// Get returns the raw document, or ErrNotFound.
		Get(ctx context.Context, collection, id string) (json.RawMessage, error)
		// Create marshals doc under id if no document exists yet;
		// returns ErrExists otherwise (create-if-absent).
		Create(ctx context.Context, collection, id string, doc interface{}) error
		// Put creates or fully replaces the document under id.
		Put(ctx context.Context, collection, id string, doc interface{}) error
		// Update merges the given top-level fields into an existing
		// document, or returns ErrNotFound.
		Update(ctx context.Context, collection, id string, fields map[string]interface{}) error
		// Delete removes the document. Deleting an absent document is a
		// no-op so that concurrent repair passes converge.
		Delete(ctx context.Context, collection, id string) error
		// Scan returns all documents of a collection matching every filter.
		Scan(ctx context.Context, collection string, filters ...Filter) ([]json.RawMessage, error)
	}
)

// Marshal normalizes a value into a raw document.
func Marshal(doc interface{}) (json.RawMessage, error) {
	if raw, ok := doc.(json.RawMessage); ok {
		return raw, nil
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, errors.Wrap(err, "marshaling document")
	}
	return raw, nil
}

// Matches reports whether the raw document satisfies every filter.
func Matches(raw json.RawMessage, filters []Filter) bool {
	if len(filters) == 0 {
		return true
	}
	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return false
	}
	for _, f := range filters {
		v, ok := m[f.Field]
		if !ok || !equal(v, f.Value) {
			return false
		}
	}
	return true
}

// equal compares a decoded JSON value with a filter value; numbers decode as
// float64 so numeric filter values are compared through a float cast.
func equal(docVal, filterVal interface{}) bool {
	switch fv := filterVal.(type) {
	case string:
		s, ok := docVal.(string)
		return ok && s == fv
	case bool:
		b, ok := docVal.(bool)
		return ok && b == fv
	case int:
		f, ok := docVal.(float64)
		return ok && f == float64(fv)
	case float64:
		f, ok := docVal.(float64)
		return ok && f == fv
	default:
		return false
	}
}
