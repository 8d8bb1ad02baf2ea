// Package store defines the keyed persistence abstraction the workflow runs
// on: composite (partition, sort) keys, JSON documents, prefix range queries,
// and a conditional atomic update primitive. The conditional update is the
// only coordination mechanism in the system; implementations must apply the
// guard and the mutation as one atomic unit.
package store

import (
	"context"
	"errors"
)

// Key is a composite record key.
type Key struct {
	Partition string
	Sort      string
}

// Record is a stored document together with its key.
type Record struct {
	Key Key
	Doc []byte
}

// Update describes a structured mutation. Set replaces attributes with the
// JSON encoding of the given values; Add applies integer deltas (negative to
// decrement) to numeric attributes, treating a missing attribute as zero.
type Update struct {
	Set map[string]any
	Add map[string]int64
}

// Condition guards an Update. Exactly one of GTE or Eq should be set.
// A missing attribute fails the condition.
type Condition struct {
	Field string
	GTE   *int64  // attribute interpreted as integer must be >= *GTE
	Eq    *string // attribute interpreted as string must equal *Eq
}

var (
	// ErrNotFound means no record exists at the given key.
	ErrNotFound = errors.New("store: record not found")
	// ErrConditionFailed means the record exists but the update condition
	// did not hold; nothing was written.
	ErrConditionFailed = errors.New("store: condition failed")
)

type Store interface {
	// Get returns the document at key, or ErrNotFound.
	Get(ctx context.Context, key Key) ([]byte, error)
	// Put writes the document at key, replacing any existing one.
	Put(ctx context.Context, key Key, doc []byte) error
	// Update applies upd to the record at key. If cond is non-nil it is
	// evaluated atomically with the mutation: either both happen or
	// neither does. Returns ErrNotFound or ErrConditionFailed.
	Update(ctx context.Context, key Key, upd Update, cond *Condition) error
	// QueryPrefix returns all records in partition whose sort key starts
	// with sortPrefix, ordered by sort key.
	QueryPrefix(ctx context.Context, partition, sortPrefix string) ([]Record, error)
	// Scan returns all records whose document attribute field equals the
	// given string value.
	Scan(ctx context.Context, field, equals string) ([]Record, error)
}

// GTE builds a numeric lower-bound condition on field.
func GTE(field string, n int64) *Condition {
	return &Condition{Field: field, GTE: &n}
}

// Eq builds a string-equality condition on field.
func Eq(field, v string) *Condition {
	return &Condition{Field: field, Eq: &v}
}
