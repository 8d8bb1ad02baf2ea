package store

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func putJSON(t *testing.T, s *Memory, key Key, v any) {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	require.NoError(t, s.Put(context.Background(), key, b))
}

func getJSON(t *testing.T, s *Memory, key Key) map[string]any {
	t.Helper()
	b, err := s.Get(context.Background(), key)
	require.NoError(t, err)
	var m map[string]any
	require.NoError(t, json.Unmarshal(b, &m))
	return m
}

func TestGetMissingReturnsNotFound(t *testing.T) {
	s := NewMemory()
	_, err := s.Get(context.Background(), Key{Partition: "p", Sort: "s"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateSetAndAdd(t *testing.T) {
	s := NewMemory()
	key := Key{Partition: "p1", Sort: "INFO"}
	putJSON(t, s, key, map[string]any{"status": "NEW", "stock": 10})

	err := s.Update(context.Background(), key, Update{
		Set: map[string]any{"status": "ACTIVE"},
		Add: map[string]int64{"stock": -3},
	}, nil)
	require.NoError(t, err)

	doc := getJSON(t, s, key)
	assert.Equal(t, "ACTIVE", doc["status"])
	assert.EqualValues(t, 7, doc["stock"])
}

func TestUpdateAddTreatsMissingFieldAsZero(t *testing.T) {
	s := NewMemory()
	key := Key{Partition: "p1", Sort: "INFO"}
	putJSON(t, s, key, map[string]any{"name": "x"})

	require.NoError(t, s.Update(context.Background(), key, Update{Add: map[string]int64{"count": 5}}, nil))
	assert.EqualValues(t, 5, getJSON(t, s, key)["count"])
}

func TestConditionalUpdateGTE(t *testing.T) {
	s := NewMemory()
	key := Key{Partition: "prod-1", Sort: "INFO"}
	putJSON(t, s, key, map[string]any{"stock": 2})

	// enough stock
	err := s.Update(context.Background(), key, Update{Add: map[string]int64{"stock": -2}}, GTE("stock", 2))
	require.NoError(t, err)

	// guard must refuse going negative
	err = s.Update(context.Background(), key, Update{Add: map[string]int64{"stock": -1}}, GTE("stock", 1))
	assert.ErrorIs(t, err, ErrConditionFailed)
	assert.EqualValues(t, 0, getJSON(t, s, key)["stock"])
}

func TestConditionalUpdateEq(t *testing.T) {
	s := NewMemory()
	key := Key{Partition: "o1", Sort: "INFO"}
	putJSON(t, s, key, map[string]any{"status": "PENDING"})

	require.NoError(t, s.Update(context.Background(), key,
		Update{Set: map[string]any{"status": "ACTIVE"}}, Eq("status", "PENDING")))

	// second identical CAS fails: status moved on
	err := s.Update(context.Background(), key,
		Update{Set: map[string]any{"status": "ACTIVE"}}, Eq("status", "PENDING"))
	assert.ErrorIs(t, err, ErrConditionFailed)
}

func TestConditionOnMissingFieldFails(t *testing.T) {
	s := NewMemory()
	key := Key{Partition: "o1", Sort: "INFO"}
	putJSON(t, s, key, map[string]any{"other": 1})

	err := s.Update(context.Background(), key, Update{Add: map[string]int64{"stock": -1}}, GTE("stock", 1))
	assert.ErrorIs(t, err, ErrConditionFailed)
}

func TestUpdateMissingRecord(t *testing.T) {
	s := NewMemory()
	err := s.Update(context.Background(), Key{Partition: "nope", Sort: "INFO"},
		Update{Set: map[string]any{"a": 1}}, nil)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestQueryPrefixOrdersBySortKey(t *testing.T) {
	s := NewMemory()
	putJSON(t, s, Key{Partition: "p", Sort: "STEP#COOKING#2"}, map[string]any{"n": 2})
	putJSON(t, s, Key{Partition: "p", Sort: "STEP#COOKING#1"}, map[string]any{"n": 1})
	putJSON(t, s, Key{Partition: "p", Sort: "STEP#PACKAGING#1"}, map[string]any{"n": 3})
	putJSON(t, s, Key{Partition: "other", Sort: "STEP#COOKING#1"}, map[string]any{"n": 4})

	recs, err := s.QueryPrefix(context.Background(), "p", "STEP#COOKING#")
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "STEP#COOKING#1", recs[0].Key.Sort)
	assert.Equal(t, "STEP#COOKING#2", recs[1].Key.Sort)

	all, err := s.QueryPrefix(context.Background(), "p", "STEP#")
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestScanByFieldEquality(t *testing.T) {
	s := NewMemory()
	putJSON(t, s, Key{Partition: "a", Sort: "INFO"}, map[string]any{"kind": "order", "customerId": "c1"})
	putJSON(t, s, Key{Partition: "b", Sort: "INFO"}, map[string]any{"kind": "order", "customerId": "c2"})
	putJSON(t, s, Key{Partition: "c", Sort: "INFO"}, map[string]any{"kind": "inventory"})

	recs, err := s.Scan(context.Background(), "customerId", "c1")
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "a", recs[0].Key.Partition)

	recs, err = s.Scan(context.Background(), "kind", "inventory")
	require.NoError(t, err)
	assert.Len(t, recs, 1)
}

func TestConcurrentConditionalDecrements(t *testing.T) {
	s := NewMemory()
	key := Key{Partition: "prod", Sort: "INFO"}
	putJSON(t, s, key, map[string]any{"stock": 10})

	var wg sync.WaitGroup
	granted := make(chan struct{}, 100)
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.Update(context.Background(), key,
				Update{Add: map[string]int64{"stock": -1}}, GTE("stock", 1))
			if err == nil {
				granted <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(granted)

	assert.Len(t, granted, 10)
	assert.EqualValues(t, 0, getJSON(t, s, key)["stock"])
}
