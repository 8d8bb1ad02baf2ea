package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"sync"
)

// Memory is an in-process Store guarded by a single mutex. Conditional
// updates are atomic by construction. Used by tests and local runs.
type Memory struct {
	mu   sync.RWMutex
	docs map[Key][]byte
}

func NewMemory() *Memory {
	return &Memory{docs: make(map[Key][]byte)}
}

func (m *Memory) Get(_ context.Context, key Key) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	doc, ok := m.docs[key]
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]byte, len(doc))
	copy(out, doc)
	return out, nil
}

func (m *Memory) Put(_ context.Context, key Key, doc []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]byte, len(doc))
	copy(cp, doc)
	m.docs[key] = cp
	return nil
}

func (m *Memory) Update(_ context.Context, key Key, upd Update, cond *Condition) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	doc, ok := m.docs[key]
	if !ok {
		return ErrNotFound
	}
	attrs, err := decodeAttrs(doc)
	if err != nil {
		return err
	}
	if cond != nil && !condHolds(attrs, cond) {
		return ErrConditionFailed
	}
	for field, v := range upd.Set {
		nv, err := normalize(v)
		if err != nil {
			return err
		}
		attrs[field] = nv
	}
	for field, delta := range upd.Add {
		cur, err := attrInt(attrs, field)
		if err != nil {
			return err
		}
		attrs[field] = json.Number(strconv.FormatInt(cur+delta, 10))
	}
	out, err := json.Marshal(attrs)
	if err != nil {
		return err
	}
	m.docs[key] = out
	return nil
}

func (m *Memory) QueryPrefix(_ context.Context, partition, sortPrefix string) ([]Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Record
	for k, doc := range m.docs {
		if k.Partition == partition && hasPrefix(k.Sort, sortPrefix) {
			cp := make([]byte, len(doc))
			copy(cp, doc)
			out = append(out, Record{Key: k, Doc: cp})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key.Sort < out[j].Key.Sort })
	return out, nil
}

func (m *Memory) Scan(_ context.Context, field, equals string) ([]Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Record
	for k, doc := range m.docs {
		attrs, err := decodeAttrs(doc)
		if err != nil {
			continue
		}
		s, ok := attrs[field].(string)
		if !ok || s != equals {
			continue
		}
		cp := make([]byte, len(doc))
		copy(cp, doc)
		out = append(out, Record{Key: k, Doc: cp})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Key.Partition != out[j].Key.Partition {
			return out[i].Key.Partition < out[j].Key.Partition
		}
		return out[i].Key.Sort < out[j].Key.Sort
	})
	return out, nil
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}

// decodeAttrs keeps numbers as json.Number so integer stock counts survive
// the round trip exactly.
func decodeAttrs(doc []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(doc))
	dec.UseNumber()
	attrs := map[string]any{}
	if err := dec.Decode(&attrs); err != nil {
		return nil, fmt.Errorf("decode doc: %w", err)
	}
	return attrs, nil
}

func condHolds(attrs map[string]any, cond *Condition) bool {
	v, ok := attrs[cond.Field]
	if !ok {
		return false
	}
	switch {
	case cond.GTE != nil:
		n, err := toInt(v)
		if err != nil {
			return false
		}
		return n >= *cond.GTE
	case cond.Eq != nil:
		s, ok := v.(string)
		return ok && s == *cond.Eq
	}
	return false
}

func attrInt(attrs map[string]any, field string) (int64, error) {
	v, ok := attrs[field]
	if !ok {
		return 0, nil
	}
	return toInt(v)
}

func toInt(v any) (int64, error) {
	switch x := v.(type) {
	case json.Number:
		return x.Int64()
	case float64:
		return int64(x), nil
	default:
		return 0, fmt.Errorf("attribute is not numeric: %T", v)
	}
}

// normalize round-trips a value through JSON so stored attributes are plain
// decoded values regardless of the caller's Go type.
func normalize(v any) (any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var out any
	if err := dec.Decode(&out); err != nil {
		return nil, err
	}
	return out, nil
}
