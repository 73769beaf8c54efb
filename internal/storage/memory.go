package storage

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/resolvent-dev/resolvent/internal/descriptor"
	"github.com/resolvent-dev/resolvent/internal/filter"
)

// MemoryStore is an in-memory DataSource keyed by resource name. It
// resolves nested filter paths by following relation fields (which
// hold the related record's identifier) through the registry's
// relation graph. Intended for tests and demos.
type MemoryStore struct {
	mu       sync.RWMutex
	registry *descriptor.Registry
	records  map[string][]Record
	byID     map[string]map[string]Record
}

// NewMemoryStore creates an empty in-memory store over the registry.
func NewMemoryStore(registry *descriptor.Registry) *MemoryStore {
	return &MemoryStore{
		registry: registry,
		records:  make(map[string][]Record),
		byID:     make(map[string]map[string]Record),
	}
}

// Seed inserts records for a resource, preserving insertion order as
// the tiebreak order for equal sort keys.
func (s *MemoryStore) Seed(resource string, records ...Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range records {
		s.insertLocked(resource, cloneRecord(rec))
	}
}

func (s *MemoryStore) insertLocked(resource string, rec Record) {
	if _, ok := rec["id"]; !ok {
		rec["id"] = uuid.NewString()
	}
	s.records[resource] = append(s.records[resource], rec)
	if s.byID[resource] == nil {
		s.byID[resource] = make(map[string]Record)
	}
	s.byID[resource][fmt.Sprint(rec["id"])] = rec
}

// Count implements DataSource.
func (s *MemoryStore) Count(ctx context.Context, resource string, spec filter.Spec) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, rec := range s.records[resource] {
		ok, err := s.matchesLocked(resource, rec, spec)
		if err != nil {
			return 0, err
		}
		if ok {
			n++
		}
	}
	return n, nil
}

// FetchWindow implements DataSource.
func (s *MemoryStore) FetchWindow(ctx context.Context, resource string, spec filter.Spec, ordering filter.Ordering, offset, limit int) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []Record
	for _, rec := range s.records[resource] {
		ok, err := s.matchesLocked(resource, rec, spec)
		if err != nil {
			return nil, err
		}
		if ok {
			matched = append(matched, rec)
		}
	}

	res := s.registry.Resource(resource)
	var sortErr error
	sort.SliceStable(matched, func(i, j int) bool {
		for _, term := range ordering {
			vi, err := s.resolvePathLocked(res, matched[i], term.Path)
			if err != nil {
				sortErr = err
				return false
			}
			vj, err := s.resolvePathLocked(res, matched[j], term.Path)
			if err != nil {
				sortErr = err
				return false
			}
			c := compareValues(vi, vj)
			if c == 0 {
				continue
			}
			if term.Descending {
				return c > 0
			}
			return c < 0
		}
		return false
	})
	if sortErr != nil {
		return nil, sortErr
	}

	if offset >= len(matched) {
		return nil, nil
	}
	end := offset + limit
	if end > len(matched) {
		end = len(matched)
	}

	out := make([]Record, 0, end-offset)
	for _, rec := range matched[offset:end] {
		out = append(out, cloneRecord(rec))
	}
	return out, nil
}

// FetchOne implements DataSource.
func (s *MemoryStore) FetchOne(ctx context.Context, resource string, id string) (Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.byID[resource][id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneRecord(rec), nil
}

// Mutate implements DataSource.
func (s *MemoryStore) Mutate(ctx context.Context, resource string, op descriptor.Operation, input Record) (Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	switch op {
	case descriptor.OperationCreate:
		rec := cloneRecord(input)
		s.insertLocked(resource, rec)
		return cloneRecord(rec), nil

	case descriptor.OperationUpdate:
		id := fmt.Sprint(input["id"])
		rec, ok := s.byID[resource][id]
		if !ok {
			return nil, ErrNotFound
		}
		for k, v := range input {
			if k == "id" {
				continue
			}
			rec[k] = v
		}
		return cloneRecord(rec), nil

	case descriptor.OperationDelete:
		id := fmt.Sprint(input["id"])
		rec, ok := s.byID[resource][id]
		if !ok {
			return nil, ErrNotFound
		}
		delete(s.byID[resource], id)
		list := s.records[resource]
		for i := range list {
			if fmt.Sprint(list[i]["id"]) == id {
				s.records[resource] = append(list[:i], list[i+1:]...)
				break
			}
		}
		return cloneRecord(rec), nil

	default:
		return nil, fmt.Errorf("unsupported mutation %q", op)
	}
}

func (s *MemoryStore) matchesLocked(resource string, rec Record, spec filter.Spec) (bool, error) {
	res := s.registry.Resource(resource)
	for _, pred := range spec.Predicates {
		value, err := s.resolvePathLocked(res, rec, pred.Path)
		if err != nil {
			return false, err
		}
		switch pred.Op {
		case filter.OpEq, filter.OpIn:
			hit := false
			for _, want := range pred.Values {
				if valuesEqual(value, want) {
					hit = true
					break
				}
			}
			if !hit {
				return false, nil
			}
		case filter.OpContains:
			want := strings.ToLower(fmt.Sprint(pred.Values[0]))
			if !strings.Contains(strings.ToLower(fmt.Sprint(value)), want) {
				return false, nil
			}
		}
	}
	return true, nil
}

// resolvePathLocked walks a nested path, dereferencing relation fields
// through their target resource's records.
func (s *MemoryStore) resolvePathLocked(res *descriptor.Resource, rec Record, path string) (interface{}, error) {
	segments := strings.Split(path, ".")
	current := rec
	currentRes := res
	for i, seg := range segments {
		value, ok := current[seg]
		if i == len(segments)-1 {
			if !ok {
				return nil, nil
			}
			return value, nil
		}

		field := currentRes.Field(seg)
		if field == nil || field.Type != descriptor.TypeRelation {
			return nil, fmt.Errorf("path %q: %q is not a relation on %q", path, seg, currentRes.Name)
		}
		if !ok || value == nil {
			return nil, nil
		}
		related, found := s.byID[field.Relation][fmt.Sprint(value)]
		if !found {
			return nil, nil
		}
		current = related
		currentRes = s.registry.Resource(field.Relation)
	}
	return nil, nil
}

func cloneRecord(rec Record) Record {
	out := make(Record, len(rec))
	for k, v := range rec {
		out[k] = v
	}
	return out
}

func valuesEqual(a, b interface{}) bool {
	if af, aok := toFloat(a); aok {
		if bf, bok := toFloat(b); bok {
			return af == bf
		}
	}
	return fmt.Sprint(a) == fmt.Sprint(b)
}

// compareValues orders numerics numerically and everything else
// lexically by its string form.
func compareValues(a, b interface{}) int {
	if af, aok := toFloat(a); aok {
		if bf, bok := toFloat(b); bok {
			switch {
			case af < bf:
				return -1
			case af > bf:
				return 1
			default:
				return 0
			}
		}
	}
	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}
