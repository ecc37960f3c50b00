// Package memory models the observed address space as a partition of
// non-overlapping intervals.
package memory

import (
	"errors"
	"fmt"
	"slices"
	"sort"

	"ouroboros/internal/ir"
)

var (
	// ErrOverlap is wrapped by every OverlapError.
	ErrOverlap = errors.New("interval overlaps an existing entry")
	// ErrNotFound is returned when no interval contains an address.
	ErrNotFound = errors.New("no interval at address")
	// ErrEmptyInterval is returned when inserting an interval with no bytes.
	ErrEmptyInterval = errors.New("empty interval")
)

// OverlapError reports the entry that blocked an insertion.
type OverlapError struct {
	Existing  ir.Interval
	Requested ir.Interval
}

func (e *OverlapError) Error() string {
	return fmt.Sprintf("%s overlaps %s", e.Requested, e.Existing)
}

func (e *OverlapError) Unwrap() error { return ErrOverlap }

// Entry is one interval and its payload.
type Entry[V any] struct {
	Interval ir.Interval
	Value    V
}

// IntervalMap is a sorted set of disjoint intervals.
type IntervalMap[V any] struct {
	entries []Entry[V]
}

// first returns the index of the first entry ending after a.
func (m *IntervalMap[V]) first(a ir.Address) int {
	return sort.Search(len(m.entries), func(i int) bool {
		return m.entries[i].Interval.End > a
	})
}

// InsertStrict inserts iv unless it intersects an existing entry.
func (m *IntervalMap[V]) InsertStrict(iv ir.Interval, v V) error {
	if iv.Empty() {
		return fmt.Errorf("insert %s: %w", iv, ErrEmptyInterval)
	}
	i := m.first(iv.Start)
	if i < len(m.entries) && m.entries[i].Interval.Overlaps(iv) {
		return &OverlapError{Existing: m.entries[i].Interval, Requested: iv}
	}
	m.entries = slices.Insert(m.entries, i, Entry[V]{Interval: iv, Value: v})
	return nil
}

// RemoveOverlapping removes and returns every entry intersecting iv, in
// address order.
func (m *IntervalMap[V]) RemoveOverlapping(iv ir.Interval) []Entry[V] {
	if iv.Empty() {
		return nil
	}
	i := m.first(iv.Start)
	j := i
	for j < len(m.entries) && m.entries[j].Interval.Start < iv.End {
		j++
	}
	if i == j {
		return nil
	}
	removed := slices.Clone(m.entries[i:j])
	m.entries = slices.Delete(m.entries, i, j)
	return removed
}

// GetAtPoint returns the entry containing a. The pointer is valid until the
// next insertion or removal and may be used to update the value in place.
func (m *IntervalMap[V]) GetAtPoint(a ir.Address) (*Entry[V], error) {
	i := m.first(a)
	if i < len(m.entries) && m.entries[i].Interval.Contains(a) {
		return &m.entries[i], nil
	}
	return nil, fmt.Errorf("%w %s", ErrNotFound, a)
}

// Entries returns a snapshot of the entries in address order.
func (m *IntervalMap[V]) Entries() []Entry[V] {
	return slices.Clone(m.entries)
}

func (m *IntervalMap[V]) Len() int { return len(m.entries) }

// Covered returns the union of all entries with adjacent intervals merged.
func (m *IntervalMap[V]) Covered() []ir.Interval {
	var out []ir.Interval
	for _, e := range m.entries {
		if n := len(out); n > 0 && out[n-1].End == e.Interval.Start {
			out[n-1].End = e.Interval.End
			continue
		}
		out = append(out, e.Interval)
	}
	return out
}
