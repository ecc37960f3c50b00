// Package ir defines the architecture independent intermediate representation
// shared by the lifter, the control-flow assembler, the structuring engine and
// the symbol layer: addresses, intervals, typed expressions and the primitive
// operations a decoded instruction performs.
package ir

import (
	"fmt"
	"slices"
)

// Address is a location in the target's virtual address space.
type Address uint64

func (a Address) String() string {
	return fmt.Sprintf("0x%x", uint64(a))
}

// Interval is the half-open address range [Start, End).
type Interval struct {
	Start Address
	End   Address
}

// Span returns the interval starting at start that covers n bytes.
func Span(start Address, n uint64) Interval {
	return Interval{Start: start, End: start + Address(n)}
}

func (iv Interval) Len() uint64 {
	if iv.End <= iv.Start {
		return 0
	}
	return uint64(iv.End - iv.Start)
}

func (iv Interval) Empty() bool {
	return iv.End <= iv.Start
}

// Contains reports whether a lies within the interval.
func (iv Interval) Contains(a Address) bool {
	return a >= iv.Start && a < iv.End
}

// Overlaps reports whether the two intervals share at least one address.
// Empty intervals overlap nothing.
func (iv Interval) Overlaps(o Interval) bool {
	if iv.Empty() || o.Empty() {
		return false
	}
	return iv.Start < o.End && o.Start < iv.End
}

// Hull returns the smallest interval covering both iv and o.
func (iv Interval) Hull(o Interval) Interval {
	if iv.Empty() {
		return o
	}
	if o.Empty() {
		return iv
	}
	out := iv
	if o.Start < out.Start {
		out.Start = o.Start
	}
	if o.End > out.End {
		out.End = o.End
	}
	return out
}

// Union merges ivs into sorted, disjoint runs. Adjacent intervals join one
// run; empty ones are dropped.
func Union(ivs []Interval) []Interval {
	sorted := slices.Clone(ivs)
	slices.SortFunc(sorted, func(a, b Interval) int {
		switch {
		case a.Start < b.Start:
			return -1
		case a.Start > b.Start:
			return 1
		}
		return 0
	})
	var out []Interval
	for _, iv := range sorted {
		if iv.Empty() {
			continue
		}
		if n := len(out); n > 0 && iv.Start <= out[n-1].End {
			out[n-1] = out[n-1].Hull(iv)
			continue
		}
		out = append(out, iv)
	}
	return out
}

func (iv Interval) String() string {
	return fmt.Sprintf("[%s, %s)", iv.Start, iv.End)
}
