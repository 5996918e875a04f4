// Package chunk allocates byte ranges of a single object to parallel transfer workers
/*
 * Copyright (c) 2018-2025, NVIDIA CORPORATION. All rights reserved.
 */
package chunk

import (
	"math"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// Unknown size: the allocator starts with [0, Unlimited)
const Unlimited = math.MaxInt64

type (
	// half-open [Start, End)
	Range struct {
		Start int64
		End   int64
	}

	// Allocator keeps the sorted, disjoint and merged set of byte ranges
	// that are still needed (not yet claimed by any worker)
	Allocator struct {
		ranges []Range
		mu     sync.Mutex
	}
)

func New(size int64) *Allocator {
	if size < 0 {
		size = Unlimited
	}
	a := &Allocator{}
	if size > 0 {
		a.ranges = []Range{{0, size}}
	}
	return a
}

func (r Range) Len() int64 { return r.End - r.Start }

func (r Range) String() string {
	end := "inf"
	if r.End != Unlimited {
		end = strconv.FormatInt(r.End, 10)
	}
	return "[" + strconv.FormatInt(r.Start, 10) + ", " + end + ")"
}

func end(start, length int64) int64 {
	if length > Unlimited-start {
		return Unlimited
	}
	return start + length
}

// Get takes up to `maxLength` bytes from the front of the lowest unclaimed range
func (a *Allocator) Get(maxLength int64) (start, length int64, ok bool) {
	if maxLength <= 0 {
		return 0, 0, false
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.ranges) == 0 {
		return 0, 0, false
	}
	r := &a.ranges[0]
	start = r.Start
	if r.Len() <= maxLength {
		length = r.Len()
		a.ranges = a.ranges[1:]
	} else {
		length = maxLength
		r.Start += maxLength
	}
	return start, length, true
}

// GetFrom is Get restricted to ranges at or after pos; used by a worker
// that receives the whole object and may only keep what nobody else holds
func (a *Allocator) GetFrom(pos, maxLength int64) (start, length int64, ok bool) {
	if maxLength <= 0 || pos < 0 {
		return 0, 0, false
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	i := sort.Search(len(a.ranges), func(i int) bool { return a.ranges[i].End > pos })
	if i == len(a.ranges) {
		return 0, 0, false
	}
	r := a.ranges[i]
	start = max(r.Start, pos)
	length = min(r.End-start, maxLength)
	var out []Range
	if r.Start < start {
		out = append(out, Range{r.Start, start})
	}
	if start+length < r.End {
		out = append(out, Range{start + length, r.End})
	}
	a.ranges = append(a.ranges[:i], append(out, a.ranges[i+1:]...)...)
	return start, length, true
}

// Claim marks [start, start+length) as obtained
func (a *Allocator) Claim(start, length int64) {
	if length <= 0 || start < 0 {
		return
	}
	cend := end(start, length)

	a.mu.Lock()
	defer a.mu.Unlock()
	var (
		out     = make([]Range, 0, len(a.ranges)+1)
		changed bool
	)
	for _, r := range a.ranges {
		if r.End <= start || r.Start >= cend { // no overlap
			out = append(out, r)
			continue
		}
		changed = true
		if r.Start < start { // head survives
			out = append(out, Range{r.Start, start})
		}
		if r.End > cend { // tail survives
			out = append(out, Range{cend, r.End})
		}
	}
	if changed {
		a.ranges = out
	}
}

// ClaimFrom treats everything at and after `pos` as handled (authoritative size)
func (a *Allocator) ClaimFrom(pos int64) { a.Claim(pos, Unlimited-pos) }

// Unclaim returns [start, start+length) to the set of needed ranges
func (a *Allocator) Unclaim(start, length int64) {
	if length <= 0 || start < 0 {
		return
	}
	nr := Range{start, end(start, length)}

	a.mu.Lock()
	defer a.mu.Unlock()
	i := sort.Search(len(a.ranges), func(i int) bool { return a.ranges[i].Start >= nr.Start })
	a.ranges = append(a.ranges, Range{})
	copy(a.ranges[i+1:], a.ranges[i:])
	a.ranges[i] = nr
	a.merge()
}

// under lock
func (a *Allocator) merge() {
	out := a.ranges[:1]
	for _, r := range a.ranges[1:] {
		last := &out[len(out)-1]
		if r.Start <= last.End {
			last.End = max(last.End, r.End)
			continue
		}
		out = append(out, r)
	}
	a.ranges = out
}

func (a *Allocator) Empty() bool {
	a.mu.Lock()
	empty := len(a.ranges) == 0
	a.mu.Unlock()
	return empty
}

// Ranges returns a snapshot
func (a *Allocator) Ranges() []Range {
	a.mu.Lock()
	ranges := make([]Range, len(a.ranges))
	copy(ranges, a.ranges)
	a.mu.Unlock()
	return ranges
}

// Remaining returns the total number of bytes still needed (Unlimited if unbounded)
func (a *Allocator) Remaining() (n int64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, r := range a.ranges {
		if r.End == Unlimited {
			return Unlimited
		}
		n += r.Len()
	}
	return n
}

func (a *Allocator) String() string {
	var sb strings.Builder
	sb.WriteByte('{')
	for i, r := range a.Ranges() {
		if i > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(r.String())
	}
	sb.WriteByte('}')
	return sb.String()
}
