package mbox

import (
	"iter"
	"strings"
)

// EventSet is a set of decoded event kinds.
type EventSet uint64

func (s *EventSet) Add(k Kind) {
	if k < numKinds {
		*s |= 1 << k
	}
}

func (s *EventSet) Remove(k Kind) { *s &^= 1 << k }

func (s EventSet) Has(k Kind) bool { return k < numKinds && s&(1<<k) != 0 }

func (s EventSet) IsEmpty() bool { return s == 0 }

// Len returns the number of kinds in the set.
func (s EventSet) Len() (n int) {
	for ; s != 0; s &= s - 1 {
		n++
	}
	return n
}

// Kinds iterates over the kinds in the set in ascending order.
func (s EventSet) Kinds() iter.Seq[Kind] {
	return func(yield func(Kind) bool) {
		for k := Kind(0); k < numKinds; k++ {
			if s.Has(k) && !yield(k) {
				return
			}
		}
	}
}

// Vector returns the firmware bits that would raise every kind in s.
func (s EventSet) Vector() (v Vector) {
	for k := range s.Kinds() {
		v.Enable(k)
	}
	return v
}

func (s EventSet) String() string {
	if s == 0 {
		return "{}"
	}
	var b strings.Builder
	b.WriteByte('{')
	for k := range s.Kinds() {
		if b.Len() > 1 {
			b.WriteByte(',')
		}
		b.WriteString(k.String())
	}
	b.WriteByte('}')
	return b.String()
}
