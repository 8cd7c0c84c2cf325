package enumset

import (
	"fmt"
	"iter"
	"math/bits"
	"slices"
)

// Regular is a mutable set over a domain of at most 64 members, held in a
// single word.
type Regular[E Ordinal] struct {
	n    int
	bits uint64
	size int
}

// NewRegular returns an empty single-word set over n members.
func NewRegular[E Ordinal](n int) (*Regular[E], error) {
	if n < 0 {
		return nil, fmt.Errorf("%w: negative size %d", ErrInvalidDomain, n)
	}
	if n > RegularMax {
		return nil, fmt.Errorf("%w: %d members do not fit a single-word set (max %d)", ErrDomainTooLarge, n, RegularMax)
	}
	return &Regular[E]{n: n}, nil
}

// RegularFromWord wraps a raw word. Bits at positions >= n are rejected.
func RegularFromWord[E Ordinal](n int, word uint64) (*Regular[E], error) {
	s, err := NewRegular[E](n)
	if err != nil {
		return nil, err
	}
	words, err := checkWords(n, []uint64{word})
	if err != nil {
		return nil, err
	}
	if len(words) > 0 {
		s.bits = words[0]
	}
	s.size = bits.OnesCount64(s.bits)
	return s, nil
}

func (s *Regular[E]) wordLen() int      { return wordCount(s.n) }
func (s *Regular[E]) word(i int) uint64 { return s.bits }

func (s *Regular[E]) Domain() int   { return s.n }
func (s *Regular[E]) Len() int      { return s.size }
func (s *Regular[E]) IsEmpty() bool { return s.size == 0 }

// Word returns the backing word.
func (s *Regular[E]) Word() uint64 { return s.bits }

func (s *Regular[E]) Contains(e E) bool {
	i, ok := ordinal(e, s.n)
	return ok && s.bits&(1<<uint(i)) != 0
}

func (s *Regular[E]) Add(e E) bool {
	mask := uint64(1) << uint(mustOrdinal(e, s.n))
	if s.bits&mask != 0 {
		return false
	}
	s.bits |= mask
	s.size++
	return true
}

func (s *Regular[E]) Remove(e E) bool {
	i, ok := ordinal(e, s.n)
	if !ok {
		return false
	}
	mask := uint64(1) << uint(i)
	if s.bits&mask == 0 {
		return false
	}
	s.bits &^= mask
	s.size--
	return true
}

func (s *Regular[E]) AddAll(members ...E) bool {
	if len(members) == 0 {
		return false
	}
	old := s.bits
	for _, i := range mustOrdinals(slices.Values(members), s.n) {
		s.bits |= uint64(1) << uint(i)
	}
	s.recount()
	return old != s.bits
}

func (s *Regular[E]) RemoveAll(members ...E) bool {
	if len(members) == 0 {
		return false
	}
	old := s.bits
	for _, e := range members {
		if i, ok := ordinal(e, s.n); ok {
			s.bits &^= uint64(1) << uint(i)
		}
	}
	s.recount()
	return old != s.bits
}

func (s *Regular[E]) RetainAll(members ...E) bool {
	old := s.bits
	var keep uint64
	for _, e := range members {
		if i, ok := ordinal(e, s.n); ok {
			keep |= uint64(1) << uint(i)
		}
	}
	s.bits &= keep
	s.recount()
	return old != s.bits
}

func (s *Regular[E]) AddSet(other Set[E]) bool {
	if other == nil || other.IsEmpty() {
		return false
	}
	old := s.bits
	if sameDomain(s, other) {
		s.bits |= other.word(0)
	} else {
		for _, i := range mustOrdinals(other.All(), s.n) {
			s.bits |= uint64(1) << uint(i)
		}
	}
	s.recount()
	return old != s.bits
}

func (s *Regular[E]) RemoveSet(other Set[E]) bool {
	if other == nil || other.IsEmpty() {
		return false
	}
	old := s.bits
	if sameDomain(s, other) {
		s.bits &^= other.word(0)
	} else {
		for e := range other.All() {
			if i, ok := ordinal(e, s.n); ok {
				s.bits &^= uint64(1) << uint(i)
			}
		}
	}
	s.recount()
	return old != s.bits
}

func (s *Regular[E]) RetainSet(other Set[E]) bool {
	old := s.bits
	switch {
	case other == nil || other.IsEmpty():
		s.bits = 0
	case sameDomain(s, other):
		s.bits &= other.word(0)
	default:
		var keep uint64
		for e := range seqWords[E](s) {
			if other.Contains(e) {
				keep |= uint64(1) << uint(int(e))
			}
		}
		s.bits = keep
	}
	s.recount()
	return old != s.bits
}

func (s *Regular[E]) Complement() {
	if s.n == 0 {
		return
	}
	s.bits = ^s.bits & tailMask(s.n)
	s.recount()
}

func (s *Regular[E]) Clear() {
	s.bits = 0
	s.size = 0
}

func (s *Regular[E]) recount() { s.size = bits.OnesCount64(s.bits) }

func (s *Regular[E]) All() iter.Seq[E] { return seqWords[E](s) }

func (s *Regular[E]) Slice() []E { return collect[E](s) }

func (s *Regular[E]) Words() []uint64 { return s.words() }

func (s *Regular[E]) Equal(other Set[E]) bool {
	return other != nil && sameDomain(s, other) && equalWords(s, other)
}

func (s *Regular[E]) Hash() uint64 { return hashWords(s.n, s) }

func (s *Regular[E]) String() string { return format[E](s) }

func (s *Regular[E]) Iterator() *Iterator[E] { return newIterator[E](s) }

func (s *Regular[E]) MutableCopy() MutableSet[E] { return s.Clone() }

// Clone returns an independent copy.
func (s *Regular[E]) Clone() *Regular[E] {
	cp := *s
	return &cp
}

func (s *Regular[E]) ImmutableCopy() *Frozen[E] {
	return &Frozen[E]{n: s.n, words: s.words(), size: s.size}
}

func (s *Regular[E]) words() []uint64 {
	if s.n == 0 {
		return []uint64{}
	}
	return []uint64{s.bits}
}

func (s *Regular[E]) clearBit(wordIdx int, mask uint64) bool {
	if s.bits&mask == 0 {
		return false
	}
	s.bits &^= mask
	s.size--
	return true
}
