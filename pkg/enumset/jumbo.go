package enumset

import (
	"fmt"
	"iter"
	"slices"
)

// Jumbo is a mutable set over a domain of any size, held in ceil(N/64) words.
// It also works for N <= 64, but Regular is cheaper there.
type Jumbo[E Ordinal] struct {
	n     int
	words []uint64
	size  int
}

// NewJumbo returns an empty multi-word set over n members.
func NewJumbo[E Ordinal](n int) (*Jumbo[E], error) {
	if n < 0 {
		return nil, fmt.Errorf("%w: negative size %d", ErrInvalidDomain, n)
	}
	return &Jumbo[E]{n: n, words: make([]uint64, wordCount(n))}, nil
}

// JumboFromWords copies words into a new set. Missing trailing words are
// zero-padded; extra words or bits beyond n are rejected.
func JumboFromWords[E Ordinal](n int, words []uint64) (*Jumbo[E], error) {
	w, err := checkWords(n, words)
	if err != nil {
		return nil, err
	}
	return &Jumbo[E]{n: n, words: w, size: popcount(w)}, nil
}

func (s *Jumbo[E]) wordLen() int      { return len(s.words) }
func (s *Jumbo[E]) word(i int) uint64 { return s.words[i] }

func (s *Jumbo[E]) Domain() int   { return s.n }
func (s *Jumbo[E]) Len() int      { return s.size }
func (s *Jumbo[E]) IsEmpty() bool { return s.size == 0 }

func (s *Jumbo[E]) Contains(e E) bool {
	i, ok := ordinal(e, s.n)
	return ok && s.words[i>>6]&(1<<uint(i&63)) != 0
}

func (s *Jumbo[E]) Add(e E) bool {
	i := mustOrdinal(e, s.n)
	w, mask := i>>6, uint64(1)<<uint(i&63)
	if s.words[w]&mask != 0 {
		return false
	}
	s.words[w] |= mask
	s.size++
	return true
}

func (s *Jumbo[E]) Remove(e E) bool {
	i, ok := ordinal(e, s.n)
	if !ok {
		return false
	}
	return s.clearBit(i>>6, uint64(1)<<uint(i&63))
}

func (s *Jumbo[E]) AddAll(members ...E) bool {
	if len(members) == 0 {
		return false
	}
	old := s.size
	for _, i := range mustOrdinals(slices.Values(members), s.n) {
		s.words[i>>6] |= uint64(1) << uint(i&63)
	}
	s.recount()
	return s.size != old
}

func (s *Jumbo[E]) RemoveAll(members ...E) bool {
	if len(members) == 0 {
		return false
	}
	old := s.size
	for _, e := range members {
		if i, ok := ordinal(e, s.n); ok {
			s.words[i>>6] &^= uint64(1) << uint(i&63)
		}
	}
	s.recount()
	return s.size != old
}

func (s *Jumbo[E]) RetainAll(members ...E) bool {
	if len(members) == 0 {
		changed := s.size != 0
		s.Clear()
		return changed
	}
	keep := make([]uint64, len(s.words))
	for _, e := range members {
		if i, ok := ordinal(e, s.n); ok {
			keep[i>>6] |= uint64(1) << uint(i&63)
		}
	}
	old := s.size
	for i := range s.words {
		s.words[i] &= keep[i]
	}
	s.recount()
	return s.size != old
}

// AddSet ORs other into s. Union only grows the set, so a size change is
// exactly a content change; the same holds for RemoveSet and RetainSet.
func (s *Jumbo[E]) AddSet(other Set[E]) bool {
	if other == nil || other.IsEmpty() {
		return false
	}
	old := s.size
	if sameDomain(s, other) {
		for i := range s.words {
			s.words[i] |= other.word(i)
		}
	} else {
		for _, i := range mustOrdinals(other.All(), s.n) {
			s.words[i>>6] |= uint64(1) << uint(i&63)
		}
	}
	s.recount()
	return s.size != old
}

func (s *Jumbo[E]) RemoveSet(other Set[E]) bool {
	if other == nil || other.IsEmpty() {
		return false
	}
	old := s.size
	if sameDomain(s, other) {
		for i := range s.words {
			s.words[i] &^= other.word(i)
		}
	} else {
		for e := range other.All() {
			if i, ok := ordinal(e, s.n); ok {
				s.words[i>>6] &^= uint64(1) << uint(i&63)
			}
		}
	}
	s.recount()
	return s.size != old
}

func (s *Jumbo[E]) RetainSet(other Set[E]) bool {
	if other == nil || other.IsEmpty() {
		changed := s.size != 0
		s.Clear()
		return changed
	}
	old := s.size
	if sameDomain(s, other) {
		for i := range s.words {
			s.words[i] &= other.word(i)
		}
	} else {
		it := s.Iterator()
		for e, ok := it.Next(); ok; e, ok = it.Next() {
			if !other.Contains(e) {
				it.Remove()
			}
		}
	}
	s.recount()
	return s.size != old
}

func (s *Jumbo[E]) Complement() {
	if len(s.words) == 0 {
		return
	}
	for i := range s.words {
		s.words[i] = ^s.words[i]
	}
	s.words[len(s.words)-1] &= tailMask(s.n)
	s.recount()
}

func (s *Jumbo[E]) Clear() {
	clear(s.words)
	s.size = 0
}

func (s *Jumbo[E]) recount() { s.size = popcount(s.words) }

func (s *Jumbo[E]) clearBit(wordIdx int, mask uint64) bool {
	if s.words[wordIdx]&mask == 0 {
		return false
	}
	s.words[wordIdx] &^= mask
	s.size--
	return true
}

func (s *Jumbo[E]) All() iter.Seq[E] { return seqWords[E](s) }

func (s *Jumbo[E]) Slice() []E { return collect[E](s) }

func (s *Jumbo[E]) Words() []uint64 { return append([]uint64(nil), s.words...) }

func (s *Jumbo[E]) Equal(other Set[E]) bool {
	return other != nil && sameDomain(s, other) && equalWords(s, other)
}

func (s *Jumbo[E]) Hash() uint64 { return hashWords(s.n, s) }

func (s *Jumbo[E]) String() string { return format[E](s) }

func (s *Jumbo[E]) Iterator() *Iterator[E] { return newIterator[E](s) }

func (s *Jumbo[E]) MutableCopy() MutableSet[E] { return s.Clone() }

// Clone returns an independent copy; the backing words are never shared.
func (s *Jumbo[E]) Clone() *Jumbo[E] {
	return &Jumbo[E]{n: s.n, words: append([]uint64(nil), s.words...), size: s.size}
}

func (s *Jumbo[E]) ImmutableCopy() *Frozen[E] {
	return &Frozen[E]{n: s.n, words: s.Words(), size: s.size}
}
