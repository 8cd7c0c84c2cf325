package enumset

import "iter"

// Frozen is an immutable set of any domain size. The zero value is not
// usable; build one with NewFrozen, FrozenOf or ImmutableCopy.
//
// Frozen values are safe to share between goroutines. Every "mutating"
// method returns a new set.
type Frozen[E Ordinal] struct {
	n     int
	words []uint64
	size  int
}

// NewFrozen builds an immutable set from raw words.
func NewFrozen[E Ordinal](n int, words []uint64) (*Frozen[E], error) {
	w, err := checkWords(n, words)
	if err != nil {
		return nil, err
	}
	return &Frozen[E]{n: n, words: w, size: popcount(w)}, nil
}

func (s *Frozen[E]) wordLen() int      { return len(s.words) }
func (s *Frozen[E]) word(i int) uint64 { return s.words[i] }

func (s *Frozen[E]) Domain() int   { return s.n }
func (s *Frozen[E]) Len() int      { return s.size }
func (s *Frozen[E]) IsEmpty() bool { return s.size == 0 }

func (s *Frozen[E]) Contains(e E) bool {
	i, ok := ordinal(e, s.n)
	return ok && s.words[i>>6]&(1<<uint(i&63)) != 0
}

func (s *Frozen[E]) All() iter.Seq[E] { return seqWords[E](s) }

func (s *Frozen[E]) Slice() []E { return collect[E](s) }

func (s *Frozen[E]) Words() []uint64 { return append([]uint64(nil), s.words...) }

func (s *Frozen[E]) Equal(other Set[E]) bool {
	return other != nil && sameDomain(s, other) && equalWords(s, other)
}

func (s *Frozen[E]) Hash() uint64 { return hashWords(s.n, s) }

func (s *Frozen[E]) String() string { return format[E](s) }

// MutableCopy returns a Regular for domains up to RegularMax and a Jumbo
// otherwise.
func (s *Frozen[E]) MutableCopy() MutableSet[E] {
	if s.n <= RegularMax {
		r := &Regular[E]{n: s.n, size: s.size}
		if len(s.words) > 0 {
			r.bits = s.words[0]
		}
		return r
	}
	return &Jumbo[E]{n: s.n, words: s.Words(), size: s.size}
}

// ImmutableCopy returns s itself.
func (s *Frozen[E]) ImmutableCopy() *Frozen[E] { return s }

// With returns a set that also holds members. It panics on out-of-domain
// members, like Add.
func (s *Frozen[E]) With(members ...E) *Frozen[E] {
	m := s.MutableCopy()
	if !m.AddAll(members...) {
		return s
	}
	return m.ImmutableCopy()
}

func (s *Frozen[E]) Without(members ...E) *Frozen[E] {
	m := s.MutableCopy()
	if !m.RemoveAll(members...) {
		return s
	}
	return m.ImmutableCopy()
}

func (s *Frozen[E]) Union(other Set[E]) *Frozen[E] {
	m := s.MutableCopy()
	if !m.AddSet(other) {
		return s
	}
	return m.ImmutableCopy()
}

func (s *Frozen[E]) Intersect(other Set[E]) *Frozen[E] {
	m := s.MutableCopy()
	if !m.RetainSet(other) {
		return s
	}
	return m.ImmutableCopy()
}

func (s *Frozen[E]) Difference(other Set[E]) *Frozen[E] {
	m := s.MutableCopy()
	if !m.RemoveSet(other) {
		return s
	}
	return m.ImmutableCopy()
}

// Complemented returns the set of domain members not in s.
func (s *Frozen[E]) Complemented() *Frozen[E] {
	m := s.MutableCopy()
	m.Complement()
	return m.ImmutableCopy()
}
