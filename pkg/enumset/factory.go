package enumset

import "fmt"

// New returns an empty mutable set over n members, picking Regular when the
// domain fits one word and Jumbo otherwise.
func New[E Ordinal](n int) (MutableSet[E], error) {
	if n < 0 {
		return nil, fmt.Errorf("%w: negative size %d", ErrInvalidDomain, n)
	}
	if n <= RegularMax {
		return &Regular[E]{n: n}, nil
	}
	return &Jumbo[E]{n: n, words: make([]uint64, wordCount(n))}, nil
}

// Of returns a mutable set over n members holding members. An out-of-domain
// member is reported as ErrInvalidDomain instead of a panic.
func Of[E Ordinal](n int, members ...E) (MutableSet[E], error) {
	s, err := New[E](n)
	if err != nil {
		return nil, err
	}
	for _, e := range members {
		if _, ok := ordinal(e, n); !ok {
			return nil, fmt.Errorf("%w: member %v outside [0,%d)", ErrInvalidDomain, e, n)
		}
		s.Add(e)
	}
	return s, nil
}

// FromWords builds a mutable set from raw words with the same size-based
// choice as New.
func FromWords[E Ordinal](n int, words []uint64) (MutableSet[E], error) {
	f, err := NewFrozen[E](n, words)
	if err != nil {
		return nil, err
	}
	return f.MutableCopy(), nil
}

// FrozenOf is the immutable counterpart of Of.
func FrozenOf[E Ordinal](n int, members ...E) (*Frozen[E], error) {
	s, err := Of[E](n, members...)
	if err != nil {
		return nil, err
	}
	return s.ImmutableCopy(), nil
}

// Domain binds a member type to its size so call sites don't repeat it.
//
//	var phases = enumset.MustDomain[Phase](phaseCount)
//	s := phases.Of(PhaseInput, PhaseRender)
type Domain[E Ordinal] struct {
	n int
}

// NewDomain validates n and returns a Domain.
func NewDomain[E Ordinal](n int) (Domain[E], error) {
	if n < 0 {
		return Domain[E]{}, fmt.Errorf("%w: negative size %d", ErrInvalidDomain, n)
	}
	return Domain[E]{n: n}, nil
}

// MustDomain is NewDomain for package-level vars; it panics on a negative n.
func MustDomain[E Ordinal](n int) Domain[E] {
	d, err := NewDomain[E](n)
	if err != nil {
		panic(err)
	}
	return d
}

func (d Domain[E]) Size() int { return d.n }

func (d Domain[E]) New() MutableSet[E] {
	s, _ := New[E](d.n)
	return s
}

// Of panics on out-of-domain members, matching MutableSet.Add.
func (d Domain[E]) Of(members ...E) MutableSet[E] {
	s := d.New()
	s.AddAll(members...)
	return s
}

// Full returns a set holding every member of the domain.
func (d Domain[E]) Full() MutableSet[E] {
	s := d.New()
	s.Complement()
	return s
}

func (d Domain[E]) Frozen(members ...E) *Frozen[E] {
	return d.Of(members...).ImmutableCopy()
}

func (d Domain[E]) FromWords(words []uint64) (MutableSet[E], error) {
	return FromWords[E](d.n, words)
}

// Freeze returns an immutable copy of s.
func Freeze[E Ordinal](s Set[E]) *Frozen[E] { return s.ImmutableCopy() }

// Thaw returns a mutable copy of s.
func Thaw[E Ordinal](s Set[E]) MutableSet[E] { return s.MutableCopy() }
