package enumset

import (
	"fmt"
	"iter"
	"math/bits"
	"strings"
)

// Ordinal is any integer kind usable as a domain member.
type Ordinal interface {
	~int | ~int8 | ~int16 | ~int32 | ~int64 |
		~uint | ~uint8 | ~uint16 | ~uint32 | ~uint64 | ~uintptr
}

// RegularMax is the largest domain a single-word set can hold.
const RegularMax = 64

// Set is the read-only view shared by every variant.
type Set[E Ordinal] interface {
	// Domain returns N, the number of members in the closed domain.
	Domain() int
	Len() int
	IsEmpty() bool
	Contains(e E) bool
	// All yields members in ascending ordinal order. Each range starts over.
	All() iter.Seq[E]
	Slice() []E
	// Words returns a copy of the backing words.
	Words() []uint64
	// Equal reports same domain size and identical words.
	Equal(other Set[E]) bool
	Hash() uint64
	MutableCopy() MutableSet[E]
	ImmutableCopy() *Frozen[E]
	String() string

	wordSource
}

// MutableSet is a Set that can change in place.
type MutableSet[E Ordinal] interface {
	Set[E]

	// Add inserts e and reports whether the set changed.
	// It panics if e is outside the domain.
	Add(e E) bool
	// Remove deletes e and reports whether the set changed.
	Remove(e E) bool

	AddAll(members ...E) bool
	RemoveAll(members ...E) bool
	// RetainAll keeps only the given members; with no members it clears the set.
	RetainAll(members ...E) bool

	// AddSet, RemoveSet and RetainSet take a word-wise fast path when other
	// has the same domain size.
	AddSet(other Set[E]) bool
	RemoveSet(other Set[E]) bool
	RetainSet(other Set[E]) bool

	// Complement flips every member of the domain.
	Complement()
	Clear()

	// Iterator returns a cursor that can remove the member it last returned.
	Iterator() *Iterator[E]
}

type wordSource interface {
	wordLen() int
	word(i int) uint64
}

func wordCount(n int) int { return (n + 63) >> 6 }

// tailMask returns the valid-bit mask of the last word for a domain of n > 0.
func tailMask(n int) uint64 {
	if n&63 == 0 {
		return ^uint64(0)
	}
	return (uint64(1) << uint(n&63)) - 1
}

func popcount(words []uint64) int {
	c := 0
	for _, w := range words {
		c += bits.OnesCount64(w)
	}
	return c
}

// ordinal maps e to its index, reporting whether it lies in [0, n).
func ordinal[E Ordinal](e E, n int) (int, bool) {
	if e < 0 || uint64(e) >= uint64(n) {
		return 0, false
	}
	return int(e), true
}

func mustOrdinal[E Ordinal](e E, n int) int {
	i, ok := ordinal(e, n)
	if !ok {
		panic(fmt.Sprintf("enumset: member %v outside domain [0,%d)", e, n))
	}
	return i
}

// mustOrdinals maps every member before any is applied, so a panic leaves
// the receiver untouched.
func mustOrdinals[E Ordinal](members iter.Seq[E], n int) []int {
	var out []int
	for e := range members {
		out = append(out, mustOrdinal(e, n))
	}
	return out
}

// checkWords validates raw words against a domain of n members and returns a
// padded private copy.
func checkWords(n int, words []uint64) ([]uint64, error) {
	if n < 0 {
		return nil, fmt.Errorf("%w: negative size %d", ErrInvalidDomain, n)
	}
	wc := wordCount(n)
	if len(words) > wc {
		return nil, fmt.Errorf("%w: %d words for a domain of %d members (max %d)", ErrInvalidDomain, len(words), n, wc)
	}
	out := make([]uint64, wc)
	copy(out, words)
	if wc > 0 && out[wc-1]&^tailMask(n) != 0 {
		return nil, fmt.Errorf("%w: bits set beyond member %d", ErrInvalidDomain, n-1)
	}
	return out, nil
}

func sameDomain(a, b interface{ Domain() int }) bool { return a.Domain() == b.Domain() }

func equalWords(a, b wordSource) bool {
	n := max(a.wordLen(), b.wordLen())
	for i := 0; i < n; i++ {
		var x, y uint64
		if i < a.wordLen() {
			x = a.word(i)
		}
		if i < b.wordLen() {
			y = b.word(i)
		}
		if x != y {
			return false
		}
	}
	return true
}

func hashWords(n int, src wordSource) uint64 {
	// FNV-1a over the domain size and the words.
	const prime = 1099511628211
	h := uint64(14695981039346656037)
	h ^= uint64(n)
	h *= prime
	for i := 0; i < src.wordLen(); i++ {
		h ^= src.word(i)
		h *= prime
	}
	return h
}

// seqWords yields members from a word source in ascending order by repeatedly
// isolating the lowest set bit.
func seqWords[E Ordinal](src wordSource) iter.Seq[E] {
	return func(yield func(E) bool) {
		for i := 0; i < src.wordLen(); i++ {
			w := src.word(i)
			for w != 0 {
				low := w & -w
				w ^= low
				if !yield(E(i<<6 + bits.TrailingZeros64(low))) {
					return
				}
			}
		}
	}
}

func collect[E Ordinal](s Set[E]) []E {
	out := make([]E, 0, s.Len())
	for e := range s.All() {
		out = append(out, e)
	}
	return out
}

func format[E Ordinal](s Set[E]) string {
	var b strings.Builder
	b.WriteByte('{')
	first := true
	for e := range s.All() {
		if !first {
			b.WriteByte(' ')
		}
		first = false
		fmt.Fprint(&b, e)
	}
	b.WriteByte('}')
	return b.String()
}
