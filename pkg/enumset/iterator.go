package enumset

import "math/bits"

type mutableWords interface {
	wordSource
	clearBit(wordIdx int, mask uint64) bool
}

// Iterator walks a mutable set in ascending order and can remove the member
// it returned last.
//
//	it := set.Iterator()
//	for e, ok := it.Next(); ok; e, ok = it.Next() {
//		if drop(e) {
//			it.Remove()
//		}
//	}
type Iterator[E Ordinal] struct {
	set     mutableWords
	idx     int
	unseen  uint64
	last    uint64
	lastIdx int
}

func newIterator[E Ordinal](set mutableWords) *Iterator[E] {
	it := &Iterator[E]{set: set}
	if set.wordLen() > 0 {
		it.unseen = set.word(0)
	}
	return it
}

// Next returns the next member, or false when the set is exhausted.
func (it *Iterator[E]) Next() (E, bool) {
	for it.unseen == 0 && it.idx < it.set.wordLen()-1 {
		it.idx++
		it.unseen = it.set.word(it.idx)
	}
	if it.unseen == 0 {
		var zero E
		return zero, false
	}
	it.last = it.unseen & -it.unseen
	it.lastIdx = it.idx
	it.unseen ^= it.last
	return E(it.idx<<6 + bits.TrailingZeros64(it.last)), true
}

// Remove deletes the member last returned by Next. It reports false when
// there is no such member or it was already removed.
func (it *Iterator[E]) Remove() bool {
	if it.last == 0 {
		return false
	}
	removed := it.set.clearBit(it.lastIdx, it.last)
	it.last = 0
	return removed
}
