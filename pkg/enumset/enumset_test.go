package enumset

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"slices"
	"testing"
)

type member int

func countContained[E Ordinal](s Set[E]) int {
	c := 0
	for i := 0; i < s.Domain(); i++ {
		if s.Contains(E(i)) {
			c++
		}
	}
	return c
}

func TestFactorySelectsVariant(t *testing.T) {
	t.Parallel()
	for _, tc := range []struct {
		n       int
		regular bool
	}{
		{0, true}, {1, true}, {63, true}, {64, true}, {65, false}, {200, false},
	} {
		s, err := New[member](tc.n)
		if err != nil {
			t.Fatalf("New(%d): %v", tc.n, err)
		}
		_, isRegular := s.(*Regular[member])
		if isRegular != tc.regular {
			t.Fatalf("New(%d): regular=%v, want %v", tc.n, isRegular, tc.regular)
		}
		if s.Domain() != tc.n || s.Len() != 0 {
			t.Fatalf("New(%d): domain=%d len=%d", tc.n, s.Domain(), s.Len())
		}
	}
}

func TestConstructorErrors(t *testing.T) {
	t.Parallel()
	if _, err := NewRegular[member](65); !errors.Is(err, ErrDomainTooLarge) {
		t.Fatalf("NewRegular(65): expected ErrDomainTooLarge, got %v", err)
	}
	if _, err := New[member](-1); !errors.Is(err, ErrInvalidDomain) {
		t.Fatalf("New(-1): expected ErrInvalidDomain, got %v", err)
	}
	if _, err := FromWords[member](70, []uint64{0, 0, 0}); !errors.Is(err, ErrInvalidDomain) {
		t.Fatalf("too many words: expected ErrInvalidDomain, got %v", err)
	}
	if _, err := FromWords[member](70, []uint64{0, 1 << 6}); !errors.Is(err, ErrInvalidDomain) {
		t.Fatalf("tail bit: expected ErrInvalidDomain, got %v", err)
	}
	if _, err := Of[member](10, 3, 10); !errors.Is(err, ErrInvalidDomain) {
		t.Fatalf("Of out of domain: expected ErrInvalidDomain, got %v", err)
	}

	s, err := FromWords[member](130, []uint64{1})
	if err != nil {
		t.Fatalf("FromWords pad: %v", err)
	}
	if got := s.Words(); len(got) != 3 || got[0] != 1 {
		t.Fatalf("expected padded words, got %v", got)
	}
}

func TestFullDomainScenario(t *testing.T) {
	t.Parallel()
	s, _ := New[member](100)
	s.Complement()
	if s.Len() != 100 {
		t.Fatalf("complement of empty: len=%d", s.Len())
	}
	if !s.RemoveAll(2, 3, 4, 5) {
		t.Fatalf("RemoveAll should report a change")
	}
	if s.AddAll(6, 7) {
		t.Fatalf("AddAll of present members should not report a change")
	}
	if s.Len() != 96 {
		t.Fatalf("expected 96 members, got %d", s.Len())
	}
	for _, m := range []member{2, 3, 4, 5} {
		if s.Contains(m) {
			t.Fatalf("member %d should be absent", m)
		}
	}
	for _, m := range []member{6, 7, 99} {
		if !s.Contains(m) {
			t.Fatalf("member %d should be present", m)
		}
	}
	if s.Contains(100) || s.Contains(-1) {
		t.Fatalf("out-of-domain members must not be contained")
	}
}

func TestRoundTripPreservesMembership(t *testing.T) {
	t.Parallel()
	r := rand.New(rand.NewPCG(1, 2))
	for _, n := range []int{1, 17, 64, 65, 128, 300} {
		for round := 0; round < 20; round++ {
			var members []member
			for i := 0; i < n; i++ {
				if r.IntN(3) == 0 {
					members = append(members, member(i))
				}
			}
			src, err := Of[member](n, members...)
			if err != nil {
				t.Fatalf("Of: %v", err)
			}
			m := src.MutableCopy()
			if !m.Equal(src) {
				t.Fatalf("n=%d: mutable copy differs", n)
			}
			extra := member(r.IntN(n))
			m.AddAll(extra)
			m.RemoveAll(extra)
			frozen := m.ImmutableCopy()
			back := frozen.MutableCopy()
			for i := 0; i < n; i++ {
				want := slices.Contains(members, member(i)) && member(i) != extra
				if back.Contains(member(i)) != want || frozen.Contains(member(i)) != want {
					t.Fatalf("n=%d: membership of %d changed across round trip", n, i)
				}
			}

			// copies never share storage
			back.Clear()
			if frozen.Len() != m.Len() {
				t.Fatalf("n=%d: frozen copy shares words with its thaw", n)
			}
		}
	}
}

func TestComplementInvolution(t *testing.T) {
	t.Parallel()
	r := rand.New(rand.NewPCG(3, 4))
	for _, n := range []int{0, 5, 64, 65, 127, 128, 129} {
		s, _ := New[member](n)
		for i := 0; i < n; i++ {
			if r.IntN(2) == 0 {
				s.Add(member(i))
			}
		}
		orig := s.ImmutableCopy()
		s.Complement()
		if n > 0 && s.Len() != n-orig.Len() {
			t.Fatalf("n=%d: complement len=%d, want %d", n, s.Len(), n-orig.Len())
		}
		s.Complement()
		if !s.Equal(orig) {
			t.Fatalf("n=%d: complement twice = %v, want %v", n, s, orig)
		}
		if !orig.Complemented().Complemented().Equal(orig) {
			t.Fatalf("n=%d: frozen complement is not an involution", n)
		}
	}
}

func TestSizeMatchesContains(t *testing.T) {
	t.Parallel()
	r := rand.New(rand.NewPCG(5, 6))
	for _, n := range []int{10, 64, 150} {
		s, _ := New[member](n)
		other, _ := New[member](n)
		for step := 0; step < 500; step++ {
			e := member(r.IntN(n))
			switch r.IntN(10) {
			case 0:
				s.Add(e)
			case 1:
				s.Remove(e)
			case 2:
				s.AddAll(e, member(r.IntN(n)))
			case 3:
				s.RemoveAll(e, member(r.IntN(n)))
			case 4:
				s.Complement()
			case 5:
				s.RetainAll(e, member(r.IntN(n)), member(r.IntN(n)))
			case 6:
				if r.IntN(20) == 0 {
					s.Clear()
				}
			case 7:
				other.Add(e)
				s.AddSet(other)
			case 8:
				s.RemoveSet(other)
			case 9:
				other.Complement()
				s.RetainSet(other)
			}
			if got := countContained[member](s); got != s.Len() {
				t.Fatalf("n=%d step %d: Len=%d but %d members contained", n, step, s.Len(), got)
			}
		}
	}
}

func TestRetainEmptyClears(t *testing.T) {
	t.Parallel()
	s, _ := Of[member](80, 1, 70)
	if !s.RetainAll() || !s.IsEmpty() {
		t.Fatalf("RetainAll() should clear the set")
	}
	s.AddAll(1, 70)
	empty, _ := New[member](80)
	if !s.RetainSet(empty) || !s.IsEmpty() {
		t.Fatalf("RetainSet(empty) should clear the set")
	}
}

func TestCrossDomainBulkOps(t *testing.T) {
	t.Parallel()
	small, _ := Of[member](10, 1, 2, 3)
	big, _ := Of[member](100, 2, 3, 50)

	if !big.RetainSet(small) {
		t.Fatalf("retain should drop 50")
	}
	if got := big.Slice(); !slices.Equal(got, []member{2, 3}) {
		t.Fatalf("retain across domains: got %v", got)
	}
	if !big.AddSet(small) || !big.Contains(1) {
		t.Fatalf("add across domains should add 1")
	}
	if small.Equal(big) {
		t.Fatalf("sets over different domains are never equal")
	}
}

func TestAddPanicsOutsideDomain(t *testing.T) {
	t.Parallel()
	s, _ := New[member](8)
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic on out-of-domain Add")
		}
	}()
	s.Add(8)
}

func TestBulkAddOutsideDomainLeavesSetUntouched(t *testing.T) {
	t.Parallel()
	for _, n := range []int{10, 100} {
		t.Run(fmt.Sprintf("n=%d", n), func(t *testing.T) {
			s, _ := New[member](n)
			s.Add(0)
			other, _ := New[member](n + 10)
			other.AddAll(1, 2, member(n+5))

			mustPanic(t, func() { s.AddAll(1, 2, member(n+5)) })
			mustPanic(t, func() { s.AddSet(other) })

			if s.Len() != 1 || !s.Contains(0) || s.Contains(1) || s.Contains(2) {
				t.Fatalf("set changed by a panicking bulk add: %v (len %d)", s, s.Len())
			}
			count := 0
			for range s.All() {
				count++
			}
			if count != s.Len() {
				t.Fatalf("Len = %d but %d members iterate", s.Len(), count)
			}
		})
	}
}

func mustPanic(t *testing.T, fn func()) {
	t.Helper()
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic")
		}
	}()
	fn()
}

func TestIteratorRemove(t *testing.T) {
	t.Parallel()
	for _, n := range []int{40, 200} {
		s, _ := New[member](n)
		for i := 0; i < n; i += 3 {
			s.Add(member(i))
		}
		it := s.Iterator()
		if it.Remove() {
			t.Fatalf("Remove before Next must fail")
		}
		var seen []member
		for e, ok := it.Next(); ok; e, ok = it.Next() {
			seen = append(seen, e)
			if e%2 == 0 {
				if !it.Remove() {
					t.Fatalf("Remove(%d) failed", e)
				}
				if it.Remove() {
					t.Fatalf("double Remove(%d) succeeded", e)
				}
			}
		}
		if !slices.IsSorted(seen) {
			t.Fatalf("iteration not ascending: %v", seen)
		}
		for e := range s.All() {
			if e%2 == 0 {
				t.Fatalf("n=%d: even member %d survived", n, e)
			}
		}
		if countContained[member](s) != s.Len() {
			t.Fatalf("n=%d: size out of sync after iterator removal", n)
		}
	}
}

func TestEqualityAndHash(t *testing.T) {
	t.Parallel()
	a, _ := Of[member](64, 0, 63)
	b, _ := Of[member](64, 63, 0)
	if !a.Equal(b) || a.Hash() != b.Hash() {
		t.Fatalf("equal sets must compare equal with equal hashes")
	}
	if !a.Equal(a.ImmutableCopy()) {
		t.Fatalf("set must equal its frozen copy")
	}
	c, _ := Of[member](65, 0, 63)
	if a.Equal(c) {
		t.Fatalf("different domain sizes must not be equal")
	}
	if got := a.String(); got != "{0 63}" {
		t.Fatalf("String() = %q", got)
	}
}

func TestFrozenDerivations(t *testing.T) {
	t.Parallel()
	d := MustDomain[member](70)
	f := d.Frozen(1, 2)
	g := f.With(69)
	if f.Contains(69) || !g.Contains(69) {
		t.Fatalf("With must not modify the receiver")
	}
	if f.With(1) != f {
		t.Fatalf("With of a present member should return the receiver")
	}
	if h := g.Without(1); h.Len() != 2 || h.Contains(1) {
		t.Fatalf("Without: got %v", h)
	}
	if u := f.Union(d.Of(5)); !slices.Equal(u.Slice(), []member{1, 2, 5}) {
		t.Fatalf("Union: got %v", u)
	}
	if full := d.Full(); full.Len() != 70 || !f.Complemented().Equal(Freeze[member](full).Difference(f)) {
		t.Fatalf("Complemented should match full minus set")
	}
}

func TestJSON(t *testing.T) {
	t.Parallel()
	s, _ := Of[member](70, 0, 65)
	data, err := json.Marshal(s)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(data) != `{"domain":70,"words":[1,2]}` {
		t.Fatalf("unexpected encoding %s", data)
	}

	var back Jumbo[member]
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !back.Equal(s) {
		t.Fatalf("decoded %v, want %v", &back, s)
	}

	var r Regular[member]
	if err := json.Unmarshal(data, &r); !errors.Is(err, ErrDomainTooLarge) {
		t.Fatalf("expected ErrDomainTooLarge, got %v", err)
	}
	var f Frozen[member]
	if err := json.Unmarshal([]byte(`{"domain":3,"words":[8]}`), &f); !errors.Is(err, ErrInvalidDomain) {
		t.Fatalf("expected ErrInvalidDomain, got %v", err)
	}
}
