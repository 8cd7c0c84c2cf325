// Package enumset provides compact sets over a closed, ordinal-indexed domain
// such as a Go iota enumeration.
//
// A set over a domain of N members is backed by ceil(N/64) 64-bit words;
// member i lives at bit i%64 of word i/64. Bits at positions >= N are always
// zero.
//
// Variants:
//   - Regular: mutable, single word, N <= 64
//   - Jumbo:   mutable, any N
//   - Frozen:  immutable; "mutating" methods return a new set
//
// New and Domain.New pick Regular or Jumbo by domain size. Converting between
// mutable and frozen sets always copies the backing words.
//
// Sets are not safe for concurrent mutation.
package enumset
