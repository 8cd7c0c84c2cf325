package enumset

import "errors"

var (
	// ErrDomainTooLarge is returned when a domain does not fit the requested
	// representation (a Regular set over more than 64 members).
	ErrDomainTooLarge = errors.New("enumset: domain too large")

	// ErrInvalidDomain is returned for a negative domain size, or raw words
	// that do not fit the domain (too many words, or bits set beyond N).
	ErrInvalidDomain = errors.New("enumset: invalid domain")
)
