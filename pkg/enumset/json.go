package enumset

import (
	"encoding/json"
	"fmt"
)

type wireSet struct {
	Domain int      `json:"domain"`
	Words  []uint64 `json:"words"`
}

func marshalSet(n int, src wordSource) ([]byte, error) {
	w := wireSet{Domain: n, Words: make([]uint64, src.wordLen())}
	for i := range w.Words {
		w.Words[i] = src.word(i)
	}
	return json.Marshal(w)
}

func unmarshalWords(data []byte) (int, []uint64, error) {
	var w wireSet
	if err := json.Unmarshal(data, &w); err != nil {
		return 0, nil, fmt.Errorf("enumset: decode: %w", err)
	}
	words, err := checkWords(w.Domain, w.Words)
	if err != nil {
		return 0, nil, err
	}
	return w.Domain, words, nil
}

func (s *Regular[E]) MarshalJSON() ([]byte, error) { return marshalSet(s.n, s) }

// UnmarshalJSON replaces s. A domain larger than RegularMax is rejected with
// ErrDomainTooLarge.
func (s *Regular[E]) UnmarshalJSON(data []byte) error {
	n, words, err := unmarshalWords(data)
	if err != nil {
		return err
	}
	if n > RegularMax {
		return fmt.Errorf("%w: %d members do not fit a single-word set (max %d)", ErrDomainTooLarge, n, RegularMax)
	}
	s.n, s.bits = n, 0
	if len(words) > 0 {
		s.bits = words[0]
	}
	s.recount()
	return nil
}

func (s *Jumbo[E]) MarshalJSON() ([]byte, error) { return marshalSet(s.n, s) }

func (s *Jumbo[E]) UnmarshalJSON(data []byte) error {
	n, words, err := unmarshalWords(data)
	if err != nil {
		return err
	}
	s.n, s.words, s.size = n, words, popcount(words)
	return nil
}

func (s *Frozen[E]) MarshalJSON() ([]byte, error) { return marshalSet(s.n, s) }

// UnmarshalJSON is only meant for decoding into a fresh value; Frozen sets
// already handed out must not be decoded into.
func (s *Frozen[E]) UnmarshalJSON(data []byte) error {
	n, words, err := unmarshalWords(data)
	if err != nil {
		return err
	}
	s.n, s.words, s.size = n, words, popcount(words)
	return nil
}
