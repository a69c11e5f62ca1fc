package domain

import (
	"container/list"
	"encoding/json"
)

// TokenSet is an insertion-ordered set of session tokens. Add, Remove and
// Contains are O(1). The zero value is an empty set ready to use.
//
// A TokenSet must not be copied after first use; use Clone.
type TokenSet struct {
	index map[string]*list.Element
	order *list.List
}

func NewTokenSet(tokens ...string) TokenSet {
	var s TokenSet
	for _, t := range tokens {
		s.Add(t)
	}
	return s
}

// Add inserts token at the end and reports whether it was absent.
func (s *TokenSet) Add(token string) bool {
	if s.index == nil {
		s.index = make(map[string]*list.Element)
		s.order = list.New()
	}
	if _, ok := s.index[token]; ok {
		return false
	}
	s.index[token] = s.order.PushBack(token)
	return true
}

// Remove deletes token and reports whether it was present.
func (s *TokenSet) Remove(token string) bool {
	el, ok := s.index[token]
	if !ok {
		return false
	}
	s.order.Remove(el)
	delete(s.index, token)
	return true
}

func (s *TokenSet) Contains(token string) bool {
	_, ok := s.index[token]
	return ok
}

func (s *TokenSet) Len() int {
	return len(s.index)
}

// Values returns the members in insertion order.
func (s *TokenSet) Values() []string {
	if s.order == nil {
		return []string{}
	}
	out := make([]string, 0, s.order.Len())
	for el := s.order.Front(); el != nil; el = el.Next() {
		out = append(out, el.Value.(string))
	}
	return out
}

func (s *TokenSet) Clone() TokenSet {
	return NewTokenSet(s.Values()...)
}

func (s *TokenSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Values())
}

// UnmarshalJSON accepts an array of tokens, or null for an empty set.
// Duplicates keep their first position.
func (s *TokenSet) UnmarshalJSON(data []byte) error {
	var tokens []string
	if err := json.Unmarshal(data, &tokens); err != nil {
		return err
	}
	*s = NewTokenSet(tokens...)
	return nil
}
