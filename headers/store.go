package headers

import (
	"net/http"
	"strings"
)

// Store is an in-memory header collection keyed by lower-cased name.
//
// It backs fetch responses, request rewrites and the views below once they
// have to materialize.
type Store struct {
	m     map[string][]string
	order []string // insertion order of names in m
}

var _ Headers = (*Store)(nil)

// New returns an empty Store.
func New() *Store {
	return &Store{m: map[string][]string{}}
}

// Clone copies all entries of h into a new Store. A nil h results in an
// empty Store.
func Clone(h Headers) *Store {
	s := New()
	if h == nil {
		return s
	}
	if src, ok := h.(*Store); ok {
		for _, n := range src.order {
			s.add(n, src.m[n]...)
		}
		return s
	}
	h.Range(func(name, value string) bool {
		s.add(name, value)
		return true
	})
	return s
}

// FromHTTP copies a native header map into a new Store.
func FromHTTP(h http.Header) *Store {
	s := New()
	for k, vs := range h {
		s.add(strings.ToLower(k), vs...)
	}
	return s
}

// HTTP returns the entries as a canonical native header map.
func (s *Store) HTTP() http.Header {
	h := make(http.Header, len(s.m))
	for _, n := range s.order {
		h[http.CanonicalHeaderKey(n)] = append([]string(nil), s.m[n]...)
	}
	return h
}

// Len returns the number of distinct names.
func (s *Store) Len() int {
	return len(s.m)
}

func (s *Store) add(lower string, values ...string) {
	if len(values) == 0 {
		return
	}
	if _, ok := s.m[lower]; !ok {
		s.order = append(s.order, lower)
	}
	s.m[lower] = append(s.m[lower], values...)
}

func (s *Store) names() []string {
	return append([]string(nil), s.order...)
}

func (s *Store) lookup(lower string) []string {
	return s.m[lower]
}

// Get implements Headers.Get
func (s *Store) Get(name string) string {
	lower := strings.ToLower(name)
	return join(lower, s.m[lower])
}

// Has implements Headers.Has
func (s *Store) Has(name string) bool {
	return len(s.m[strings.ToLower(name)]) > 0
}

// Set implements Headers.Set
func (s *Store) Set(name, value string) error {
	if err := checkName(name); err != nil {
		return err
	}
	lower := strings.ToLower(name)
	if _, ok := s.m[lower]; !ok {
		s.order = append(s.order, lower)
	}
	s.m[lower] = []string{value}
	return nil
}

// Append implements Headers.Append
func (s *Store) Append(name, value string) error {
	if err := checkName(name); err != nil {
		return err
	}
	s.add(strings.ToLower(name), value)
	return nil
}

// Delete implements Headers.Delete
func (s *Store) Delete(name string) error {
	lower := strings.ToLower(name)
	if _, ok := s.m[lower]; !ok {
		return nil
	}
	delete(s.m, lower)
	for i, n := range s.order {
		if n == lower {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return nil
}

// GetSetCookie implements Headers.GetSetCookie
func (s *Store) GetSetCookie() []string {
	return setCookies(s.m[SetCookie])
}

// Range implements Headers.Range
func (s *Store) Range(fn func(name, value string) bool) {
	rangeSource(s, fn)
}

// Keys implements Headers.Keys
func (s *Store) Keys() []string { return keysOf(s) }

// Values implements Headers.Values
func (s *Store) Values() []string { return valuesOf(s) }

// Entries implements Headers.Entries
func (s *Store) Entries() [][2]string { return entriesOf(s) }

// MarshalJSON implements json.Marshaler
func (s *Store) MarshalJSON() ([]byte, error) { return marshal(s) }
