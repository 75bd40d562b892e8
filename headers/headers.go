// Package headers presents fetch-style header access directly over the
// header storage of each native runtime.
//
// Views avoid copying native headers into a new collection until a caller
// enumerates or mutates them. All views compare names case-insensitively and
// enumerate lower-cased names.
//
// ## Set-Cookie
//
// "set-cookie" is always multi-valued. Get returns only the first cookie and
// GetSetCookie returns all of them. Multiple cookies are never joined with a
// comma, neither by Get nor by Range.
//
// ## Ordering
//
// Range, Keys, Values and Entries visit names in lexicographic order. Values
// appended under the same name keep insertion order. This is the same for
// every view, so the wire order of a response doesn't depend on the runtime.
package headers

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// SetCookie is the only header name whose values are never joined.
const SetCookie = "set-cookie"

// Headers is the fetch Headers contract.
type Headers interface {
	// Get returns the values of name joined with ", ", or "" if absent.
	Get(name string) string

	// Has returns true if at least one value exists for name.
	Has(name string) bool

	// Set overwrites all values of name.
	Set(name, value string) error

	// Append adds a value to name, keeping existing ones.
	Append(name, value string) error

	// Delete removes all values of name.
	Delete(name string) error

	// GetSetCookie returns each "set-cookie" value. The result is never nil.
	GetSetCookie() []string

	// Range calls fn for each entry until fn returns false. See the package
	// documentation for ordering.
	Range(fn func(name, value string) bool)

	// Keys returns the lower-cased names, one per entry.
	Keys() []string

	// Values returns the values, one per entry.
	Values() []string

	// Entries returns name/value pairs, one per entry.
	Entries() [][2]string

	json.Marshaler
}

// ErrImmutable is wrapped by errors returned when mutating read-only views.
var ErrImmutable = errors.New("headers: immutable")

// ErrInvalidName is returned when a header name isn't a valid token.
var ErrInvalidName = errors.New("headers: invalid name")

// MutationError describes a rejected mutation of a read-only view.
type MutationError struct {
	Op   string
	Name string
}

// Error implements error.
func (e *MutationError) Error() string {
	return fmt.Sprintf("headers: can't %s %q: request headers are immutable", e.Op, e.Name)
}

// Unwrap allows errors.Is(err, ErrImmutable).
func (e *MutationError) Unwrap() error {
	return ErrImmutable
}

func immutable(op, name string) error {
	return &MutationError{Op: op, Name: strings.ToLower(name)}
}

// validName reports whether name is an RFC 7230 token.
func validName(name string) bool {
	if name == "" {
		return false
	}
	for i := 0; i < len(name); i++ {
		c := name[i]
		switch {
		case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
		case strings.IndexByte("!#$%&'*+-.^_`|~", c) >= 0:
		default:
			return false
		}
	}
	return true
}

func checkName(name string) error {
	if !validName(name) {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

// join combines values the way fetch Headers.get does.
func join(lower string, values []string) string {
	switch len(values) {
	case 0:
		return ""
	case 1:
		return values[0]
	}
	if lower == SetCookie {
		return values[0]
	}
	return strings.Join(values, ", ")
}

// source is what every view can answer cheaply once enumerated.
type source interface {
	names() []string // lower-cased, unique, any order
	lookup(lower string) []string
}

// rangeSource implements Headers.Range in canonical order.
func rangeSource(s source, fn func(name, value string) bool) {
	names := s.names()
	sort.Strings(names)
	for _, n := range names {
		values := s.lookup(n)
		if len(values) == 0 {
			continue
		}
		if n == SetCookie {
			for _, v := range values {
				if !fn(n, v) {
					return
				}
			}
			continue
		}
		if !fn(n, join(n, values)) {
			return
		}
	}
}

func keysOf(h Headers) (keys []string) {
	h.Range(func(name, _ string) bool {
		keys = append(keys, name)
		return true
	})
	return
}

func valuesOf(h Headers) (values []string) {
	h.Range(func(_, value string) bool {
		values = append(values, value)
		return true
	})
	return
}

func entriesOf(h Headers) (entries [][2]string) {
	h.Range(func(name, value string) bool {
		entries = append(entries, [2]string{name, value})
		return true
	})
	return
}

// marshal encodes entries as a JSON object. Repeated set-cookie entries are
// encoded as an array so no cookie is lost.
func marshal(h Headers) ([]byte, error) {
	obj := map[string]any{}
	h.Range(func(name, value string) bool {
		if name == SetCookie {
			cookies, _ := obj[name].([]string)
			obj[name] = append(cookies, value)
		} else {
			obj[name] = value
		}
		return true
	})
	return json.Marshal(obj)
}

// setCookies returns a non-nil copy of values.
func setCookies(values []string) []string {
	return append(make([]string, 0, len(values)), values...)
}
