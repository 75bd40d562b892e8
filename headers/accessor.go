package headers

import "strings"

// LookupFunc returns the values of a header, matching name case-insensitively.
type LookupFunc func(name string) []string

// VisitFunc calls fn for each raw header line in native order.
type VisitFunc func(fn func(name, value string))

// accessorHeaders is a read-only view over a native accessor, such as the
// request header of fasthttp. Nothing is copied unless the caller
// enumerates.
type accessorHeaders struct {
	lookup LookupFunc
	visit  VisitFunc
}

var _ Headers = accessorHeaders{}

// Accessor returns an immutable view. Set, Append and Delete return a
// *MutationError.
func Accessor(lookup LookupFunc, visit VisitFunc) Headers {
	return accessorHeaders{lookup: lookup, visit: visit}
}

// snapshot copies all lines, for enumeration.
func (a accessorHeaders) snapshot() *Store {
	s := New()
	a.visit(func(name, value string) {
		s.add(strings.ToLower(name), value)
	})
	return s
}

// Get implements Headers.Get
func (a accessorHeaders) Get(name string) string {
	return join(strings.ToLower(name), a.lookup(name))
}

// Has implements Headers.Has
func (a accessorHeaders) Has(name string) bool {
	return len(a.lookup(name)) > 0
}

// Set implements Headers.Set
func (a accessorHeaders) Set(name, _ string) error {
	return immutable("set", name)
}

// Append implements Headers.Append
func (a accessorHeaders) Append(name, _ string) error {
	return immutable("append", name)
}

// Delete implements Headers.Delete
func (a accessorHeaders) Delete(name string) error {
	return immutable("delete", name)
}

// GetSetCookie implements Headers.GetSetCookie
func (a accessorHeaders) GetSetCookie() []string {
	return setCookies(a.lookup(SetCookie))
}

// Range implements Headers.Range
func (a accessorHeaders) Range(fn func(name, value string) bool) {
	a.snapshot().Range(fn)
}

// Keys implements Headers.Keys
func (a accessorHeaders) Keys() []string { return keysOf(a) }

// Values implements Headers.Values
func (a accessorHeaders) Values() []string { return valuesOf(a) }

// Entries implements Headers.Entries
func (a accessorHeaders) Entries() [][2]string { return entriesOf(a) }

// MarshalJSON implements json.Marshaler
func (a accessorHeaders) MarshalJSON() ([]byte, error) { return marshal(a) }
