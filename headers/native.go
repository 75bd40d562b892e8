package headers

import (
	"net/http"
	"strings"
)

// nativeHeaders is a read-write view over a net/http header map. Mutations
// write through to the map.
type nativeHeaders struct {
	h http.Header
}

var _ Headers = nativeHeaders{}

// Native returns a view over h. Keys of h are expected to be canonical, as
// they are when populated by net/http or the http.Header methods.
func Native(h http.Header) Headers {
	return nativeHeaders{h: h}
}

func (n nativeHeaders) names() []string {
	names := make([]string, 0, len(n.h))
	for k := range n.h {
		names = append(names, strings.ToLower(k))
	}
	return names
}

func (n nativeHeaders) lookup(lower string) []string {
	return n.h.Values(lower)
}

// Get implements Headers.Get
func (n nativeHeaders) Get(name string) string {
	return join(strings.ToLower(name), n.h.Values(name))
}

// Has implements Headers.Has
func (n nativeHeaders) Has(name string) bool {
	return len(n.h.Values(name)) > 0
}

// Set implements Headers.Set
func (n nativeHeaders) Set(name, value string) error {
	if err := checkName(name); err != nil {
		return err
	}
	n.h.Set(name, value)
	return nil
}

// Append implements Headers.Append
func (n nativeHeaders) Append(name, value string) error {
	if err := checkName(name); err != nil {
		return err
	}
	n.h.Add(name, value)
	return nil
}

// Delete implements Headers.Delete
func (n nativeHeaders) Delete(name string) error {
	n.h.Del(name)
	return nil
}

// GetSetCookie implements Headers.GetSetCookie
func (n nativeHeaders) GetSetCookie() []string {
	return setCookies(n.h.Values(SetCookie))
}

// Range implements Headers.Range
func (n nativeHeaders) Range(fn func(name, value string) bool) {
	rangeSource(n, fn)
}

// Keys implements Headers.Keys
func (n nativeHeaders) Keys() []string { return keysOf(n) }

// Values implements Headers.Values
func (n nativeHeaders) Values() []string { return valuesOf(n) }

// Entries implements Headers.Entries
func (n nativeHeaders) Entries() [][2]string { return entriesOf(n) }

// MarshalJSON implements json.Marshaler
func (n nativeHeaders) MarshalJSON() ([]byte, error) { return marshal(n) }
