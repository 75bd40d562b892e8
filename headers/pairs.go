package headers

import "strings"

// pairsHeaders is a view over a flat list of alternating names and values,
// such as raw request headers of an edge runtime.
//
// Lookups scan the list. The list is copied into a Store the first time the
// caller enumerates or mutates.
type pairsHeaders struct {
	raw   []string
	store *Store
}

var _ Headers = (*pairsHeaders)(nil)

// Pairs returns a view over raw, which alternates name and value. A trailing
// name without a value is ignored. raw must not change after this call.
func Pairs(raw []string) Headers {
	return &pairsHeaders{raw: raw[:len(raw)&^1]}
}

// materialize switches the view to a Store.
func (p *pairsHeaders) materialize() *Store {
	if p.store == nil {
		s := New()
		for i := 0; i < len(p.raw); i += 2 {
			s.add(strings.ToLower(p.raw[i]), p.raw[i+1])
		}
		p.store = s
		p.raw = nil
	}
	return p.store
}

// scan returns the values of name without allocating when there is at most
// one.
func (p *pairsHeaders) scan(name string) (first string, rest []string, found bool) {
	for i := 0; i < len(p.raw); i += 2 {
		if !strings.EqualFold(p.raw[i], name) {
			continue
		}
		if !found {
			first, found = p.raw[i+1], true
			continue
		}
		if rest == nil {
			rest = []string{first}
		}
		rest = append(rest, p.raw[i+1])
	}
	return
}

// Get implements Headers.Get
func (p *pairsHeaders) Get(name string) string {
	if p.store != nil {
		return p.store.Get(name)
	}
	first, rest, _ := p.scan(name)
	if rest == nil {
		return first
	}
	return join(strings.ToLower(name), rest)
}

// Has implements Headers.Has
func (p *pairsHeaders) Has(name string) bool {
	if p.store != nil {
		return p.store.Has(name)
	}
	_, _, found := p.scan(name)
	return found
}

// Set implements Headers.Set
func (p *pairsHeaders) Set(name, value string) error {
	return p.materialize().Set(name, value)
}

// Append implements Headers.Append
func (p *pairsHeaders) Append(name, value string) error {
	return p.materialize().Append(name, value)
}

// Delete implements Headers.Delete
func (p *pairsHeaders) Delete(name string) error {
	return p.materialize().Delete(name)
}

// GetSetCookie implements Headers.GetSetCookie
func (p *pairsHeaders) GetSetCookie() []string {
	if p.store != nil {
		return p.store.GetSetCookie()
	}
	first, rest, found := p.scan(SetCookie)
	switch {
	case rest != nil:
		return rest
	case found:
		return []string{first}
	}
	return []string{}
}

// Range implements Headers.Range
func (p *pairsHeaders) Range(fn func(name, value string) bool) {
	p.materialize().Range(fn)
}

// Keys implements Headers.Keys
func (p *pairsHeaders) Keys() []string { return p.materialize().Keys() }

// Values implements Headers.Values
func (p *pairsHeaders) Values() []string { return p.materialize().Values() }

// Entries implements Headers.Entries
func (p *pairsHeaders) Entries() [][2]string { return p.materialize().Entries() }

// MarshalJSON implements json.Marshaler
func (p *pairsHeaders) MarshalJSON() ([]byte, error) { return p.materialize().MarshalJSON() }

// Materialized reports whether h is a pairs view that has been copied. Other
// views report false.
func Materialized(h Headers) bool {
	p, ok := h.(*pairsHeaders)
	return ok && p.store != nil
}
