package headers

// ApplyFunc replaces the whole header set of a native response.
type ApplyFunc func(s *Store)

// Eager buffers headers in a Store and re-applies the full set to a native
// response after every mutation. It is used where the native response only
// exposes whole-set header assignment.
type Eager struct {
	*Store
	apply ApplyFunc
}

var _ Headers = (*Eager)(nil)

// NewEager returns an Eager seeded with initial, which may be nil. apply is
// not called until the first mutation.
func NewEager(initial Headers, apply ApplyFunc) *Eager {
	return &Eager{Store: Clone(initial), apply: apply}
}

// Set implements Headers.Set
func (e *Eager) Set(name, value string) error {
	if err := e.Store.Set(name, value); err != nil {
		return err
	}
	e.apply(e.Store)
	return nil
}

// Append implements Headers.Append
func (e *Eager) Append(name, value string) error {
	if err := e.Store.Append(name, value); err != nil {
		return err
	}
	e.apply(e.Store)
	return nil
}

// Delete implements Headers.Delete
func (e *Eager) Delete(name string) error {
	if err := e.Store.Delete(name); err != nil {
		return err
	}
	e.apply(e.Store)
	return nil
}

// Range implements Headers.Range
func (e *Eager) Range(fn func(name, value string) bool) { e.Store.Range(fn) }

// Keys implements Headers.Keys
func (e *Eager) Keys() []string { return keysOf(e) }

// Values implements Headers.Values
func (e *Eager) Values() []string { return valuesOf(e) }

// Entries implements Headers.Entries
func (e *Eager) Entries() [][2]string { return entriesOf(e) }

// MarshalJSON implements json.Marshaler
func (e *Eager) MarshalJSON() ([]byte, error) { return marshal(e) }
