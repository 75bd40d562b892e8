// Package fetchtest implements support for testing implementations of
// headers.Headers. This is inspired by fstest.TestFS.
package fetchtest

import (
	"errors"
	"fmt"
	"reflect"

	"github.com/unihttp/unihttp-go/headers"
)

// Fixture is the header set every view under test is seeded with.
//
// Names use mixed case on purpose. Views must compare them
// case-insensitively.
var Fixture = [][2]string{
	{"Content-Type", "text/plain"},
	{"X-Multi", "a"},
	{"Set-Cookie", "a=1"},
	{"x-multi", "b"},
	{"Set-Cookie", "b=2, c=3"},
}

// TestHeaders tests a headers.Headers view by checking lookups, enumeration
// and mutation.
//
// newHeaders must return a fresh view containing exactly Fixture. When
// mutable is false, mutations must fail with headers.ErrImmutable.
//
// Here's an example for the net/http view:
//
//	newHeaders := func() headers.Headers {
//		h := http.Header{}
//		for _, e := range fetchtest.Fixture {
//			h.Add(e[0], e[1])
//		}
//		return headers.Native(h)
//	}
//
//	if err := fetchtest.TestHeaders(newHeaders, true); err != nil {
//		t.Fatal(err)
//	}
func TestHeaders(newHeaders func() headers.Headers, mutable bool) error {
	t := headersTester{newHeaders: newHeaders}

	t.checkGet()
	t.checkSetCookie()
	t.checkEnumeration()
	if mutable {
		t.checkMutation()
	} else {
		t.checkImmutable()
	}

	if len(t.errText) == 0 {
		return nil
	}
	return errors.New("TestHeaders found errors:\n" + string(t.errText))
}

// A headersTester holds state for running the test.
type headersTester struct {
	newHeaders func() headers.Headers
	errText    []byte
}

// errorf adds an error line to errText.
func (t *headersTester) errorf(format string, args ...any) {
	if len(t.errText) > 0 {
		t.errText = append(t.errText, '\n')
	}
	t.errText = append(t.errText, fmt.Sprintf(format, args...)...)
}

func (t *headersTester) checkGet() {
	h := t.newHeaders()

	tests := []struct {
		name string
		want string
	}{
		{name: "content-type", want: "text/plain"},
		{name: "CONTENT-TYPE", want: "text/plain"},
		{name: "X-Multi", want: "a, b"},
		{name: "x-missing", want: ""},
	}

	for _, tt := range tests {
		if have := h.Get(tt.name); tt.want != have {
			t.errorf("Get(%q): unexpected, want: %q, have: %q", tt.name, tt.want, have)
		}
		if want, have := tt.want != "", h.Has(tt.name); want != have {
			t.errorf("Has(%q): unexpected, want: %v, have: %v", tt.name, want, have)
		}
	}
}

func (t *headersTester) checkSetCookie() {
	h := t.newHeaders()

	if want, have := "a=1", h.Get("Set-Cookie"); want != have {
		t.errorf("Get(set-cookie): unexpected, want: %q, have: %q", want, have)
	}
	if want, have := []string{"a=1", "b=2, c=3"}, h.GetSetCookie(); !reflect.DeepEqual(want, have) {
		t.errorf("GetSetCookie: unexpected, want: %q, have: %q", want, have)
	}
}

func (t *headersTester) checkEnumeration() {
	h := t.newHeaders()

	want := [][2]string{
		{"content-type", "text/plain"},
		{"set-cookie", "a=1"},
		{"set-cookie", "b=2, c=3"},
		{"x-multi", "a, b"},
	}
	if have := h.Entries(); !reflect.DeepEqual(want, have) {
		t.errorf("Entries: unexpected, want: %q, have: %q", want, have)
	}
	if want, have := []string{"content-type", "set-cookie", "set-cookie", "x-multi"}, h.Keys(); !reflect.DeepEqual(want, have) {
		t.errorf("Keys: unexpected, want: %q, have: %q", want, have)
	}
	if want, have := []string{"text/plain", "a=1", "b=2, c=3", "a, b"}, h.Values(); !reflect.DeepEqual(want, have) {
		t.errorf("Values: unexpected, want: %q, have: %q", want, have)
	}

	var visited int
	h.Range(func(string, string) bool {
		visited++
		return false
	})
	if want, have := 1, visited; want != have {
		t.errorf("Range: expected stop after false, want: %d, have: %d", want, have)
	}

	b, err := h.MarshalJSON()
	if err != nil {
		t.errorf("MarshalJSON: %v", err)
	} else if want, have := `{"content-type":"text/plain","set-cookie":["a=1","b=2, c=3"],"x-multi":"a, b"}`, string(b); want != have {
		t.errorf("MarshalJSON: unexpected, want: %s, have: %s", want, have)
	}
}

func (t *headersTester) checkMutation() {
	h := t.newHeaders()

	if err := h.Set("X-Multi", "c"); err != nil {
		t.errorf("Set: unexpected error: %v", err)
	}
	if want, have := "c", h.Get("x-multi"); want != have {
		t.errorf("Set: unexpected, want: %q, have: %q", want, have)
	}

	if err := h.Append("x-new", "1"); err != nil {
		t.errorf("Append: unexpected error: %v", err)
	}
	if err := h.Append("X-New", "2"); err != nil {
		t.errorf("Append: unexpected error: %v", err)
	}
	if want, have := "1, 2", h.Get("x-new"); want != have {
		t.errorf("Append: unexpected, want: %q, have: %q", want, have)
	}

	if err := h.Append("set-cookie", "d=4"); err != nil {
		t.errorf("Append(set-cookie): unexpected error: %v", err)
	}
	if want, have := 3, len(h.GetSetCookie()); want != have {
		t.errorf("Append(set-cookie): unexpected count, want: %d, have: %d", want, have)
	}

	if err := h.Delete("CONTENT-TYPE"); err != nil {
		t.errorf("Delete: unexpected error: %v", err)
	}
	if h.Has("content-type") {
		t.errorf("Delete: expected content-type to be removed")
	}
	if err := h.Delete("x-missing"); err != nil {
		t.errorf("Delete(missing): unexpected error: %v", err)
	}

	if err := h.Set("bad name", "x"); !errors.Is(err, headers.ErrInvalidName) {
		t.errorf("Set(invalid): expected ErrInvalidName, have: %v", err)
	}
}

func (t *headersTester) checkImmutable() {
	h := t.newHeaders()

	for op, err := range map[string]error{
		"Set":    h.Set("x-multi", "c"),
		"Append": h.Append("x-new", "1"),
		"Delete": h.Delete("content-type"),
	} {
		if !errors.Is(err, headers.ErrImmutable) {
			t.errorf("%s: expected ErrImmutable, have: %v", op, err)
		}
		var mErr *headers.MutationError
		if !errors.As(err, &mErr) {
			t.errorf("%s: expected *MutationError, have: %T", op, err)
		}
	}

	if want, have := "a, b", h.Get("x-multi"); want != have {
		t.errorf("immutable view changed, want: %q, have: %q", want, have)
	}
	if !h.Has("content-type") {
		t.errorf("immutable view lost content-type")
	}
}
