package headers_test

import (
	"errors"
	"net/http"
	"reflect"
	"strings"
	"testing"

	"github.com/unihttp/unihttp-go/headers"
	"github.com/unihttp/unihttp-go/testing/fetchtest"
)

func fixturePairs() []string {
	var raw []string
	for _, e := range fetchtest.Fixture {
		raw = append(raw, e[0], e[1])
	}
	return raw
}

func TestHeaders_conformance(t *testing.T) {
	tests := []struct {
		name       string
		newHeaders func() headers.Headers
		mutable    bool
	}{
		{
			name: "Store",
			newHeaders: func() headers.Headers {
				s := headers.New()
				for _, e := range fetchtest.Fixture {
					_ = s.Append(e[0], e[1])
				}
				return s
			},
			mutable: true,
		},
		{
			name: "Native",
			newHeaders: func() headers.Headers {
				h := http.Header{}
				for _, e := range fetchtest.Fixture {
					h.Add(e[0], e[1])
				}
				return headers.Native(h)
			},
			mutable: true,
		},
		{
			name: "Pairs",
			newHeaders: func() headers.Headers {
				return headers.Pairs(fixturePairs())
			},
			mutable: true,
		},
		{
			name: "Accessor",
			newHeaders: func() headers.Headers {
				return headers.Accessor(fixtureLookup, fixtureVisit)
			},
		},
		{
			name: "Eager",
			newHeaders: func() headers.Headers {
				return headers.NewEager(headers.Pairs(fixturePairs()), func(*headers.Store) {})
			},
			mutable: true,
		},
	}

	for _, tt := range tests {
		tc := tt
		t.Run(tc.name, func(t *testing.T) {
			if err := fetchtest.TestHeaders(tc.newHeaders, tc.mutable); err != nil {
				t.Fatal(err)
			}
		})
	}
}

func fixtureLookup(name string) (values []string) {
	for _, e := range fetchtest.Fixture {
		if strings.EqualFold(e[0], name) {
			values = append(values, e[1])
		}
	}
	return
}

func fixtureVisit(fn func(name, value string)) {
	for _, e := range fetchtest.Fixture {
		fn(e[0], e[1])
	}
}

func TestNative_writesThrough(t *testing.T) {
	native := http.Header{}
	h := headers.Native(native)

	if err := h.Set("x-foo", "bar"); err != nil {
		t.Fatal(err)
	}
	if want, have := []string{"bar"}, native["X-Foo"]; !reflect.DeepEqual(want, have) {
		t.Errorf("unexpected native value, want: %q, have: %q", want, have)
	}

	native.Add("X-Foo", "baz")
	if want, have := "bar, baz", h.Get("X-FOO"); want != have {
		t.Errorf("unexpected value, want: %q, have: %q", want, have)
	}
}

func TestPairs_materializesLazily(t *testing.T) {
	h := headers.Pairs(fixturePairs())

	_ = h.Get("content-type")
	_ = h.Has("x-multi")
	_ = h.GetSetCookie()
	if headers.Materialized(h) {
		t.Fatal("lookups should not materialize")
	}

	_ = h.Entries()
	if !headers.Materialized(h) {
		t.Fatal("enumeration should materialize")
	}

	h = headers.Pairs(fixturePairs())
	if err := h.Delete("x-multi"); err != nil {
		t.Fatal(err)
	}
	if !headers.Materialized(h) {
		t.Fatal("mutation should materialize")
	}
	if h.Has("x-multi") {
		t.Error("expected x-multi to be deleted")
	}
}

func TestPairs_oddLength(t *testing.T) {
	h := headers.Pairs([]string{"a", "1", "dangling"})

	if want, have := []string{"a"}, h.Keys(); !reflect.DeepEqual(want, have) {
		t.Errorf("unexpected keys, want: %q, have: %q", want, have)
	}
}

func TestEager_appliesEveryMutation(t *testing.T) {
	var applied []http.Header
	h := headers.NewEager(nil, func(s *headers.Store) {
		applied = append(applied, s.HTTP())
	})

	if len(applied) != 0 {
		t.Fatal("apply called before mutation")
	}

	_ = h.Set("content-type", "text/html")
	_ = h.Append("set-cookie", "a=1")
	_ = h.Append("set-cookie", "b=2")
	_ = h.Delete("content-type")

	if want, have := 4, len(applied); want != have {
		t.Fatalf("unexpected apply count, want: %d, have: %d", want, have)
	}

	want := http.Header{"Set-Cookie": {"a=1", "b=2"}}
	if have := applied[3]; !reflect.DeepEqual(want, have) {
		t.Errorf("unexpected full set, want: %v, have: %v", want, have)
	}

	if err := h.Set("", "x"); !errors.Is(err, headers.ErrInvalidName) {
		t.Errorf("expected ErrInvalidName, have: %v", err)
	}
	if want, have := 4, len(applied); want != have {
		t.Errorf("apply called on rejected mutation, want: %d, have: %d", want, have)
	}
}

func TestClone(t *testing.T) {
	orig := headers.New()
	_ = orig.Append("a", "1")
	_ = orig.Append("set-cookie", "x=1")
	_ = orig.Append("set-cookie", "y=2")

	c := headers.Clone(orig)
	_ = c.Set("a", "2")

	if want, have := "1", orig.Get("a"); want != have {
		t.Errorf("clone shares state, want: %q, have: %q", want, have)
	}
	if want, have := []string{"x=1", "y=2"}, c.GetSetCookie(); !reflect.DeepEqual(want, have) {
		t.Errorf("unexpected cookies, want: %q, have: %q", want, have)
	}

	if want, have := 0, headers.Clone(nil).Len(); want != have {
		t.Errorf("unexpected len, want: %d, have: %d", want, have)
	}
}

func TestMutationError(t *testing.T) {
	h := headers.Accessor(fixtureLookup, fixtureVisit)

	err := h.Set("X-Foo", "bar")
	if want, have := `headers: can't set "x-foo": request headers are immutable`, err.Error(); want != have {
		t.Errorf("unexpected message, want: %q, have: %q", want, have)
	}
}
