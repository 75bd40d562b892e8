package fetch

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"reflect"
	"strings"
	"testing"
)

func TestResponse_lazyGetters(t *testing.T) {
	r := NewResponse("hi", &ResponseInit{Status: http.StatusCreated})

	if want, have := http.StatusCreated, r.Status(); want != have {
		t.Errorf("unexpected status, want: %d, have: %d", want, have)
	}
	if want, have := "Created", r.StatusText(); want != have {
		t.Errorf("unexpected status text, want: %q, have: %q", want, have)
	}
	if !r.OK() {
		t.Error("expected OK")
	}
	if r.state != stateRaw {
		t.Error("getters must not build the response")
	}
}

func TestResponse_Extract(t *testing.T) {
	tests := []struct {
		name        string
		body        any
		header      http.Header
		wantHeaders [][2]string
		wantBody    any
		wantLength  int64
	}{
		{
			name: "string infers type and length",
			body: "hello",
			wantHeaders: [][2]string{
				{"content-length", "5"},
				{"content-type", "text/plain; charset=UTF-8"},
			},
			wantBody:   "hello",
			wantLength: 5,
		},
		{
			name:   "explicit content-type wins",
			body:   "<p>",
			header: http.Header{"Content-Type": {"text/html"}},
			wantHeaders: [][2]string{
				{"content-length", "3"},
				{"content-type", "text/html"},
			},
			wantBody:   "<p>",
			wantLength: 3,
		},
		{
			name:        "bytes infer length only",
			body:        []byte{1, 2, 3},
			wantHeaders: [][2]string{{"content-length", "3"}},
			wantBody:    []byte{1, 2, 3},
			wantLength:  3,
		},
		{
			name: "blob",
			body: NewBlob([]byte("{}"), "application/json"),
			wantHeaders: [][2]string{
				{"content-length", "2"},
				{"content-type", "application/json"},
			},
			wantBody:   []byte("{}"),
			wantLength: 2,
		},
		{
			name: "form",
			body: url.Values{"a": {"1"}},
			wantHeaders: [][2]string{
				{"content-length", "3"},
				{"content-type", "application/x-www-form-urlencoded;charset=UTF-8"},
			},
			wantBody:   "a=1",
			wantLength: 3,
		},
		{
			name:       "nil",
			wantLength: 0,
		},
	}

	for _, tt := range tests {
		tc := tt
		t.Run(tc.name, func(t *testing.T) {
			x, err := NewResponse(tc.body, &ResponseInit{Header: tc.header}).Extract()
			if err != nil {
				t.Fatal(err)
			}
			if want, have := tc.wantHeaders, x.Headers; !reflect.DeepEqual(want, have) {
				t.Errorf("unexpected headers, want: %q, have: %q", want, have)
			}
			if want, have := tc.wantBody, x.Body; !reflect.DeepEqual(want, have) {
				t.Errorf("unexpected body, want: %v, have: %v", want, have)
			}
			if want, have := tc.wantLength, x.ContentLength; want != have {
				t.Errorf("unexpected length, want: %d, have: %d", want, have)
			}
		})
	}
}

func TestResponse_ExtractReader(t *testing.T) {
	src := io.NopCloser(strings.NewReader("stream"))
	x, err := NewResponse(src, nil).Extract()
	if err != nil {
		t.Fatal(err)
	}

	if x.Body != src {
		t.Errorf("expected reader to pass through")
	}
	if want, have := int64(-1), x.ContentLength; want != have {
		t.Errorf("unexpected length, want: %d, have: %d", want, have)
	}
	if len(x.Headers) != 0 {
		t.Errorf("unexpected headers: %q", x.Headers)
	}
}

func TestResponse_ExtractTwice(t *testing.T) {
	r := NewResponse("x", nil)
	if _, err := r.Extract(); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Extract(); !errors.Is(err, ErrResponseExtracted) {
		t.Errorf("expected ErrResponseExtracted, have: %v", err)
	}
	if r.body != nil || r.header != nil {
		t.Error("expected state to be released")
	}
}

func TestResponse_headersMaterializeOnce(t *testing.T) {
	r := NewResponse("x", &ResponseInit{Header: http.Header{"X-A": {"1"}}})

	h := r.Headers()
	if r.state != stateBuilt {
		t.Fatal("expected built state")
	}
	if err := h.Append("x-a", "2"); err != nil {
		t.Fatal(err)
	}
	if want, have := "1, 2", r.Headers().Get("X-A"); want != have {
		t.Errorf("unexpected header, want: %q, have: %q", want, have)
	}
	if want, have := contentTypeText, r.Headers().Get("content-type"); want != have {
		t.Errorf("unexpected content-type, want: %q, have: %q", want, have)
	}

	std, err := r.Standard()
	if err != nil {
		t.Fatal(err)
	}
	if want, have := []string{"1", "2"}, std.Header.Values("X-A"); !reflect.DeepEqual(want, have) {
		t.Errorf("standard headers diverged, want: %q, have: %q", want, have)
	}

	x, err := r.Extract()
	if err != nil {
		t.Fatal(err)
	}
	want := [][2]string{
		{"content-length", "1"},
		{"content-type", contentTypeText},
		{"x-a", "1, 2"},
	}
	if have := x.Headers; !reflect.DeepEqual(want, have) {
		t.Errorf("unexpected headers, want: %q, have: %q", want, have)
	}
}

func TestResponse_streamOutOfBand(t *testing.T) {
	var stream StreamFunc = func(w StreamWriter) error {
		if _, err := io.WriteString(w, "chunk"); err != nil {
			return err
		}
		return w.Flush()
	}
	r := NewResponse(stream, nil)

	std, err := r.Standard()
	if err != nil {
		t.Fatal(err)
	}
	if std.Body != http.NoBody {
		t.Errorf("expected standard body to be NoBody, have: %T", std.Body)
	}

	x, err := r.Extract()
	if err != nil {
		t.Fatal(err)
	}
	fn, ok := x.Body.(StreamFunc)
	if !ok {
		t.Fatalf("expected StreamFunc body, have: %T", x.Body)
	}
	var buf bufferWriter
	if err := fn(&buf); err != nil {
		t.Fatal(err)
	}
	if want, have := "chunk", buf.String(); want != have {
		t.Errorf("unexpected stream, want: %q, have: %q", want, have)
	}
}

func TestResponse_TextBuffersReader(t *testing.T) {
	r := NewResponse(strings.NewReader("abc"), nil)

	text, err := r.Text()
	if err != nil {
		t.Fatal(err)
	}
	if want, have := "abc", text; want != have {
		t.Errorf("unexpected text, want: %q, have: %q", want, have)
	}

	x, err := r.Extract()
	if err != nil {
		t.Fatal(err)
	}
	if want, have := []byte("abc"), x.Body; !reflect.DeepEqual(want, have) {
		t.Errorf("unexpected body after Text, want: %v, have: %v", want, have)
	}
}

func TestJSONResponse(t *testing.T) {
	r, err := JSONResponse(map[string]string{"foo": "bar"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if want, have := "application/json", r.Headers().Get("content-type"); want != have {
		t.Errorf("unexpected content-type, want: %q, have: %q", want, have)
	}
	text, _ := r.Text()
	if want, have := `{"foo":"bar"}`, text; want != have {
		t.Errorf("unexpected body, want: %q, have: %q", want, have)
	}
}

func TestRedirect(t *testing.T) {
	r := Redirect("/next", 0)

	if want, have := http.StatusFound, r.Status(); want != have {
		t.Errorf("unexpected status, want: %d, have: %d", want, have)
	}
	if want, have := "/next", r.Headers().Get("location"); want != have {
		t.Errorf("unexpected location, want: %q, have: %q", want, have)
	}
}

func TestIsStandard(t *testing.T) {
	req, err := NewRequest(context.Background(), http.MethodGet, "http://host/", nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	std, _ := req.Standard()

	for _, v := range []any{req, std, NewResponse(nil, nil), &http.Response{}} {
		if !IsStandard(v) {
			t.Errorf("expected %T to be standard", v)
		}
	}
	if IsStandard("nope") {
		t.Error("expected string not to be standard")
	}
}
