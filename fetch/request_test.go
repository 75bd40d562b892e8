package fetch

import (
	"bufio"
	"io"
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/unihttp/unihttp-go/headers"
)

func TestNewRequest(t *testing.T) {
	req, err := NewRequest(context.Background(), http.MethodPost, "http://example.com/p?q=1",
		strings.NewReader("body"), http.Header{"X-Foo": {"bar"}, "User-Agent": {"ua"}})
	if err != nil {
		t.Fatal(err)
	}

	if want, have := "POST", req.Method(); want != have {
		t.Errorf("unexpected method, want: %q, have: %q", want, have)
	}
	if want, have := "/p", req.ParsedURL().Pathname(); want != have {
		t.Errorf("unexpected pathname, want: %q, have: %q", want, have)
	}
	if want, have := "bar", req.Headers().Get("x-foo"); want != have {
		t.Errorf("unexpected header, want: %q, have: %q", want, have)
	}
	if want, have := "ua", req.UserAgent(); want != have {
		t.Errorf("unexpected user agent, want: %q, have: %q", want, have)
	}
	if want, have := RuntimeStandalone, req.Runtime().Name; want != have {
		t.Errorf("unexpected runtime, want: %q, have: %q", want, have)
	}
	text, err := req.Text()
	if err != nil {
		t.Fatal(err)
	}
	if want, have := "body", text; want != have {
		t.Errorf("unexpected body, want: %q, have: %q", want, have)
	}
}

func TestFromStandard_body(t *testing.T) {
	r, err := http.NewRequest(http.MethodPut, "http://example.com/", strings.NewReader("raw"))
	if err != nil {
		t.Fatal(err)
	}
	var req Request = FromStandard(r)

	b, err := io.ReadAll(req.Body())
	if err != nil {
		t.Fatal(err)
	}
	if want, have := "raw", string(b); want != have {
		t.Errorf("unexpected body, want: %q, have: %q", want, have)
	}
	if !req.BodyUsed() {
		t.Error("expected body to be used")
	}
	if _, err := req.Text(); !errors.Is(err, ErrBodyUsed) {
		t.Errorf("expected ErrBodyUsed, have: %v", err)
	}
}

func TestComplete(t *testing.T) {
	tests := []struct {
		name     string
		complete bool
		rewrite  bool
		aborted  bool
	}{
		{name: "not completed", aborted: true},
		{name: "completed", complete: true},
		{name: "completed through a rewrite", complete: true, rewrite: true},
	}

	for _, tt := range tests {
		tc := tt
		t.Run(tc.name, func(t *testing.T) {
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			req, err := NewRequest(ctx, http.MethodGet, "http://example.com/", nil, nil)
			if err != nil {
				t.Fatal(err)
			}
			signal := req.Clone().Signal()

			if tc.complete {
				if tc.rewrite {
					Complete(Rewrite(req, RewriteOptions{Method: http.MethodHead}))
				} else {
					Complete(req)
				}
			}
			cancel()

			select {
			case <-signal.Done():
			case <-time.After(50 * time.Millisecond):
			}
			if want, have := tc.aborted, signal.Aborted(); want != have {
				t.Errorf("unexpected aborted, want: %v, have: %v", want, have)
			}
		})
	}
}

func TestURLOf(t *testing.T) {
	r, err := http.ReadRequest(bufio.NewReader(strings.NewReader("GET /a%20b?x=1 HTTP/1.1\r\nHost: example.com\r\n\r\n")))
	if err != nil {
		t.Fatal(err)
	}

	u := URLOf(r)
	if want, have := "http://example.com/a%20b?x=1", u.Href(); want != have {
		t.Errorf("unexpected href, want: %q, have: %q", want, have)
	}
}

func TestIPOf(t *testing.T) {
	tests := map[string]string{
		"1.2.3.4:5678": "1.2.3.4",
		"[::1]:80":     "::1",
		"1.2.3.4":      "1.2.3.4",
		"":             "",
	}
	for addr, want := range tests {
		if have := IPOf(addr); want != have {
			t.Errorf("IPOf(%q): want: %q, have: %q", addr, want, have)
		}
	}
}

func TestRewrite(t *testing.T) {
	base, err := NewRequest(context.Background(), http.MethodGet, "http://host/a", nil, http.Header{"X-A": {"1"}})
	if err != nil {
		t.Fatal(err)
	}

	h := headers.Clone(base.Headers())
	_ = h.Set("x-a", "2")
	rw := Rewrite(base, RewriteOptions{
		Method:  http.MethodPost,
		URL:     "http://host/b?c=d",
		Headers: h,
		Body:    []byte("new"),
		SetBody: true,
	})

	if want, have := "POST", rw.Method(); want != have {
		t.Errorf("unexpected method, want: %q, have: %q", want, have)
	}
	if want, have := "/b", rw.ParsedURL().Pathname(); want != have {
		t.Errorf("unexpected pathname, want: %q, have: %q", want, have)
	}
	if want, have := "2", rw.Headers().Get("X-A"); want != have {
		t.Errorf("unexpected header, want: %q, have: %q", want, have)
	}
	if want, have := "1", base.Headers().Get("X-A"); want != have {
		t.Errorf("base header changed, want: %q, have: %q", want, have)
	}
	if rw.Runtime() != base.Runtime() {
		t.Error("expected runtime to be delegated")
	}

	std, err := rw.Standard()
	if err != nil {
		t.Fatal(err)
	}
	if want, have := "POST", std.Method; want != have {
		t.Errorf("unexpected standard method, want: %q, have: %q", want, have)
	}
	if want, have := "/b", std.URL.Path; want != have {
		t.Errorf("unexpected standard path, want: %q, have: %q", want, have)
	}
	if want, have := "2", std.Header.Get("X-A"); want != have {
		t.Errorf("unexpected standard header, want: %q, have: %q", want, have)
	}

	text, err := rw.Text()
	if err != nil {
		t.Fatal(err)
	}
	if want, have := "new", text; want != have {
		t.Errorf("unexpected body, want: %q, have: %q", want, have)
	}
}

func TestRewrite_contextOnly(t *testing.T) {
	base, err := NewRequest(context.Background(), http.MethodPost, "http://host/", strings.NewReader("x"), nil)
	if err != nil {
		t.Fatal(err)
	}

	type key struct{}
	ctx := context.WithValue(context.Background(), key{}, "v")
	rw := Rewrite(base, RewriteOptions{Context: ctx})

	if want, have := "v", rw.Context().Value(key{}); want != have {
		t.Errorf("unexpected context value, want: %v, have: %v", want, have)
	}
	if _, err := rw.Text(); err != nil {
		t.Fatal(err)
	}
	if err := base.JSON(new(any)); !errors.Is(err, ErrBodyUsed) {
		t.Errorf("expected body state to be shared, have: %v", err)
	}
}

func TestDelegate_noNative(t *testing.T) {
	var d Delegate
	if _, err := d.Standard(); !errors.Is(err, ErrNoNativeContext) {
		t.Errorf("expected ErrNoNativeContext, have: %v", err)
	}
	if d.UserAgent() != "" {
		t.Error("expected empty user agent")
	}
}
