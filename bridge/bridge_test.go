package bridge

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/unihttp/unihttp-go/fetch"
	"github.com/unihttp/unihttp-go/runtime/nethttp"
)

type pointerHandler struct{}

func (*pointerHandler) ServeFetch(fetch.Request) (*fetch.Response, error) {
	return fetch.Text(http.StatusOK, "fetch"), nil
}

func TestIdempotent(t *testing.T) {
	g := &pointerHandler{}
	if ToStandard(ToNative(g)) != fetch.Handler(g) {
		t.Error("expected ToStandard(ToNative(g)) == g")
	}
	if ToNative(g) != ToNative(g) {
		t.Error("expected the same native wrapper for the same handler")
	}

	mux := http.NewServeMux()
	if ToNative(ToStandard(mux)) != http.Handler(mux) {
		t.Error("expected ToNative(ToStandard(h)) == h")
	}
	if ToStandard(mux) != ToStandard(mux) {
		t.Error("expected the same fetch wrapper for the same handler")
	}
}

func newStandalone(t *testing.T, method, body string) fetch.Request {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req, err := fetch.NewRequest(context.Background(), method, "http://example.com/native?q=1", r, http.Header{"X-In": {"1"}})
	if err != nil {
		t.Fatal(err)
	}
	return req
}

func TestToStandard_synthesized(t *testing.T) {
	tests := []struct {
		name       string
		method     string
		body       string
		consume    bool
		handler    http.HandlerFunc
		wantStatus int
		wantHeader string
		wantBody   string
	}{
		{
			name:   "write header then body",
			method: http.MethodGet,
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("X-Out", r.Header.Get("X-In")+r.URL.Query().Get("q"))
				w.WriteHeader(http.StatusCreated)
				_, _ = io.WriteString(w, "hi")
				w.(http.Flusher).Flush()
				_, _ = io.WriteString(w, "hi")
			},
			wantStatus: http.StatusCreated,
			wantHeader: "11",
			wantBody:   "hihi",
		},
		{
			name:   "implicit completion",
			method: http.MethodGet,
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("X-Out", "done")
			},
			wantStatus: http.StatusOK,
			wantHeader: "done",
		},
		{
			name:   "piped body",
			method: http.MethodPost,
			body:   "ping",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = io.Copy(w, r.Body)
			},
			wantStatus: http.StatusOK,
			wantBody:   "ping",
		},
		{
			name:    "consumed body is replayed",
			method:  http.MethodPost,
			body:    "pong",
			consume: true,
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = io.Copy(w, r.Body)
			},
			wantStatus: http.StatusOK,
			wantBody:   "pong",
		},
	}

	for _, tt := range tests {
		tc := tt
		t.Run(tc.name, func(t *testing.T) {
			req := newStandalone(t, tc.method, tc.body)
			if tc.consume {
				if _, err := req.Bytes(); err != nil {
					t.Fatal(err)
				}
			}

			resp, err := ToStandard(tc.handler).ServeFetch(req)
			if err != nil {
				t.Fatal(err)
			}
			if want, have := tc.wantStatus, resp.Status(); want != have {
				t.Errorf("unexpected status, want: %d, have: %d", want, have)
			}
			if want, have := tc.wantHeader, resp.Headers().Get("x-out"); want != have {
				t.Errorf("unexpected header, want: %q, have: %q", want, have)
			}
			body, err := resp.Text()
			if err != nil {
				t.Fatal(err)
			}
			if want, have := tc.wantBody, body; want != have {
				t.Errorf("unexpected body, want: %q, have: %q", want, have)
			}
		})
	}
}

func TestToStandard_panic(t *testing.T) {
	t.Run("before commit", func(t *testing.T) {
		h := http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
			panic("boom")
		})
		_, err := ToStandard(h).ServeFetch(newStandalone(t, http.MethodGet, ""))

		var perr *fetch.PanicError
		if !errors.As(err, &perr) {
			t.Fatalf("expected *fetch.PanicError, have: %v", err)
		}
		if want, have := "boom", perr.Value; want != have {
			t.Errorf("unexpected panic value, want: %v, have: %v", want, have)
		}
	})

	t.Run("after commit", func(t *testing.T) {
		h := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusAccepted)
			panic("late")
		})
		resp, err := ToStandard(h).ServeFetch(newStandalone(t, http.MethodGet, ""))
		if err != nil {
			t.Fatal(err)
		}
		if want, have := http.StatusAccepted, resp.Status(); want != have {
			t.Errorf("unexpected status, want: %d, have: %d", want, have)
		}

		var perr *fetch.PanicError
		if _, err = resp.Bytes(); !errors.As(err, &perr) {
			t.Errorf("expected the body to fail with *fetch.PanicError, have: %v", err)
		}
	})
}

func TestToStandard_droppedResponse(t *testing.T) {
	done := make(chan error, 1)
	h := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, err := w.Write([]byte("never read"))
		done <- err
	})

	func() {
		resp, err := ToStandard(h).ServeFetch(newStandalone(t, http.MethodGet, ""))
		if err != nil {
			t.Fatal(err)
		}
		if want, have := http.StatusOK, resp.Status(); want != have {
			t.Errorf("unexpected status, want: %d, have: %d", want, have)
		}
	}()

	deadline := time.After(5 * time.Second)
	for {
		runtime.GC()
		select {
		case err := <-done:
			if !errors.Is(err, errDropped) {
				t.Errorf("expected errDropped, have: %v", err)
			}
			return
		case <-deadline:
			t.Fatal("handler still blocked on a dropped response")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestToStandard_nativePair(t *testing.T) {
	native := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Native", "1")
		w.WriteHeader(http.StatusAccepted)
		_, _ = io.WriteString(w, "native "+r.URL.Path)
	})

	var handled bool
	var status int
	h := fetch.Compose(ToStandard(native), []fetch.Middleware{
		func(req fetch.Request, next fetch.Next) (*fetch.Response, error) {
			resp, err := next(req)
			if err == nil {
				handled, status = resp.IsHandled(), resp.Status()
			}
			return resp, err
		},
	})
	ts := httptest.NewServer(nethttp.Handler(h))
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/a")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	if want, have := http.StatusAccepted, resp.StatusCode; want != have {
		t.Errorf("unexpected status, want: %d, have: %d", want, have)
	}
	if want, have := "native /a", string(body); want != have {
		t.Errorf("unexpected body, want: %q, have: %q", want, have)
	}
	if want, have := "1", resp.Header.Get("X-Native"); want != have {
		t.Errorf("unexpected header, want: %q, have: %q", want, have)
	}
	if !handled {
		t.Error("expected a handled response")
	}
	if want, have := http.StatusAccepted, status; want != have {
		t.Errorf("unexpected handled status, want: %d, have: %d", want, have)
	}
}

func TestToStandard_nativePairPanic(t *testing.T) {
	native := http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	})
	ts := httptest.NewServer(nethttp.Handler(ToStandard(native)))
	defer ts.Close()

	resp, err := http.Get(ts.URL)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if want, have := http.StatusInternalServerError, resp.StatusCode; want != have {
		t.Errorf("unexpected status, want: %d, have: %d", want, have)
	}
}

func TestToNative(t *testing.T) {
	ts := httptest.NewServer(ToNative(&pointerHandler{}))
	defer ts.Close()

	resp, err := http.Get(ts.URL)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if want, have := "fetch", string(body); want != have {
		t.Errorf("unexpected body, want: %q, have: %q", want, have)
	}
}
