package fetch

import (
	"context"
	"io"
	"net"
	"net/http"
	"sync"

	"github.com/unihttp/unihttp-go/fasturl"
	"github.com/unihttp/unihttp-go/headers"
)

// standardRequest adapts an existing *http.Request which isn't tied to a
// response writer. It backs requests synthesized by bridges, tests and the
// worker runtime's local front door.
type standardRequest struct {
	*BodyState
	*Delegate

	r       *http.Request
	url     *fasturl.URL
	headers headers.Headers
	state   *signalState
	runtime *Runtime
}

// signalState is shared by a request and its clones.
type signalState struct {
	mu        sync.Mutex
	ctl       *AbortController
	completed bool
}

var _ Request = (*standardRequest)(nil)

// NewRequest returns a standalone request. url must be absolute. A nil ctx
// means context.Background.
func NewRequest(ctx context.Context, method, url string, body io.Reader, header http.Header) (Request, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	r, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, err
	}
	for k, vs := range header {
		for _, v := range vs {
			r.Header.Add(k, v)
		}
	}
	return FromStandard(r), nil
}

// FromStandard adapts r. The returned request owns r.Body.
//
// The signal of the request follows the context of r until Complete is
// called, so whoever serves a standalone request under a cancelable context
// completes it once the response was delivered.
func FromStandard(r *http.Request) Request {
	sr := &standardRequest{r: r, state: &signalState{}, runtime: &Runtime{Name: RuntimeStandalone, Native: r}}
	sr.BodyState = NewBody(r.Method, func() string { return r.Header.Get("Content-Type") }, func() io.ReadCloser {
		return r.Body
	})
	sr.Delegate = &Delegate{New: func() (*http.Request, error) { return r, nil }}
	return sr
}

// URLOf returns the lazily parsed absolute URL of a server or client request.
func URLOf(r *http.Request) *fasturl.URL {
	if r.URL != nil && r.URL.IsAbs() {
		return fasturl.Parse(r.URL.String())
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	host := r.Host
	if host == "" && r.URL != nil {
		host = r.URL.Host
	}
	path, search := "/", ""
	if r.URL != nil {
		path = r.URL.EscapedPath()
		if path == "" {
			path = "/"
		}
		if r.URL.RawQuery != "" {
			search = "?" + r.URL.RawQuery
		}
	}
	return fasturl.FromParts(scheme, host, path, search)
}

// IPOf returns the host part of addr, or addr when it has no port.
func IPOf(addr string) string {
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}

// Method implements the same method as documented on Request.
func (s *standardRequest) Method() string {
	return s.r.Method
}

// URL implements the same method as documented on Request.
func (s *standardRequest) URL() string {
	return s.ParsedURL().Href()
}

// ParsedURL implements the same method as documented on Request.
func (s *standardRequest) ParsedURL() *fasturl.URL {
	if s.url == nil {
		s.url = URLOf(s.r)
	}
	return s.url
}

// Headers implements the same method as documented on Request.
func (s *standardRequest) Headers() headers.Headers {
	if s.headers == nil {
		s.headers = headers.Native(s.r.Header)
	}
	return s.headers
}

// Context implements the same method as documented on Request.
func (s *standardRequest) Context() context.Context {
	return s.r.Context()
}

// Signal implements the same method as documented on Request.
func (s *standardRequest) Signal() *AbortSignal {
	st := s.state
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.ctl == nil {
		st.ctl = NewAbortController()
		if st.completed {
			st.ctl.Complete()
		} else {
			ctx := s.r.Context()
			st.ctl.Follow(ctx.Done(), func() error { return context.Cause(ctx) })
		}
	}
	return st.ctl.Signal()
}

func (s *standardRequest) complete() {
	st := s.state
	st.mu.Lock()
	defer st.mu.Unlock()
	st.completed = true
	if st.ctl != nil {
		st.ctl.Complete()
	}
}

// Complete stops the signal of a standalone request, or of a rewrite of one,
// from firing. Requests of a runtime are completed by that runtime and are
// left alone.
func Complete(req Request) {
	for {
		switch r := req.(type) {
		case *standardRequest:
			r.complete()
			return
		case *rewritten:
			req = r.Request
		default:
			return
		}
	}
}

// IP implements the same method as documented on Request.
func (s *standardRequest) IP() string {
	return IPOf(s.r.RemoteAddr)
}

// Clone implements the same method as documented on Request.
func (s *standardRequest) Clone() Request {
	c := *s
	c.url, c.headers = nil, nil
	return &c
}

// Runtime implements the same method as documented on Request.
func (s *standardRequest) Runtime() *Runtime {
	return s.runtime
}

// WaitUntil implements the same method as documented on Request.
func (s *standardRequest) WaitUntil(fn func(ctx context.Context) error) {
	ctx := context.WithoutCancel(s.r.Context())
	go func() { _ = fn(ctx) }()
}
