package fetch

import (
	"bytes"
	"context"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"

	"github.com/unihttp/unihttp-go/fasturl"
	"github.com/unihttp/unihttp-go/headers"
)

// RewriteOptions lists the fields replaced by Rewrite. Zero fields are kept.
type RewriteOptions struct {
	Method  string
	URL     string
	Headers headers.Headers
	Context context.Context

	// Body replaces the body when SetBody is true.
	Body    []byte
	SetBody bool
}

// rewritten overlays replaced fields on a request and delegates the rest.
type rewritten struct {
	Request

	opts RewriteOptions
	url  *fasturl.URL
	body *BodyState
	std  *Delegate
}

var _ Request = (*rewritten)(nil)

// Rewrite returns a request that reports the replaced fields of opts and
// delegates everything else to req, including the runtime and its native
// objects. Headers are used as given, so callers usually pass a
// headers.Clone of the original.
func Rewrite(req Request, opts RewriteOptions) Request {
	rw := &rewritten{Request: req, opts: opts}
	if opts.URL != "" {
		rw.url = fasturl.Parse(opts.URL)
	}
	if opts.SetBody {
		data := opts.Body
		rw.body = NewBody(rw.Method(), func() string { return rw.Headers().Get("content-type") }, func() io.ReadCloser {
			return io.NopCloser(bytes.NewReader(data))
		})
	}
	rw.std = &Delegate{New: rw.newStandard}
	return rw
}

func (r *rewritten) newStandard() (*http.Request, error) {
	base, err := r.Request.Standard()
	if err != nil {
		return nil, err
	}
	std := base.Clone(r.Context())
	std.Method = r.Method()
	if r.url != nil {
		u, err := url.Parse(r.opts.URL)
		if err != nil {
			return nil, err
		}
		std.URL = u
		std.RequestURI = ""
		if u.Host != "" {
			std.Host = u.Host
		}
	}
	if r.opts.Headers != nil {
		std.Header = headers.Clone(r.opts.Headers).HTTP()
	}
	if r.body != nil {
		std.Body = r.body.Body()
		if std.Body == nil {
			std.Body = http.NoBody
		}
		std.ContentLength = int64(len(r.opts.Body))
	}
	return std, nil
}

// Method implements the same method as documented on Request.
func (r *rewritten) Method() string {
	if r.opts.Method != "" {
		return r.opts.Method
	}
	return r.Request.Method()
}

// URL implements the same method as documented on Request.
func (r *rewritten) URL() string {
	if r.url != nil {
		return r.url.Href()
	}
	return r.Request.URL()
}

// ParsedURL implements the same method as documented on Request.
func (r *rewritten) ParsedURL() *fasturl.URL {
	if r.url != nil {
		return r.url
	}
	return r.Request.ParsedURL()
}

// Headers implements the same method as documented on Request.
func (r *rewritten) Headers() headers.Headers {
	if r.opts.Headers != nil {
		return r.opts.Headers
	}
	return r.Request.Headers()
}

// Context implements the same method as documented on Request.
func (r *rewritten) Context() context.Context {
	if r.opts.Context != nil {
		return r.opts.Context
	}
	return r.Request.Context()
}

// Body implements the same method as documented on Request.
func (r *rewritten) Body() io.ReadCloser {
	if r.body != nil {
		return r.body.Body()
	}
	return r.Request.Body()
}

// BodyUsed implements the same method as documented on Request.
func (r *rewritten) BodyUsed() bool {
	if r.body != nil {
		return r.body.BodyUsed()
	}
	return r.Request.BodyUsed()
}

// Bytes implements the same method as documented on Request.
func (r *rewritten) Bytes() ([]byte, error) {
	if r.body != nil {
		return r.body.Bytes()
	}
	return r.Request.Bytes()
}

// Text implements the same method as documented on Request.
func (r *rewritten) Text() (string, error) {
	if r.body != nil {
		return r.body.Text()
	}
	return r.Request.Text()
}

// JSON implements the same method as documented on Request.
func (r *rewritten) JSON(v any) error {
	if r.body != nil {
		return r.body.JSON(v)
	}
	return r.Request.JSON(v)
}

// FormData implements the same method as documented on Request.
func (r *rewritten) FormData() (*multipart.Form, error) {
	if r.body != nil {
		return r.body.FormData()
	}
	return r.Request.FormData()
}

// Blob implements the same method as documented on Request.
func (r *rewritten) Blob() (*Blob, error) {
	if r.body != nil {
		return r.body.Blob()
	}
	return r.Request.Blob()
}

// Clone implements the same method as documented on Request.
func (r *rewritten) Clone() Request {
	opts := r.opts
	if opts.Headers != nil {
		opts.Headers = headers.Clone(opts.Headers)
	}
	c := Rewrite(r.Request.Clone(), opts).(*rewritten)
	c.body = r.body
	return c
}

// Standard implements the same method as documented on Request.
func (r *rewritten) Standard() (*http.Request, error) { return r.std.Standard() }

// Proto implements the same method as documented on Request.
func (r *rewritten) Proto() string { return r.std.Proto() }

// Cookies implements the same method as documented on Request.
func (r *rewritten) Cookies() []*http.Cookie { return r.std.Cookies() }

// Referer implements the same method as documented on Request.
func (r *rewritten) Referer() string { return r.std.Referer() }

// UserAgent implements the same method as documented on Request.
func (r *rewritten) UserAgent() string { return r.std.UserAgent() }

// BasicAuth implements the same method as documented on Request.
func (r *rewritten) BasicAuth() (string, string, bool) { return r.std.BasicAuth() }

// Unwrap returns the request that r overlays.
func (r *rewritten) Unwrap() Request {
	return r.Request
}
