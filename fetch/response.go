package fetch

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/unihttp/unihttp-go/headers"
)

const (
	contentTypeText = "text/plain; charset=UTF-8"
	contentTypeForm = "application/x-www-form-urlencoded;charset=UTF-8"
	contentTypeJSON = "application/json"
)

// StreamWriter is the native writer given to a StreamFunc.
type StreamWriter interface {
	io.Writer

	// Flush sends buffered bytes to the client.
	Flush() error
}

// StreamFunc is a body produced by writing directly to the native response.
// It is kept out of the standard response and only run when the response is
// emitted.
type StreamFunc func(w StreamWriter) error

// ResponseInit holds the optional fields of NewResponse.
type ResponseInit struct {
	// Status defaults to 200.
	Status int

	// StatusText defaults to the standard text of Status.
	StatusText string

	Header http.Header
}

type responseState uint8

const (
	stateRaw responseState = iota
	stateBuilt
	stateExtracted
)

// Response is a fetch response that defers building its headers and standard
// representation until they are read.
//
// A Response moves from raw to built (Headers or Standard was called) and
// from either to extracted (Extract was called). It never goes back.
//
// Supported bodies are nil, string, []byte, *Blob, url.Values, io.Reader and
// StreamFunc.
type Response struct {
	state      responseState
	status     int
	statusText string
	handled    bool

	// raw
	init http.Header
	body any

	// out-of-band native stream
	stream StreamFunc

	// built
	header http.Header
	view   headers.Headers
	std    *http.Response
}

// NewResponse returns a response over body. init may be nil.
func NewResponse(body any, init *ResponseInit) *Response {
	r := &Response{status: http.StatusOK}
	if init != nil {
		if init.Status != 0 {
			r.status = init.Status
		}
		r.statusText = init.StatusText
		r.init = init.Header
	}
	if fn, ok := body.(StreamFunc); ok {
		r.stream = fn
	} else {
		r.body = body
	}
	return r
}

// Text returns a text/plain response.
func Text(status int, text string) *Response {
	return NewResponse(text, &ResponseInit{Status: status})
}

// JSONResponse returns a response with v encoded as JSON.
func JSONResponse(v any, init *ResponseInit) (*Response, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	i := ResponseInit{}
	if init != nil {
		i = *init
	}
	h := i.Header.Clone()
	if h == nil {
		h = http.Header{}
	}
	if h.Get("Content-Type") == "" {
		h.Set("Content-Type", contentTypeJSON)
	}
	i.Header = h
	return NewResponse(data, &i), nil
}

// Redirect returns a redirect to location. status defaults to 302.
func Redirect(location string, status int) *Response {
	if status == 0 {
		status = http.StatusFound
	}
	return NewResponse(nil, &ResponseInit{Status: status, Header: http.Header{"Location": {location}}})
}

// Handled returns a marker response for a request whose response was already
// written to the native writer. Runtimes don't emit it again.
func Handled(status int) *Response {
	return &Response{status: status, handled: true, state: stateExtracted}
}

// IsHandled returns true for responses made by Handled.
func (r *Response) IsHandled() bool {
	return r.handled
}

// Status returns the status code.
func (r *Response) Status() int {
	return r.status
}

// StatusText returns the status text, or the standard text of Status.
func (r *Response) StatusText() string {
	if r.statusText != "" {
		return r.statusText
	}
	return http.StatusText(r.status)
}

// OK returns true for a 2xx status.
func (r *Response) OK() bool {
	return r.status >= 200 && r.status < 300
}

// Headers returns the mutable response headers. After Extract, it returns an
// empty collection.
func (r *Response) Headers() headers.Headers {
	if r.state == stateExtracted {
		return headers.New()
	}
	r.build()
	return r.view
}

// build moves a raw response to the built state.
func (r *Response) build() {
	if r.state != stateRaw {
		return
	}
	h := make(http.Header, len(r.init)+1)
	for k, vs := range r.init {
		for _, v := range vs {
			h.Add(k, v)
		}
	}
	if ct := inferContentType(r.body); ct != "" && len(h.Values("Content-Type")) == 0 {
		h.Set("Content-Type", ct)
	}
	r.header = h
	r.view = headers.Native(h)
	r.init = nil
	r.state = stateBuilt
}

// Standard returns the response as a *http.Response, built once. A StreamFunc
// body is reported as http.NoBody. After Extract, it returns
// ErrResponseExtracted.
func (r *Response) Standard() (*http.Response, error) {
	if r.state == stateExtracted {
		return nil, ErrResponseExtracted
	}
	r.build()
	if r.std != nil {
		return r.std, nil
	}

	body, length, err := readerOf(r.body)
	if err != nil {
		return nil, err
	}
	if _, ok := r.body.(io.Reader); ok {
		r.body = body // single-use streams are shared with the standard response
	}
	r.std = &http.Response{
		Status:        strconv.Itoa(r.status) + " " + r.StatusText(),
		StatusCode:    r.status,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        r.header,
		Body:          body,
		ContentLength: length,
	}
	return r.std, nil
}

// Extracted is the emission form of a Response.
type Extracted struct {
	Status     int
	StatusText string

	// Headers holds lower-cased name/value pairs in canonical order. See
	// package headers.
	Headers [][2]string

	// Body is nil, string, []byte, io.Reader or StreamFunc.
	Body any

	// ContentLength is -1 when unknown.
	ContentLength int64
}

// Extract returns the status, headers and body in the shapes native writers
// prefer. It infers content-type and content-length only when absent.
//
// Extract is the only way to reach a StreamFunc body. Afterwards the
// response releases its state and can't be extracted again.
func (r *Response) Extract() (*Extracted, error) {
	if r.state == stateExtracted {
		return nil, ErrResponseExtracted
	}

	h := r.header
	if r.state == stateRaw {
		h = make(http.Header, len(r.init)+2)
		for k, vs := range r.init {
			for _, v := range vs {
				h.Add(k, v)
			}
		}
	}

	x := &Extracted{Status: r.status, StatusText: r.StatusText(), ContentLength: -1}
	var ct string
	switch b := r.body.(type) {
	case nil:
		if r.stream != nil {
			x.Body = r.stream
		} else {
			x.ContentLength = 0
		}
	case string:
		x.Body, x.ContentLength, ct = b, int64(len(b)), contentTypeText
	case []byte:
		x.Body, x.ContentLength = b, int64(len(b))
	case *Blob:
		x.Body, x.ContentLength, ct = b.Bytes(), b.Size(), b.Type
	case url.Values:
		s := b.Encode()
		x.Body, x.ContentLength, ct = s, int64(len(s)), contentTypeForm
	case io.Reader:
		x.Body = b
		if l, ok := b.(interface{ Len() int }); ok {
			x.ContentLength = int64(l.Len())
		}
	default:
		return nil, fmt.Errorf("fetch: unsupported response body %T", r.body)
	}

	if ct != "" && len(h.Values("Content-Type")) == 0 {
		h.Set("Content-Type", ct)
	}
	if cl := h.Get("Content-Length"); cl != "" {
		if n, err := strconv.ParseInt(cl, 10, 64); err == nil && x.ContentLength < 0 {
			x.ContentLength = n
		}
	} else if x.ContentLength > 0 || (x.ContentLength == 0 && x.Body != nil) {
		h.Set("Content-Length", strconv.FormatInt(x.ContentLength, 10))
	}
	x.Headers = headers.Native(h).Entries()

	r.state = stateExtracted
	r.init, r.body, r.stream = nil, nil, nil
	r.header, r.view, r.std = nil, nil, nil
	return x, nil
}

// Bytes reads the body fully. Reader and stream bodies are buffered so the
// response can still be emitted afterwards.
func (r *Response) Bytes() ([]byte, error) {
	if r.state == stateExtracted {
		return nil, ErrResponseExtracted
	}
	switch b := r.body.(type) {
	case nil:
		if r.stream == nil {
			return nil, nil
		}
		var buf bufferWriter
		err := r.stream(&buf)
		r.stream, r.body = nil, buf.Bytes()
		return buf.Bytes(), err
	case string:
		return []byte(b), nil
	case []byte:
		return b, nil
	case *Blob:
		return b.Bytes(), nil
	case url.Values:
		return []byte(b.Encode()), nil
	case io.Reader:
		data, err := io.ReadAll(b)
		if c, ok := b.(io.Closer); ok {
			c.Close()
		}
		r.body = data
		if r.std != nil {
			r.std.Body = io.NopCloser(bytes.NewReader(data))
		}
		return data, err
	}
	return nil, fmt.Errorf("fetch: unsupported response body %T", r.body)
}

// Text reads the body fully as a string.
func (r *Response) Text() (string, error) {
	data, err := r.Bytes()
	return string(data), err
}

// bufferWriter is a StreamWriter over memory.
type bufferWriter struct {
	bytes.Buffer
}

func (*bufferWriter) Flush() error { return nil }

func inferContentType(body any) string {
	switch b := body.(type) {
	case string:
		return contentTypeText
	case url.Values:
		return contentTypeForm
	case *Blob:
		return b.Type
	}
	return ""
}

// readerOf returns a standard body for a deferred body.
func readerOf(body any) (io.ReadCloser, int64, error) {
	switch b := body.(type) {
	case nil:
		return http.NoBody, 0, nil
	case string:
		return io.NopCloser(strings.NewReader(b)), int64(len(b)), nil
	case []byte:
		return io.NopCloser(bytes.NewReader(b)), int64(len(b)), nil
	case *Blob:
		return io.NopCloser(b.Reader()), b.Size(), nil
	case url.Values:
		s := b.Encode()
		return io.NopCloser(strings.NewReader(s)), int64(len(s)), nil
	case io.ReadCloser:
		return b, -1, nil
	case io.Reader:
		return io.NopCloser(b), -1, nil
	}
	return nil, 0, fmt.Errorf("fetch: unsupported response body %T", body)
}
