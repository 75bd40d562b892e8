package handler

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/valyala/bytebufferpool"

	"github.com/unihttp/unihttp-go/api/handler"
	"github.com/unihttp/unihttp-go/fetch"
	"github.com/unihttp/unihttp-go/headers"
)

var errTrailers = errors.New("trailers are not supported")

// requestStateKey is a context.Context value associated with a requestState
// pointer to the current request.
type requestStateKey struct{}

// requestState records what the guest changed about the current request,
// and the response it built or received from the next handler.
type requestState struct {
	req       fetch.Request
	afterNext bool

	// features are the current request's features which may be more than
	// Middleware.Features.
	features handler.Features

	method     string
	uri        string
	uriSet     bool
	reqHeaders *headers.Store
	reqReader  io.Reader
	reqData    []byte // buffered request body, replayed to next
	reqWrite   *bytebufferpool.ByteBuffer

	resp       *fetch.Response
	respHeader http.Header // written by the guest before next
	status     int
	respReader io.Reader
	respWrite  *bytebufferpool.ByteBuffer
}

func newRequestState(req fetch.Request, features handler.Features) *requestState {
	return &requestState{req: req, features: features}
}

// Close releases pooled buffers. Buffers are copied out before they reach a
// request or response, so nothing refers to them afterwards.
func (s *requestState) Close() {
	if s.reqWrite != nil {
		bytebufferpool.Put(s.reqWrite)
		s.reqWrite = nil
	}
	if s.respWrite != nil {
		bytebufferpool.Put(s.respWrite)
		s.respWrite = nil
	}
}

func (s *requestState) mustBeforeNext(op, kind string) {
	if s.afterNext {
		panic(fmt.Errorf("can't %s %s after next handler", op, kind))
	}
}

func (s *requestState) mustBeforeNextOrFeature(feature handler.Features, op, kind string) {
	if !s.afterNext {
		// Assume this is serving a response from the guest.
	} else if s.features.IsEnabled(feature) {
		// Assume the guest is overwriting the response from next.
	} else {
		panic(fmt.Errorf("can't %s %s after next handler unless %s is enabled",
			op, kind, feature))
	}
}

// mustMutableResponse panics when the next handler already wrote its
// response to the client.
func (s *requestState) mustMutableResponse() {
	if s.afterNext && (s.resp == nil || s.resp.IsHandled()) {
		panic(errors.New("response was already sent by the next handler"))
	}
}

func (s *requestState) getMethod() string {
	if s.method != "" {
		return s.method
	}
	return s.req.Method()
}

func (s *requestState) getURI() string {
	if s.uriSet {
		return s.uri
	}
	u := s.req.ParsedURL()
	return u.Pathname() + u.Search()
}

func (s *requestState) setURI(uri string) {
	if !strings.HasPrefix(uri, "/") {
		uri = "/" + uri
	}
	s.uri, s.uriSet = uri, true
}

func (s *requestState) getProtocolVersion() string {
	if p := s.req.Proto(); p != "" {
		return p
	}
	return "HTTP/1.1"
}

// headers returns the fields of kind for reading.
func (s *requestState) headers(kind handler.HeaderKind) headers.Headers {
	switch kind {
	case handler.HeaderKindRequest:
		if s.reqHeaders != nil {
			return s.reqHeaders
		}
		return s.req.Headers()
	case handler.HeaderKindResponse:
		if !s.afterNext {
			return headers.Native(s.responseHeader())
		}
		if s.resp == nil || s.resp.IsHandled() {
			return headers.New()
		}
		return s.resp.Headers()
	case handler.HeaderKindRequestTrailers, handler.HeaderKindResponseTrailers:
		return headers.New()
	}
	panic("unsupported header kind: " + strconv.Itoa(int(kind)))
}

// mutableHeaders returns the fields of kind for op, or panics if they can no
// longer change.
func (s *requestState) mutableHeaders(op string, kind handler.HeaderKind) headers.Headers {
	switch kind {
	case handler.HeaderKindRequest:
		s.mustBeforeNext(op, "request header")
		if s.reqHeaders == nil {
			s.reqHeaders = headers.Clone(s.req.Headers())
		}
		return s.reqHeaders
	case handler.HeaderKindResponse:
		s.mustBeforeNextOrFeature(handler.FeatureBufferResponse, op, "response header")
		s.mustMutableResponse()
		return s.headers(kind)
	case handler.HeaderKindRequestTrailers, handler.HeaderKindResponseTrailers:
		panic(errTrailers)
	}
	panic("unsupported header kind: " + strconv.Itoa(int(kind)))
}

func (s *requestState) responseHeader() http.Header {
	if s.respHeader == nil {
		s.respHeader = http.Header{}
	}
	return s.respHeader
}

func (s *requestState) getStatusCode() int {
	switch {
	case s.status != 0:
		return s.status
	case s.afterNext && s.resp != nil:
		return s.resp.Status()
	}
	return http.StatusOK
}

func (s *requestState) setStatusCode(status int) {
	s.mustBeforeNextOrFeature(handler.FeatureBufferResponse, "set", "status code")
	s.mustMutableResponse()
	s.status = status
}

// bodyReader returns the body of kind, opened lazily.
func (s *requestState) bodyReader(kind handler.BodyKind) io.Reader {
	switch kind {
	case handler.BodyKindRequest:
		s.mustBeforeNextOrFeature(handler.FeatureBufferRequest, "read", "request body")
		if s.reqReader != nil {
			return s.reqReader
		}
		if s.features.IsEnabled(handler.FeatureBufferRequest) {
			data, err := s.req.Bytes()
			if err != nil {
				panic(fmt.Errorf("error reading body: %w", err))
			}
			s.reqData = data
			s.reqReader = bytes.NewReader(data)
		} else {
			s.reqReader = s.req.Body()
		}
		return s.reqReader
	case handler.BodyKindResponse:
		s.mustBeforeNextOrFeature(handler.FeatureBufferResponse, "read", "response body")
		if s.respReader != nil {
			return s.respReader
		}
		var data []byte
		if s.afterNext {
			s.mustMutableResponse()
			var err error
			if data, err = s.resp.Bytes(); err != nil {
				panic(fmt.Errorf("error reading body: %w", err))
			}
		} else if s.respWrite != nil {
			data = s.respWrite.B
		}
		s.respReader = bytes.NewReader(data)
		return s.respReader
	}
	panic("unsupported body kind: " + strconv.Itoa(int(kind)))
}

// bodyWriter returns the buffer replacing the body of kind. The first write
// replaces the body and later ones append.
func (s *requestState) bodyWriter(kind handler.BodyKind) io.Writer {
	switch kind {
	case handler.BodyKindRequest:
		s.mustBeforeNext("write", "request body")
		if s.reqWrite == nil {
			s.reqWrite = bytebufferpool.Get()
		}
		return s.reqWrite
	case handler.BodyKindResponse:
		s.mustBeforeNextOrFeature(handler.FeatureBufferResponse, "write", "response body")
		s.mustMutableResponse()
		if s.respWrite == nil {
			s.respWrite = bytebufferpool.Get()
		}
		return s.respWrite
	}
	panic("unsupported body kind: " + strconv.Itoa(int(kind)))
}

// nextRequest returns the request to pass to the next handler: the original
// when the guest changed nothing, otherwise a rewrite of it.
func (s *requestState) nextRequest() fetch.Request {
	var opts fetch.RewriteOptions
	changed := false
	if s.method != "" {
		opts.Method, changed = s.method, true
	}
	if s.uriSet {
		opts.URL, changed = s.req.ParsedURL().Origin()+s.uri, true
	}
	switch {
	case s.reqWrite != nil:
		opts.Body, opts.SetBody = append([]byte(nil), s.reqWrite.B...), true
		h := s.mutableHeaders("write", handler.HeaderKindRequest).(*headers.Store)
		_ = h.Set("content-length", strconv.Itoa(len(opts.Body)))
		changed = true
	case s.reqData != nil:
		opts.Body, opts.SetBody, changed = s.reqData, true, true
	}
	if s.reqHeaders != nil {
		opts.Headers, changed = s.reqHeaders, true
	}
	if !changed {
		return s.req
	}
	return fetch.Rewrite(s.req, opts)
}

// guestResponse is the response when the guest didn't call the next handler.
func (s *requestState) guestResponse() *fetch.Response {
	var body any
	if s.respWrite != nil {
		body = append([]byte(nil), s.respWrite.B...)
	}
	return fetch.NewResponse(body, &fetch.ResponseInit{Status: s.getStatusCode(), Header: s.respHeader})
}

// finalResponse applies what the guest changed to the response of the next
// handler.
func (s *requestState) finalResponse() (*fetch.Response, error) {
	resp := s.resp
	if resp == nil || resp.IsHandled() {
		return resp, nil
	}

	// Headers set before next are defaults for the next response.
	if len(s.respHeader) > 0 {
		h := resp.Headers()
		for name, values := range s.respHeader {
			if h.Has(name) {
				continue
			}
			for _, v := range values {
				if err := h.Append(name, v); err != nil {
					return nil, err
				}
			}
		}
	}

	if s.status == 0 && s.respWrite == nil {
		return resp, nil
	}

	var body []byte
	if s.respWrite != nil {
		body = append([]byte(nil), s.respWrite.B...)
	} else {
		var err error
		if body, err = resp.Bytes(); err != nil {
			return nil, err
		}
	}
	h := headers.Clone(resp.Headers()).HTTP()
	h.Del("Content-Length")
	return fetch.NewResponse(body, &fetch.ResponseInit{Status: s.getStatusCode(), Header: h}), nil
}
