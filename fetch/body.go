package fetch

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/url"
	"sync"
)

// DefaultMaxFormMemory bounds the memory used by FormData for multipart
// bodies. File parts beyond it spill to disk.
const DefaultMaxFormMemory = 32 << 20

// ErrUnsupportedForm is returned by FormData for bodies that are neither
// url-encoded nor multipart.
var ErrUnsupportedForm = errors.New("fetch: unsupported form content type")

// OpenFunc opens the native body stream. It is called at most once.
type OpenFunc func() io.ReadCloser

// BodyState implements the body members of Request for all adapters.
//
// The stream is opened on the first call to Body or to a consumer, and the
// same stream is returned afterwards. Each consumer memoizes its settled
// value, including errors, so a native read error is never retried. A
// consumer fails with ErrBodyUsed when a different consumer claimed the
// stream or when the stream was read directly. Bytes and Blob share one
// read.
type BodyState struct {
	mu          sync.Mutex
	noBody      bool
	contentType func() string
	open        OpenFunc

	stream    *bodyStream
	claimed   string
	disturbed bool

	bytes memo[[]byte]
	text  memo[string]
	json  memo[[]byte]
	form  memo[*multipart.Form]
}

// NewBody returns the body of a request with the given method. GET and HEAD
// requests never have a body. contentType is consulted by FormData and may
// be nil.
func NewBody(method string, contentType func() string, open OpenFunc) *BodyState {
	return &BodyState{
		noBody:      open == nil || method == http.MethodGet || method == http.MethodHead,
		contentType: contentType,
		open:        open,
	}
}

type memo[T any] struct {
	done bool
	val  T
	err  error
}

func (m *memo[T]) get(fn func() (T, error)) (T, error) {
	if !m.done {
		m.val, m.err = fn()
		m.done = true
	}
	return m.val, m.err
}

// bodyStream marks the body disturbed when the caller reads it directly.
type bodyStream struct {
	b  *BodyState
	rc io.ReadCloser
}

func (s *bodyStream) Read(p []byte) (int, error) {
	s.b.mu.Lock()
	if s.b.claimed == "" {
		s.b.disturbed = true
	}
	s.b.mu.Unlock()
	return s.rc.Read(p)
}

func (s *bodyStream) Close() error {
	return s.rc.Close()
}

// openLocked opens the stream once. The caller must hold b.mu.
func (b *BodyState) openLocked() *bodyStream {
	if b.noBody {
		return nil
	}
	if b.stream == nil {
		rc := b.open()
		if rc == nil {
			rc = http.NoBody
		}
		b.stream = &bodyStream{b: b, rc: rc}
	}
	return b.stream
}

// Body returns the body stream, or nil for requests without a body.
func (b *BodyState) Body() io.ReadCloser {
	b.mu.Lock()
	defer b.mu.Unlock()
	if s := b.openLocked(); s != nil {
		return s
	}
	return nil
}

// BodyUsed returns true once the body was read or claimed by a consumer.
func (b *BodyState) BodyUsed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.disturbed || b.claimed != ""
}

// consume claims the stream for consumer and reads it fully. The caller must
// hold b.mu.
func (b *BodyState) consume(consumer string) ([]byte, error) {
	if b.disturbed || (b.claimed != "" && b.claimed != consumer) {
		return nil, ErrBodyUsed
	}
	b.claimed = consumer
	s := b.openLocked()
	if s == nil {
		return []byte{}, nil
	}
	defer s.rc.Close()
	return io.ReadAll(s.rc)
}

// Bytes reads the body fully.
func (b *BodyState) Bytes() ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.bytesLocked()
}

func (b *BodyState) bytesLocked() ([]byte, error) {
	return b.bytes.get(func() ([]byte, error) { return b.consume("bytes") })
}

// Blob reads the body fully into a Blob typed by the request content type.
// It shares its read with Bytes.
func (b *BodyState) Blob() (*Blob, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	data, err := b.bytesLocked()
	if err != nil {
		return nil, err
	}
	return NewBlob(data, b.mediaType()), nil
}

// Text reads the body fully as a string.
func (b *BodyState) Text() (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.text.get(func() (string, error) {
		data, err := b.consume("text")
		return string(data), err
	})
}

// JSON reads the body fully and decodes it into v. Later calls decode the
// same bytes again.
func (b *BodyState) JSON(v any) error {
	b.mu.Lock()
	data, err := b.json.get(func() ([]byte, error) { return b.consume("json") })
	b.mu.Unlock()
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

// FormData reads a url-encoded or multipart body.
func (b *BodyState) FormData() (*multipart.Form, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.form.get(func() (*multipart.Form, error) {
		ct := ""
		if b.contentType != nil {
			ct = b.contentType()
		}
		mediaType, params, err := mime.ParseMediaType(ct)
		if err != nil {
			return nil, fmt.Errorf("%w: %q", ErrUnsupportedForm, ct)
		}

		switch mediaType {
		case "application/x-www-form-urlencoded":
			data, err := b.consume("formData")
			if err != nil {
				return nil, err
			}
			values, err := url.ParseQuery(string(data))
			if err != nil {
				return nil, err
			}
			return &multipart.Form{Value: values, File: map[string][]*multipart.FileHeader{}}, nil
		case "multipart/form-data":
			data, err := b.consume("formData")
			if err != nil {
				return nil, err
			}
			return multipart.NewReader(bytes.NewReader(data), params["boundary"]).ReadForm(DefaultMaxFormMemory)
		}
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedForm, mediaType)
	})
}

func (b *BodyState) mediaType() string {
	if b.contentType == nil {
		return ""
	}
	return b.contentType()
}

// Blob is an immutable byte sequence with a media type.
type Blob struct {
	Type string
	data []byte
}

// NewBlob returns a Blob over data. data must not be modified afterwards.
func NewBlob(data []byte, contentType string) *Blob {
	return &Blob{Type: contentType, data: data}
}

// Size returns the length of the Blob in bytes.
func (b *Blob) Size() int64 { return int64(len(b.data)) }

// Bytes returns the contents. Callers must not modify the result.
func (b *Blob) Bytes() []byte { return b.data }

// Text returns the contents as a string.
func (b *Blob) Text() string { return string(b.data) }

// Reader returns a new reader over the contents.
func (b *Blob) Reader() io.Reader { return bytes.NewReader(b.data) }
