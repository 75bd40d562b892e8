package nethttp

import (
	"context"
	"errors"
	"io"
	"net/http"
	"sync"

	"github.com/unihttp/unihttp-go/fetch"
)

var copyBufPool = sync.Pool{New: func() any {
	buf := make([]byte, 32<<10)
	return &buf
}}

// WriteResponse emits resp to w using its extracted form.
//
// Headers of resp replace native headers of the same name. Bodies of unknown
// length are flushed after each chunk. When ctx is done or a write fails, a
// reader body is closed so its producer stops. Writes block while the client
// isn't reading, which is the only backpressure net/http offers.
func WriteResponse(ctx context.Context, w http.ResponseWriter, resp *fetch.Response) error {
	x, err := resp.Extract()
	if err != nil {
		return err
	}

	h := w.Header()
	seen := make(map[string]struct{}, len(x.Headers))
	for _, kv := range x.Headers {
		if _, ok := seen[kv[0]]; !ok {
			seen[kv[0]] = struct{}{}
			h.Del(kv[0])
		}
		h.Add(kv[0], kv[1])
	}

	status := x.Status
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)

	switch b := x.Body.(type) {
	case nil:
		return nil
	case string:
		_, err = io.WriteString(w, b)
		return err
	case []byte:
		_, err = w.Write(b)
		return err
	case fetch.StreamFunc:
		return b(&streamWriter{ctx: ctx, w: w, rc: http.NewResponseController(w)})
	case io.Reader:
		return copyStream(ctx, w, b, x.ContentLength < 0)
	}
	return nil
}

// copyStream copies src to w. src is closed when done, when ctx is done, or
// when a write fails.
func copyStream(ctx context.Context, w http.ResponseWriter, src io.Reader, flush bool) error {
	if c, ok := src.(io.Closer); ok {
		stop := context.AfterFunc(ctx, func() { _ = c.Close() })
		defer func() {
			stop()
			_ = c.Close()
		}()
	}

	rc := http.NewResponseController(w)
	bufp := copyBufPool.Get().(*[]byte)
	defer copyBufPool.Put(bufp)
	buf := *bufp

	for {
		if err := ctx.Err(); err != nil {
			return context.Cause(ctx)
		}
		n, rerr := src.Read(buf)
		if n > 0 {
			if _, err := w.Write(buf[:n]); err != nil {
				return err
			}
			if flush {
				if err := rc.Flush(); err != nil && !errors.Is(err, http.ErrNotSupported) {
					return err
				}
			}
		}
		if rerr == io.EOF {
			return nil
		} else if rerr != nil {
			return rerr
		}
	}
}

// streamWriter is the fetch.StreamWriter of net/http.
type streamWriter struct {
	ctx context.Context
	w   http.ResponseWriter
	rc  *http.ResponseController
}

// Write fails once the client went away.
func (s *streamWriter) Write(p []byte) (int, error) {
	if err := s.ctx.Err(); err != nil {
		return 0, context.Cause(s.ctx)
	}
	return s.w.Write(p)
}

// Flush sends buffered bytes to the client.
func (s *streamWriter) Flush() error {
	if err := s.rc.Flush(); err != nil && !errors.Is(err, http.ErrNotSupported) {
		return err
	}
	return nil
}
