package bridge

import (
	"context"
	"errors"
	"io"
	"net/http"
	"runtime"
	"sync"

	"github.com/unihttp/unihttp-go/fetch"
)

// statusWriter records the status written to a native response.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	if w.status == 0 && !informational(status) {
		w.status = status
	}
	w.ResponseWriter.WriteHeader(status)
}

func (w *statusWriter) Write(p []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	return w.ResponseWriter.Write(p)
}

// Flush implements http.Flusher
func (w *statusWriter) Flush() {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	_ = http.NewResponseController(w.ResponseWriter).Flush()
}

// Unwrap allows http.ResponseController to reach the native writer.
func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

func informational(status int) bool {
	return status >= 100 && status < 200 && status != http.StatusSwitchingProtocols
}

// errDropped ends the handler's writes once its response was garbage
// collected without being read to the end.
var errDropped = errors.New("bridge: response dropped")

// pipeBody is the body of a captured response. When the response is dropped
// unread, its finalizer closes the pipe so the handler goroutine returns even
// when the request context is never done.
type pipeBody struct {
	pr *io.PipeReader
}

func newPipeBody(pr *io.PipeReader) *pipeBody {
	b := &pipeBody{pr: pr}
	runtime.SetFinalizer(b, func(b *pipeBody) { _ = b.pr.CloseWithError(errDropped) })
	return b
}

func (b *pipeBody) Read(p []byte) (int, error) {
	return b.pr.Read(p)
}

func (b *pipeBody) Close() error {
	return b.pr.Close()
}

// captureWriter turns what a native handler writes into a *fetch.Response.
//
// The response is published on ready when the handler commits: on the first
// WriteHeader, Write, Flush or ReadFrom, or when it returns. Its body is the
// read side of a pipe the handler keeps writing into, so writes block until
// the response is emitted.
type captureWriter struct {
	header http.Header
	pr     *io.PipeReader
	pw     *io.PipeWriter

	mu        sync.Mutex
	committed bool

	ready  chan *fetch.Response
	failed chan error

	stop func() bool
}

var (
	_ http.ResponseWriter = (*captureWriter)(nil)
	_ http.Flusher        = (*captureWriter)(nil)
	_ io.ReaderFrom       = (*captureWriter)(nil)
)

// newCaptureWriter returns a writer whose pipe is closed when ctx is done,
// so a handler writing into an abandoned response doesn't block forever.
func newCaptureWriter(ctx context.Context) *captureWriter {
	pr, pw := io.Pipe()
	w := &captureWriter{
		header: http.Header{},
		pr:     pr,
		pw:     pw,
		ready:  make(chan *fetch.Response, 1),
		failed: make(chan error, 1),
	}
	w.stop = context.AfterFunc(ctx, func() {
		_ = pr.CloseWithError(context.Cause(ctx))
	})
	return w
}

// Header implements http.ResponseWriter
func (w *captureWriter) Header() http.Header {
	return w.header
}

// WriteHeader implements http.ResponseWriter
func (w *captureWriter) WriteHeader(status int) {
	if informational(status) {
		return
	}
	w.commit(status, true)
}

// Write implements http.ResponseWriter
func (w *captureWriter) Write(p []byte) (int, error) {
	w.commit(http.StatusOK, true)
	return w.pw.Write(p)
}

// Flush implements http.Flusher
func (w *captureWriter) Flush() {
	w.commit(http.StatusOK, true)
}

// ReadFrom implements io.ReaderFrom
func (w *captureWriter) ReadFrom(src io.Reader) (int64, error) {
	w.commit(http.StatusOK, true)
	return io.Copy(w.pw, src)
}

// commit publishes the response once. Without a body, the response has
// none and the pipe is unused.
func (w *captureWriter) commit(status int, body bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.committed {
		return
	}
	w.committed = true

	init := &fetch.ResponseInit{Status: status, Header: w.header.Clone()}
	if body {
		w.ready <- fetch.NewResponse(io.Reader(newPipeBody(w.pr)), init)
	} else {
		w.ready <- fetch.NewResponse(nil, init)
	}
}

// finish completes the response when the handler returned.
func (w *captureWriter) finish() {
	w.commit(http.StatusOK, false)
	_ = w.pw.Close()
	w.stop()
}

// fail reports a panic. Before commit, the caller receives err. After
// commit, the body stream ends with err.
func (w *captureWriter) fail(err error) {
	w.mu.Lock()
	committed := w.committed
	w.committed = true
	w.mu.Unlock()

	if committed {
		_ = w.pw.CloseWithError(err)
	} else {
		w.failed <- err
	}
	w.stop()
}
