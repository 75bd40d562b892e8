package unihttp_test

import (
	"context"
	"io"
	"net"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/unihttp/unihttp-go"
	"github.com/unihttp/unihttp-go/fetch"
)

func hello(req fetch.Request) (*fetch.Response, error) {
	return fetch.Text(http.StatusOK, "hello from "+string(req.Runtime().Name)), nil
}

func TestNew(t *testing.T) {
	t.Run("will run plugins after options", func(t *testing.T) {
		var order []string
		record := func(name string) fetch.Middleware {
			return func(req fetch.Request, next fetch.Next) (*fetch.Response, error) {
				order = append(order, name)
				return next(req)
			}
		}
		plugin := func(s *unihttp.Server) {
			s.Middleware = append([]fetch.Middleware{record("plugin")}, s.Middleware...)
		}

		srv := unihttp.New(fetch.HandlerFunc(hello),
			unihttp.Plugins(plugin),
			unihttp.Middleware(record("a"), record("b")))

		req, err := fetch.NewRequest(context.Background(), http.MethodGet, "http://host/", nil, nil)
		require.NoError(t, err)
		resp, err := srv.Fetch(req)
		require.NoError(t, err)

		text, err := resp.Text()
		require.NoError(t, err)
		assert.Equal(t, "hello from standalone", text)
		assert.Equal(t, []string{"plugin", "a", "b"}, order)
	})

	t.Run("will trace with the tracer provider", func(t *testing.T) {
		sr := tracetest.NewSpanRecorder()
		tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))

		srv := unihttp.New(fetch.HandlerFunc(hello),
			unihttp.Name("edge"),
			unihttp.TracerProvider(tp),
			unihttp.Middleware(func(req fetch.Request, next fetch.Next) (*fetch.Response, error) {
				return next(req)
			}))

		req, err := fetch.NewRequest(context.Background(), http.MethodGet, "http://host/", nil, nil)
		require.NoError(t, err)
		_, err = srv.Fetch(req)
		require.NoError(t, err)

		spans := sr.Ended()
		require.Len(t, spans, 2)
		assert.Equal(t, fetch.SpanFetch, spans[0].Name())
		assert.Equal(t, fetch.SpanMiddleware, spans[1].Name())
		assert.Equal(t, spans[1].SpanContext().SpanID(), spans[0].Parent().SpanID())

		var server string
		for _, kv := range spans[1].Attributes() {
			if kv.Key == fetch.AttrServer {
				server = kv.Value.AsString()
			}
		}
		assert.Equal(t, "edge", server)
	})
}

func TestServer_Serve(t *testing.T) {
	t.Run("will return an error", func(t *testing.T) {
		t.Run("if the runtime can't listen", func(t *testing.T) {
			ln, err := net.Listen("tcp", "127.0.0.1:0")
			require.NoError(t, err)
			defer ln.Close()

			srv := unihttp.New(fetch.HandlerFunc(hello), unihttp.Runtime(fetch.RuntimeStandalone))
			err = srv.Serve(context.Background(), ln)
			assert.ErrorIs(t, err, unihttp.ErrUnsupportedRuntime)
		})
	})

	runtimes := []fetch.RuntimeName{fetch.RuntimeNetHTTP, fetch.RuntimeFastHTTP, fetch.RuntimeWorker}
	for _, rt := range runtimes {
		name := rt
		t.Run("will serve on "+string(name), func(t *testing.T) {
			var deferred atomic.Bool
			h := fetch.HandlerFunc(func(req fetch.Request) (*fetch.Response, error) {
				req.WaitUntil(func(context.Context) error {
					time.Sleep(10 * time.Millisecond)
					deferred.Store(true)
					return nil
				})
				return hello(req)
			})

			ln, err := net.Listen("tcp", "127.0.0.1:0")
			require.NoError(t, err)

			srv := unihttp.New(h, unihttp.Runtime(name), unihttp.ShutdownTimeout(time.Second))
			ctx, cancel := context.WithCancel(context.Background())
			done := make(chan error, 1)
			go func() { done <- srv.Serve(ctx, ln) }()

			client := &http.Client{Transport: &http.Transport{DisableKeepAlives: true}}
			resp, err := client.Get("http://" + ln.Addr().String() + "/")
			require.NoError(t, err)
			body, err := io.ReadAll(resp.Body)
			resp.Body.Close()
			require.NoError(t, err)
			assert.Equal(t, http.StatusOK, resp.StatusCode)
			assert.Equal(t, "hello from "+string(name), string(body))

			cancel()
			select {
			case err := <-done:
				assert.NoError(t, err)
			case <-time.After(5 * time.Second):
				t.Fatal("server did not shut down")
			}
			assert.True(t, deferred.Load(), "expected deferred work to finish before Serve returned")
		})
	}
}
