package plugins

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"golang.org/x/time/rate"

	"github.com/unihttp/unihttp-go"
	"github.com/unihttp/unihttp-go/fetch"
	"github.com/unihttp/unihttp-go/handler"
	"github.com/unihttp/unihttp-go/internal/test"
)

func newRequest(t *testing.T, method string, header http.Header) fetch.Request {
	t.Helper()
	req, err := fetch.NewRequest(context.Background(), method, "http://example.com/p", nil, header)
	require.NoError(t, err)
	return req
}

func ok(fetch.Request) (*fetch.Response, error) {
	return fetch.Text(http.StatusOK, "ok"), nil
}

func TestErrorHandler(t *testing.T) {
	t.Run("will render", func(t *testing.T) {
		t.Run("a returned error", func(t *testing.T) {
			srv := unihttp.New(fetch.HandlerFunc(func(fetch.Request) (*fetch.Response, error) {
				return nil, errors.New("boom")
			}), unihttp.Plugins(ErrorHandler(nil)))

			resp, err := srv.Fetch(newRequest(t, http.MethodGet, nil))
			require.NoError(t, err)
			assert.Equal(t, http.StatusInternalServerError, resp.Status())
		})

		t.Run("a panic as *fetch.PanicError", func(t *testing.T) {
			var seen error
			srv := unihttp.New(fetch.HandlerFunc(func(fetch.Request) (*fetch.Response, error) {
				panic("boom")
			}), unihttp.Plugins(ErrorHandler(func(_ fetch.Request, err error) (*fetch.Response, error) {
				seen = err
				return fetch.Text(http.StatusBadGateway, err.Error()), nil
			})))

			resp, err := srv.Fetch(newRequest(t, http.MethodGet, nil))
			require.NoError(t, err)
			assert.Equal(t, http.StatusBadGateway, resp.Status())

			var perr *fetch.PanicError
			require.ErrorAs(t, seen, &perr)
			assert.Equal(t, "boom", perr.Value)
		})

		t.Run("errors of middleware added before it", func(t *testing.T) {
			failing := func(fetch.Request, fetch.Next) (*fetch.Response, error) {
				return nil, errors.New("middleware failed")
			}
			srv := unihttp.New(fetch.HandlerFunc(ok),
				unihttp.Middleware(failing),
				unihttp.Plugins(ErrorHandler(nil)))

			require.Len(t, srv.Middleware, 2)
			resp, err := srv.Fetch(newRequest(t, http.MethodGet, nil))
			require.NoError(t, err)
			assert.Equal(t, http.StatusInternalServerError, resp.Status())
		})
	})

	t.Run("will propagate an error of the error func", func(t *testing.T) {
		second := errors.New("render failed")
		srv := unihttp.New(fetch.HandlerFunc(func(fetch.Request) (*fetch.Response, error) {
			return nil, errors.New("boom")
		}), unihttp.Plugins(ErrorHandler(func(fetch.Request, error) (*fetch.Response, error) {
			return nil, second
		})))

		_, err := srv.Fetch(newRequest(t, http.MethodGet, nil))
		assert.Equal(t, second, err)
	})

	t.Run("will re-panic http.ErrAbortHandler", func(t *testing.T) {
		srv := unihttp.New(fetch.HandlerFunc(func(fetch.Request) (*fetch.Response, error) {
			panic(http.ErrAbortHandler)
		}), unihttp.Plugins(ErrorHandler(nil)))

		assert.PanicsWithValue(t, http.ErrAbortHandler, func() {
			_, _ = srv.Fetch(newRequest(t, http.MethodGet, nil))
		})
	})
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	srv := unihttp.New(fetch.HandlerFunc(ok), unihttp.Plugins(Metrics(reg), Metrics(reg)))

	for i := 0; i < 3; i++ {
		_, err := srv.Fetch(newRequest(t, http.MethodGet, nil))
		require.NoError(t, err)
	}

	expected := `
# HELP unihttp_requests_total Requests served, by runtime, method and status. Status is "error" when the chain failed.
# TYPE unihttp_requests_total counter
unihttp_requests_total{method="GET",runtime="standalone",status="200"} 6
`
	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "unihttp_requests_total"))
}

func TestRateLimit(t *testing.T) {
	srv := unihttp.New(fetch.HandlerFunc(ok), unihttp.Plugins(RateLimit(rate.NewLimiter(rate.Every(time.Hour), 1))))

	resp, err := srv.Fetch(newRequest(t, http.MethodGet, nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.Status())

	resp, err = srv.Fetch(newRequest(t, http.MethodGet, nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusTooManyRequests, resp.Status())
	assert.Equal(t, "3600", resp.Headers().Get("retry-after"))
}

func TestClientRateLimit(t *testing.T) {
	srv := unihttp.New(fetch.HandlerFunc(ok), unihttp.Plugins(ClientRateLimit(rate.Limit(0), 1)))

	fromIP := func(ip string) fetch.Request {
		req := newRequest(t, http.MethodGet, nil)
		std, err := req.Standard()
		require.NoError(t, err)
		std.RemoteAddr = ip + ":1000"
		return fetch.FromStandard(std)
	}

	statuses := make([]int, 0, 3)
	for _, ip := range []string{"192.0.2.1", "192.0.2.1", "192.0.2.2"} {
		resp, err := srv.Fetch(fromIP(ip))
		require.NoError(t, err)
		statuses = append(statuses, resp.Status())
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusTooManyRequests, http.StatusOK}, statuses)
}

func TestAccessLog(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	srv := unihttp.New(fetch.HandlerFunc(ok), unihttp.Plugins(AccessLog(zap.New(core))))

	_, err := srv.Fetch(newRequest(t, http.MethodPost, nil))
	require.NoError(t, err)

	entries := logs.FilterMessage("request").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "POST", fields["method"])
	assert.Equal(t, "http://example.com/p", fields["url"])
	assert.Equal(t, "200", fields["status"])
}

func TestMaxBodySize(t *testing.T) {
	srv := unihttp.New(fetch.HandlerFunc(ok), unihttp.Plugins(MaxBodySize(4)))

	tests := []struct {
		name   string
		length string
		want   int
	}{
		{name: "no content-length", want: http.StatusOK},
		{name: "within limit", length: "4", want: http.StatusOK},
		{name: "over limit", length: "5", want: http.StatusRequestEntityTooLarge},
	}

	for _, tt := range tests {
		tc := tt
		t.Run(tc.name, func(t *testing.T) {
			header := http.Header{}
			if tc.length != "" {
				header.Set("Content-Length", tc.length)
			}
			resp, err := srv.Fetch(newRequest(t, http.MethodPost, header))
			require.NoError(t, err)
			assert.Equal(t, tc.want, resp.Status())
		})
	}
}

func TestWasm(t *testing.T) {
	ctx := context.Background()

	t.Run("will run the guest", func(t *testing.T) {
		t.Run("and stop the chain when it responds", func(t *testing.T) {
			mw, err := handler.NewMiddleware(ctx, test.BinDeny)
			require.NoError(t, err)
			defer mw.Close(ctx)

			srv := unihttp.New(fetch.HandlerFunc(ok), unihttp.Plugins(Wasm(mw)))
			resp, err := srv.Fetch(newRequest(t, http.MethodGet, nil))
			require.NoError(t, err)
			assert.Equal(t, http.StatusForbidden, resp.Status())
		})

		t.Run("and call the handler when it asks for next", func(t *testing.T) {
			mw, err := handler.NewMiddleware(ctx, test.BinNext)
			require.NoError(t, err)
			defer mw.Close(ctx)

			srv := unihttp.New(fetch.HandlerFunc(ok), unihttp.Plugins(Wasm(mw)))
			resp, err := srv.Fetch(newRequest(t, http.MethodGet, nil))
			require.NoError(t, err)
			text, err := resp.Text()
			require.NoError(t, err)
			assert.Equal(t, "ok", text)
		})
	})
}
