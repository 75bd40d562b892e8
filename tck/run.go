package tck

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"reflect"
	"strings"
	"testing"

	"github.com/unihttp/unihttp-go/fetch"
)

// Run checks a server made by New. The client is http.DefaultClient, or a
// different value to test another transport. The url must point to the
// server's root.
func Run(t *testing.T, client *http.Client, url string) {
	if url == "" {
		t.Fatal("url is empty")
	}
	url = strings.TrimSuffix(url, "/")

	r := &testRunner{
		t:      t,
		client: client,
		url:    url,
	}

	r.testHeaders()
	r.testBinaryBody()
	r.testError()
	r.testText()
	r.testJSON()
	r.testStream()
	r.testSetCookie()
	r.testNative()
	r.testRuntime()
	r.testNotFound()
}

type testRunner struct {
	t      *testing.T
	client *http.Client
	url    string
}

func (r *testRunner) do(t *testing.T, method, path string, body []byte, header http.Header) (*http.Response, []byte) {
	t.Helper()
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequest(method, r.url+path, rd)
	if err != nil {
		t.Fatal(err)
	}
	for k, vs := range header {
		req.Header[k] = vs
	}
	resp, err := r.client.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	return resp, data
}

func (r *testRunner) testHeaders() {
	r.t.Run("headers", func(t *testing.T) {
		resp, body := r.do(t, http.MethodGet, "/headers", nil, http.Header{"Foo": {"bar"}})
		requireStatus(t, resp, http.StatusOK)

		var have map[string]any
		if err := json.Unmarshal(body, &have); err != nil {
			t.Fatal(err)
		}
		if want, have := "bar", have["foo"]; want != have {
			t.Errorf("unexpected foo, want: %v, have: %v", want, have)
		}
		if want, have := "bar", resp.Header.Get("x-req-foo"); want != have {
			t.Errorf("unexpected x-req-foo, want: %v, have: %v", want, have)
		}
	})
}

func (r *testRunner) testBinaryBody() {
	r.t.Run("body/binary", func(t *testing.T) {
		want := []byte{1, 2, 3}
		resp, have := r.do(t, http.MethodPost, "/body/binary", want, nil)
		requireStatus(t, resp, http.StatusOK)

		if !bytes.Equal(want, have) {
			t.Errorf("unexpected body, want: %v, have: %v", want, have)
		}
	})
}

func (r *testRunner) testError() {
	r.t.Run("error", func(t *testing.T) {
		resp, body := r.do(t, http.MethodGet, "/error", nil, nil)
		requireStatus(t, resp, http.StatusInternalServerError)

		if want, have := "error: test error", string(body); want != have {
			t.Errorf("unexpected body, want: %v, have: %v", want, have)
		}
	})
}

func (r *testRunner) testText() {
	r.t.Run("text", func(t *testing.T) {
		resp, body := r.do(t, http.MethodGet, "/text", nil, nil)
		requireStatus(t, resp, http.StatusOK)

		if want, have := "hello", string(body); want != have {
			t.Errorf("unexpected body, want: %v, have: %v", want, have)
		}
		if want, have := "text/plain; charset=UTF-8", resp.Header.Get("Content-Type"); want != have {
			t.Errorf("unexpected content-type, want: %v, have: %v", want, have)
		}
		if want, have := int64(5), resp.ContentLength; want != have {
			t.Errorf("unexpected content-length, want: %v, have: %v", want, have)
		}
	})
}

func (r *testRunner) testJSON() {
	r.t.Run("json", func(t *testing.T) {
		resp, body := r.do(t, http.MethodPut, "/json", nil, nil)
		requireStatus(t, resp, http.StatusOK)

		if want, have := "application/json", resp.Header.Get("Content-Type"); want != have {
			t.Errorf("unexpected content-type, want: %v, have: %v", want, have)
		}
		var have map[string]any
		if err := json.Unmarshal(body, &have); err != nil {
			t.Fatal(err)
		}
		if want := map[string]any{"ok": true, "method": "PUT"}; !reflect.DeepEqual(want, have) {
			t.Errorf("unexpected body, want: %v, have: %v", want, have)
		}
	})
}

func (r *testRunner) testStream() {
	r.t.Run("stream", func(t *testing.T) {
		resp, body := r.do(t, http.MethodGet, "/stream", nil, nil)
		requireStatus(t, resp, http.StatusOK)

		if want, have := "abc", string(body); want != have {
			t.Errorf("unexpected body, want: %v, have: %v", want, have)
		}
	})
}

func (r *testRunner) testSetCookie() {
	r.t.Run("set-cookie", func(t *testing.T) {
		resp, _ := r.do(t, http.MethodGet, "/set-cookie", nil, nil)
		requireStatus(t, resp, http.StatusNoContent)

		if want, have := []string{"a=1", "b=2"}, resp.Header.Values("Set-Cookie"); !reflect.DeepEqual(want, have) {
			t.Errorf("unexpected cookies, want: %v, have: %v", want, have)
		}
	})
}

func (r *testRunner) testNative() {
	r.t.Run("native", func(t *testing.T) {
		resp, body := r.do(t, http.MethodGet, "/native", nil, nil)
		requireStatus(t, resp, http.StatusAccepted)

		if want, have := "native GET /native", string(body); want != have {
			t.Errorf("unexpected body, want: %v, have: %v", want, have)
		}
		if want, have := "1", resp.Header.Get("X-Native"); want != have {
			t.Errorf("unexpected x-native, want: %v, have: %v", want, have)
		}
	})
}

func (r *testRunner) testRuntime() {
	r.t.Run("runtime", func(t *testing.T) {
		resp, body := r.do(t, http.MethodGet, "/runtime", nil, nil)
		requireStatus(t, resp, http.StatusOK)

		switch have := fetch.RuntimeName(body); have {
		case fetch.RuntimeNetHTTP, fetch.RuntimeFastHTTP, fetch.RuntimeWorker:
		default:
			t.Errorf("unexpected runtime: %v", have)
		}
	})
}

func (r *testRunner) testNotFound() {
	r.t.Run("not found", func(t *testing.T) {
		resp, _ := r.do(t, http.MethodGet, "/missing", nil, nil)
		requireStatus(t, resp, http.StatusNotFound)
	})
}

func requireStatus(t *testing.T, resp *http.Response, want int) {
	t.Helper()
	if have := resp.StatusCode; want != have {
		t.Fatalf("unexpected status, want: %v, have: %v", want, have)
	}
}
