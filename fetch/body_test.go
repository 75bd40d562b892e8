package fetch

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
)

type countingReader struct {
	r      io.Reader
	reads  int
	closed bool
	err    error
}

func (c *countingReader) Read(p []byte) (int, error) {
	c.reads++
	if c.err != nil {
		return 0, c.err
	}
	return c.r.Read(p)
}

func (c *countingReader) Close() error {
	c.closed = true
	return nil
}

func newTestBody(method, contentType, content string) (*BodyState, *countingReader, *int) {
	src := &countingReader{r: strings.NewReader(content)}
	opens := 0
	b := NewBody(method, func() string { return contentType }, func() io.ReadCloser {
		opens++
		return src
	})
	return b, src, &opens
}

func TestBody_noBodyForGetAndHead(t *testing.T) {
	for _, method := range []string{http.MethodGet, http.MethodHead} {
		b, _, opens := newTestBody(method, "", "ignored")

		if b.Body() != nil {
			t.Errorf("%s: expected nil body", method)
		}
		text, err := b.Text()
		if err != nil {
			t.Fatal(err)
		}
		if want, have := "", text; want != have {
			t.Errorf("%s: unexpected text, want: %q, have: %q", method, want, have)
		}
		if *opens != 0 {
			t.Errorf("%s: expected no open, have: %d", method, *opens)
		}
	}
}

func TestBody_sameStream(t *testing.T) {
	b, _, opens := newTestBody(http.MethodPost, "", "abc")

	first, second := b.Body(), b.Body()
	if first != second {
		t.Error("expected the same stream object")
	}
	if want, have := 1, *opens; want != have {
		t.Errorf("unexpected open count, want: %d, have: %d", want, have)
	}
	if b.BodyUsed() {
		t.Error("opening must not mark the body used")
	}
}

func TestBody_textIdempotent(t *testing.T) {
	b, src, _ := newTestBody(http.MethodPost, "", "hello")

	t1, err := b.Text()
	if err != nil {
		t.Fatal(err)
	}
	reads := src.reads
	t2, err := b.Text()
	if err != nil {
		t.Fatal(err)
	}

	if want, have := "hello", t2; want != have || t1 != t2 {
		t.Errorf("unexpected text, want: %q, have: %q, %q", want, t1, t2)
	}
	if want, have := reads, src.reads; want != have {
		t.Errorf("stream re-read, want: %d reads, have: %d", want, have)
	}
	if !src.closed {
		t.Error("expected stream to be closed")
	}
}

func TestBody_differentConsumerFails(t *testing.T) {
	b, _, _ := newTestBody(http.MethodPost, "", `{"a":1}`)

	if _, err := b.Text(); err != nil {
		t.Fatal(err)
	}

	var v map[string]int
	if err := b.JSON(&v); !errors.Is(err, ErrBodyUsed) {
		t.Errorf("expected ErrBodyUsed, have: %v", err)
	}
	if _, err := b.Bytes(); !errors.Is(err, ErrBodyUsed) {
		t.Errorf("expected ErrBodyUsed, have: %v", err)
	}
}

func TestBody_bytesAndBlobShareRead(t *testing.T) {
	b, _, _ := newTestBody(http.MethodPost, "application/octet-stream", "\x01\x02\x03")

	data, err := b.Bytes()
	if err != nil {
		t.Fatal(err)
	}
	blob, err := b.Blob()
	if err != nil {
		t.Fatal(err)
	}

	if want, have := string(data), blob.Text(); want != have {
		t.Errorf("unexpected blob, want: %q, have: %q", want, have)
	}
	if want, have := "application/octet-stream", blob.Type; want != have {
		t.Errorf("unexpected blob type, want: %q, have: %q", want, have)
	}
	if want, have := int64(3), blob.Size(); want != have {
		t.Errorf("unexpected blob size, want: %d, have: %d", want, have)
	}
}

func TestBody_directReadDisturbs(t *testing.T) {
	b, _, _ := newTestBody(http.MethodPut, "", "abc")

	buf := make([]byte, 1)
	if _, err := b.Body().Read(buf); err != nil {
		t.Fatal(err)
	}
	if !b.BodyUsed() {
		t.Error("expected body to be used")
	}
	if _, err := b.Text(); !errors.Is(err, ErrBodyUsed) {
		t.Errorf("expected ErrBodyUsed, have: %v", err)
	}
}

func TestBody_readErrorMemoized(t *testing.T) {
	readErr := errors.New("connection reset")
	src := &countingReader{err: readErr}
	b := NewBody(http.MethodPost, nil, func() io.ReadCloser { return src })

	for i := 0; i < 2; i++ {
		if _, err := b.Text(); !errors.Is(err, readErr) {
			t.Errorf("call %d: expected read error, have: %v", i, err)
		}
	}
	if want, have := 1, src.reads; want != have {
		t.Errorf("read retried, want: %d, have: %d", want, have)
	}
}

func TestBody_JSON(t *testing.T) {
	b, _, _ := newTestBody(http.MethodPost, "application/json", `{"foo":"bar"}`)

	for i := 0; i < 2; i++ {
		var v struct{ Foo string }
		if err := b.JSON(&v); err != nil {
			t.Fatal(err)
		}
		if want, have := "bar", v.Foo; want != have {
			t.Errorf("unexpected value, want: %q, have: %q", want, have)
		}
	}
}

func TestBody_FormData(t *testing.T) {
	tests := []struct {
		name, contentType, content string
		want                       string
		wantErr                    error
	}{
		{
			name:        "urlencoded",
			contentType: "application/x-www-form-urlencoded",
			content:     "a=1&b=2",
			want:        "1",
		},
		{
			name:        "multipart",
			contentType: "multipart/form-data; boundary=XX",
			content:     "--XX\r\nContent-Disposition: form-data; name=\"a\"\r\n\r\n1\r\n--XX--\r\n",
			want:        "1",
		},
		{
			name:        "unsupported",
			contentType: "text/plain",
			content:     "a=1",
			wantErr:     ErrUnsupportedForm,
		},
	}

	for _, tt := range tests {
		tc := tt
		t.Run(tc.name, func(t *testing.T) {
			b, _, _ := newTestBody(http.MethodPost, tc.contentType, tc.content)

			form, err := b.FormData()
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("expected %v, have: %v", tc.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if want, have := tc.want, form.Value["a"][0]; want != have {
				t.Errorf("unexpected value, want: %q, have: %q", want, have)
			}
		})
	}
}
