package tck_test

import (
	"context"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/unihttp/unihttp-go"
	"github.com/unihttp/unihttp-go/fetch"
	"github.com/unihttp/unihttp-go/tck"
)

func TestTCK(t *testing.T) {
	for _, rt := range []fetch.RuntimeName{fetch.RuntimeNetHTTP, fetch.RuntimeFastHTTP, fetch.RuntimeWorker} {
		rt := rt
		t.Run(string(rt), func(t *testing.T) {
			srv := tck.New(unihttp.Runtime(rt))

			ln, err := net.Listen("tcp", "127.0.0.1:0")
			if err != nil {
				t.Fatal(err)
			}
			ctx, cancel := context.WithCancel(context.Background())
			done := make(chan error, 1)
			go func() { done <- srv.Serve(ctx, ln) }()

			client := &http.Client{Transport: &http.Transport{DisableKeepAlives: true}}
			tck.Run(t, client, "http://"+ln.Addr().String())

			cancel()
			select {
			case err := <-done:
				if err != nil {
					t.Error(err)
				}
			case <-time.After(5 * time.Second):
				t.Error("server didn't stop")
			}
		})
	}
}
