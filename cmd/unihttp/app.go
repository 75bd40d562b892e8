package main

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/unihttp/unihttp-go/bridge"
	"github.com/unihttp/unihttp-go/fetch"
)

type appConfig struct {
	metrics     bool
	metricsPath string
	gatherer    prometheus.Gatherer
}

// newApp returns the demo application. Paths under /native are served by a
// gorilla/mux router through the bridge, as is the metrics endpoint.
func newApp(cfg appConfig) fetch.Handler {
	router := mux.NewRouter()
	router.HandleFunc("/native/hello/{name}", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"hello": mux.Vars(r)["name"]})
	}).Methods(http.MethodGet)
	router.HandleFunc("/native/echo", func(w http.ResponseWriter, r *http.Request) {
		if ct := r.Header.Get("Content-Type"); ct != "" {
			w.Header().Set("Content-Type", ct)
		}
		_, _ = io.Copy(w, r.Body)
	}).Methods(http.MethodPost, http.MethodPut)
	native := bridge.ToStandard(router)

	var metrics fetch.Handler
	if cfg.metrics {
		metrics = bridge.ToStandard(promhttp.HandlerFor(cfg.gatherer, promhttp.HandlerOpts{}))
	}

	return fetch.HandlerFunc(func(req fetch.Request) (*fetch.Response, error) {
		path := req.ParsedURL().Pathname()
		switch {
		case metrics != nil && path == cfg.metricsPath:
			return metrics.ServeFetch(req)
		case path == "/healthz":
			return fetch.Text(http.StatusOK, "ok"), nil
		case path == "/":
			return fetch.JSONResponse(map[string]any{
				"runtime": req.Runtime().Name,
				"ip":      req.IP(),
				"time":    time.Now().UTC().Format(time.RFC3339),
			}, nil)
		case strings.HasPrefix(path, "/native/"):
			return native.ServeFetch(req)
		}
		return fetch.Text(http.StatusNotFound, http.StatusText(http.StatusNotFound)), nil
	})
}
