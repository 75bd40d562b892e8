package plugins

import (
	"errors"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/unihttp/unihttp-go"
	"github.com/unihttp/unihttp-go/fetch"
)

var (
	requestsOpts = prometheus.CounterOpts{
		Namespace: "unihttp",
		Name:      "requests_total",
		Help:      "Requests served, by runtime, method and status. Status is \"error\" when the chain failed.",
	}
	durationOpts = prometheus.HistogramOpts{
		Namespace: "unihttp",
		Name:      "request_duration_seconds",
		Help:      "Time until the response was produced, by runtime and method.",
		Buckets:   prometheus.DefBuckets,
	}
)

// Metrics appends middleware that counts requests and observes their
// duration on reg. Registering on the same reg twice reuses the collectors.
func Metrics(reg prometheus.Registerer) unihttp.Plugin {
	requests := register(reg, prometheus.NewCounterVec(requestsOpts, []string{"runtime", "method", "status"}))
	duration := register(reg, prometheus.NewHistogramVec(durationOpts, []string{"runtime", "method"}))

	mw := func(req fetch.Request, next fetch.Next) (*fetch.Response, error) {
		start := time.Now()
		resp, err := next(req)

		runtime, method := string(req.Runtime().Name), req.Method()
		status := "error"
		if err == nil && resp != nil {
			status = strconv.Itoa(resp.Status())
		}
		requests.WithLabelValues(runtime, method, status).Inc()
		duration.WithLabelValues(runtime, method).Observe(time.Since(start).Seconds())
		return resp, err
	}

	return func(s *unihttp.Server) {
		s.Middleware = append(s.Middleware, fetch.Named("metrics", mw))
	}
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) C {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing
			}
		}
		panic(err)
	}
	return c
}
