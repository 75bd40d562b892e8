package plugins

import (
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/unihttp/unihttp-go"
	"github.com/unihttp/unihttp-go/fetch"
)

// AccessLog appends middleware that logs one line per request. A nil logger
// uses Server.Logger.
func AccessLog(logger *zap.Logger) unihttp.Plugin {
	return func(s *unihttp.Server) {
		l := logger
		if l == nil {
			l = s.Logger
		}
		s.Middleware = append(s.Middleware, fetch.Named("access-log", accessLog(l)))
	}
}

func accessLog(logger *zap.Logger) fetch.Middleware {
	return func(req fetch.Request, next fetch.Next) (*fetch.Response, error) {
		start := time.Now()
		resp, err := next(req)

		fields := []zap.Field{
			zap.String("runtime", string(req.Runtime().Name)),
			zap.String("method", req.Method()),
			zap.String("url", req.URL()),
			zap.String("ip", req.IP()),
			zap.Duration("duration", time.Since(start)),
		}
		if err != nil || resp == nil {
			logger.Warn("request failed", append(fields, zap.Error(err))...)
			return resp, err
		}
		fields = append(fields, zap.String("status", strconv.Itoa(resp.Status())))
		logger.Info("request", fields...)
		return resp, nil
	}
}
