package middleware

import (
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/trace"
)

type RouteMiddleware func(http.HandlerFunc) http.HandlerFunc

// SetRouteChain wraps h so that the first middleware runs first.
func SetRouteChain(h http.HandlerFunc, middlewares ...RouteMiddleware) http.HandlerFunc {
	for i := len(middlewares) - 1; i >= 0; i-- {
		h = middlewares[i](h)
	}

	return h
}

func SetChain(h http.Handler, middlewares ...func(http.Handler) http.Handler) http.Handler {
	for i := len(middlewares) - 1; i >= 0; i-- {
		h = middlewares[i](h)
	}

	return h
}

// HTTPResponseTraceInjection exposes the active trace id to the client.
func HTTPResponseTraceInjection(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sc := trace.SpanContextFromContext(r.Context())
		if sc.HasTraceID() {
			w.Header().Set("X-Trace-Id", sc.TraceID().String())
		}

		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

type HTTPRequestLogger struct {
	logger          *logrus.Logger
	debug           bool
	errorStatusFrom int
}

func NewHTTPRequestLogger(logger *logrus.Logger, debug bool, errorStatusFrom int) *HTTPRequestLogger {
	return &HTTPRequestLogger{
		logger:          logger,
		debug:           debug,
		errorStatusFrom: errorStatusFrom,
	}
}

func (l *HTTPRequestLogger) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		defer func() {
			if v := recover(); v != nil {
				l.logger.WithContext(r.Context()).WithField("panic", v).Error("recovered from panic")
				http.Error(w, "internal server error", http.StatusInternalServerError)
				return
			}

			entry := l.logger.WithContext(r.Context()).WithFields(logrus.Fields{
				"method":  r.Method,
				"path":    r.URL.Path,
				"status":  rec.status,
				"latency": time.Since(start).String(),
			})

			switch {
			case rec.status >= l.errorStatusFrom:
				entry.Error("http request")
			case l.debug:
				entry.Debug("http request")
			default:
				entry.Info("http request")
			}
		}()

		next.ServeHTTP(rec, r)
	})
}
