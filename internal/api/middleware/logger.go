package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"honeypot-lab/pkg/logger"
)

// quietPaths are polled by orchestrators and logged at debug level
var quietPaths = map[string]bool{
	"/health":  true,
	"/ready":   true,
	"/metrics": true,
}

// Logger returns a middleware that logs every request once it completes.
// Engagements log at info, status checks and preflights at debug.
func Logger(log *logger.Logger) func(next http.Handler) http.Handler {
	log = log.WithComponent("http")
	return func(next http.Handler) http.Handler {
		fn := func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()

			defer func() {
				var ev *zerolog.Event
				switch {
				case ww.Status() >= http.StatusInternalServerError:
					ev = log.Warn()
				case r.Method == http.MethodOptions || quietPaths[r.URL.Path]:
					ev = log.Debug()
				default:
					ev = log.Info()
				}
				ev.Str("method", r.Method).
					Str("path", r.URL.Path).
					Str("client", r.RemoteAddr).
					Int("status", ww.Status()).
					Int("bytes", ww.BytesWritten()).
					Dur("duration", time.Since(start)).
					Str("request_id", middleware.GetReqID(r.Context())).
					Msg("request completed")
			}()

			next.ServeHTTP(ww, r)
		}
		return http.HandlerFunc(fn)
	}
}
