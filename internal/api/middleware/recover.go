package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/sourcegraph/conc/panics"

	"honeypot-lab/internal/domain/models"
	"honeypot-lab/pkg/logger"
)

// Recover turns a handler panic into a 200 error envelope. Callers of the
// honeypot never see a 5xx.
func Recover(log *logger.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var pc panics.Catcher
			pc.Try(func() { next.ServeHTTP(w, r) })

			rec := pc.Recovered()
			if rec == nil {
				return
			}
			if rec.Value == http.ErrAbortHandler {
				panic(rec.Value)
			}

			log.Error().
				Str("panic", rec.String()).
				Str("path", r.URL.Path).
				Str("request_id", middleware.GetReqID(r.Context())).
				Msg("handler panicked")

			eng := models.Engagement{Outcome: models.OutcomeError}
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.WriteHeader(http.StatusOK)
			_ = json.NewEncoder(w).Encode(eng.Envelope())
		})
	}
}
