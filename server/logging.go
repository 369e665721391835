package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
)

// logged writes one debug-level access log line per request.
func (app *App) logged(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		attributes := []any{
			slog.String("verb", r.Method),
			slog.String("url", r.URL.String()),
			slog.String("user_agent", r.UserAgent()),
			slog.String("remote_addr", r.RemoteAddr),
			slog.Int("status_code", ww.Status()),
			slog.Int("bytes", ww.BytesWritten()),
			slog.Duration("elapsed", time.Since(start)),
		}
		if reqID := middleware.GetReqID(r.Context()); reqID != "" {
			attributes = append(attributes, slog.String("req_id", reqID))
		}
		if target := r.Header.Get(headerTarget); target != "" {
			attributes = append(attributes, slog.String("method", target))
		} else if action := r.Form.Get("Action"); action != "" {
			attributes = append(attributes, slog.String("method", action))
		}
		app.log.Debug("http-request", attributes...)
	})
}
