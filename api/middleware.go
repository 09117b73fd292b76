package api

import (
	"errors"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/consad/compras/session"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"
)

// RequestLogger logs one line per request.
func RequestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		defer func() {
			log.Info().
				Str("request_id", middleware.GetReqID(r.Context())).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Int("bytes", ww.BytesWritten()).
				Dur("latency", time.Since(start)).
				Msg("request")
		}()

		next.ServeHTTP(ww, r)
	})
}

// Recoverer turns a panic into a logged generic error page.
func Recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}

			log.Error().
				Str("request_id", middleware.GetReqID(r.Context())).
				Interface("panic", rec).
				Bytes("stack", debug.Stack()).
				Msg("recovered from panic")
			writeErrorPage(w, http.StatusInternalServerError)
		}()

		next.ServeHTTP(w, r)
	})
}

// LoadIdentity resolves the session cookie and stores the identity on the
// request context. It never rejects a request.
func (h *Handler) LoadIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := r.Cookie(h.cookie.Name)
		if err != nil || c.Value == "" {
			next.ServeHTTP(w, r)
			return
		}

		identity, err := h.sessions.Authenticate(r.Context(), c.Value)
		if err != nil {
			if !errors.Is(err, session.ErrInvalidCookie) && !errors.Is(err, session.ErrNoSession) {
				log.Error().Err(err).Msg("session lookup failed")
			}
			next.ServeHTTP(w, r)
			return
		}

		next.ServeHTTP(w, r.WithContext(session.WithIdentity(r.Context(), identity)))
	})
}

// RequireAuth redirects anonymous requests to the home page.
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !session.IsAuthenticated(r.Context()) {
			http.Redirect(w, r, "/", http.StatusFound)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireAuthJSON answers anonymous requests with {"success": false}.
func RequireAuthJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !session.IsAuthenticated(r.Context()) {
			writeJSON(w, http.StatusOK, SuccessResponse{Success: false})
			return
		}
		next.ServeHTTP(w, r)
	})
}
