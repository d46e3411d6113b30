package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/xtrntr/papertrade/internal/apperr"
	"github.com/xtrntr/papertrade/internal/ledger"
)

// sessionCookie carries the session token for browser clients
const sessionCookie = "session"

type userIDKey struct{}

// UserIDFrom returns the authenticated user id placed on the context by RequireSession
func UserIDFrom(ctx context.Context) (int, bool) {
	id, ok := ctx.Value(userIDKey{}).(int)
	return id, ok
}

// RequireSession admits requests carrying a valid session for an existing user.
// Requests without any session are redirected to the login page; an invalid
// bearer token gets 401.
func (h *Handler) RequireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, fromCookie := sessionToken(r)
		if token == "" {
			http.Redirect(w, r, "/login", http.StatusSeeOther)
			return
		}

		userID, err := h.sessionUser(r.Context(), token)
		switch {
		case err == nil:
		case apperr.KindOf(err) != apperr.Unauthenticated:
			h.logger().Error("session lookup failed", "request_id", middleware.GetReqID(r.Context()), "error", err)
			writeError(w, err)
			return
		case fromCookie:
			clearSession(w)
			http.Redirect(w, r, "/login", http.StatusSeeOther)
			return
		default:
			writeError(w, err)
			return
		}

		ctx := context.WithValue(r.Context(), userIDKey{}, userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// sessionUser resolves a token to a user that still exists. Tokens outlive
// the store they were issued against (a memory store restart, a wiped database).
func (h *Handler) sessionUser(ctx context.Context, token string) (int, error) {
	userID, err := h.AuthService.UserFromToken(token)
	if err != nil {
		return 0, err
	}
	if _, err := h.Store.User(ctx, userID); err != nil {
		if errors.Is(err, ledger.ErrUserNotFound) {
			return 0, apperr.New(apperr.Unauthenticated, "invalid or expired session")
		}
		return 0, err
	}
	return userID, nil
}

func sessionToken(r *http.Request) (token string, fromCookie bool) {
	if header := r.Header.Get("Authorization"); header != "" {
		return strings.TrimSpace(strings.TrimPrefix(header, "Bearer ")), false
	}
	if c, err := r.Cookie(sessionCookie); err == nil {
		return c.Value, true
	}
	return "", false
}

func clearSession(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// NoCache stops browsers from caching ledger views
func NoCache(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
		w.Header().Set("Expires", "0")
		w.Header().Set("Pragma", "no-cache")
		next.ServeHTTP(w, r)
	})
}

// Recoverer turns a panic into a generic 500 response
func (h *Handler) Recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			h.logger().Error("panic serving request",
				"method", r.Method, "path", r.URL.Path, "request_id", middleware.GetReqID(r.Context()), "panic", rec)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		}()
		next.ServeHTTP(w, r)
	})
}

// RequestLogger logs one line per request
func (h *Handler) RequestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		level := slog.LevelInfo
		if status >= http.StatusInternalServerError {
			level = slog.LevelError
		}
		h.logger().Log(r.Context(), level, "request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", status,
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
