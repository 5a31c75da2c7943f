package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/koltyakov/servgate/internal/domain"
	"github.com/koltyakov/servgate/internal/status"
)

// requireToken admits requests whose body carries a persisted token and
// stores the token record in the request context.
func (h *Handler) requireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bodyFrom(r.Context()).str("token")
		if token == "" {
			h.write(w, r, status.BadTokenException, nil)
			return
		}
		rec, err := h.store.GetToken(r.Context(), token)
		if errors.Is(err, domain.ErrTokenNotFound) {
			h.write(w, r, status.BadTokenException, nil)
			return
		}
		if err != nil {
			h.internalError(w, r, "get token", err)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), tokenKey, rec)))
	})
}

// TokenFromContext returns the token record admitted by the auth gate.
func TokenFromContext(ctx context.Context) (domain.Token, bool) {
	rec, ok := ctx.Value(tokenKey).(domain.Token)
	return rec, ok
}
