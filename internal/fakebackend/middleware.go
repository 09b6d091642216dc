package fakebackend

import (
	"context"
	"net/http"

	"github.com/MrEthical07/goSession/jwt"
)

type claimsKey struct{}

func (b *Backend) requireBearer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b.apiCalls.Add(1)
		res := b.verifier.Verify(bearer(r))
		if !res.Valid {
			writeJSON(w, http.StatusUnauthorized, messageResponse{Message: "invalid or expired token"})
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), claimsKey{}, res.Claims)))
	})
}

func claimsFrom(r *http.Request) *jwt.Claims {
	c, _ := r.Context().Value(claimsKey{}).(*jwt.Claims)
	return c
}
