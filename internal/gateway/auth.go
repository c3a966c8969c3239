package gateway

import (
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// authMiddleware rejects requests without a valid HS256 bearer token.
func (g *Gateway) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			writeError(w, http.StatusUnauthorized, "Missing Authorization Header")
			return
		}

		headerParts := strings.Split(authHeader, " ")
		if len(headerParts) != 2 || strings.ToLower(headerParts[0]) != "bearer" {
			writeError(w, http.StatusUnauthorized, "Invalid Authorization Header")
			return
		}

		token, err := jwt.Parse(headerParts[1], func(*jwt.Token) (any, error) {
			return g.adminSecret, nil
		}, jwt.WithValidMethods([]string{"HS256"}))
		if err != nil || !token.Valid {
			g.logger.Printf("gateway: rejecting admin token for %s: %v", r.URL.Path, err)
			writeError(w, http.StatusUnauthorized, "Invalid Token")
			return
		}

		sub, _ := token.Claims.GetSubject()
		g.logger.Printf("gateway: admin token valid for %q on %s", sub, r.URL.Path)
		next.ServeHTTP(w, r)
	})
}
