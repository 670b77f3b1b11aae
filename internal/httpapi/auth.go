package httpapi

import (
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// requireAuth accepts "Authorization: Bearer <jwt>" signed with HS256 and the shared secret.
func (a *API) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := bearerToken(r.Header.Get("Authorization"))
		if raw == "" {
			writeMessage(w, http.StatusUnauthorized, msgAccessDenied)
			return
		}

		_, err := jwt.Parse(raw, func(*jwt.Token) (any, error) {
			return a.secret, nil
		}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
		if err != nil {
			writeMessage(w, http.StatusUnauthorized, msgInvalidToken)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func bearerToken(header string) string {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
