package auth

import (
	"encoding/json"
	"net/http"

	"chat-relay/errors"
)

// Middleware authenticates HTTP requests. Browsers cannot set headers on a
// WebSocket handshake, so the access_token query parameter is accepted too.
func (m *TokenManager) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, err := m.FromRequest(r)
		if err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(map[string]any{
				"error": map[string]string{"code": string(errors.ClassUnauthorized), "message": err.Error()},
			})
			return
		}
		next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
	})
}

func (m *TokenManager) FromRequest(r *http.Request) (*CustomClaims, error) {
	token, err := BearerToken(r.Header.Get("Authorization"))
	if err != nil {
		token = r.URL.Query().Get("access_token")
		if token == "" {
			return nil, err
		}
	}
	return m.Validate(token)
}
