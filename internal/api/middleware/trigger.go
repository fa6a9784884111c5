package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/contentpilot-ai/contentpilot/internal/api/dto"
)

// TriggerAuth guards the internal polling endpoint with a shared bearer
// secret. Comparison is constant time so the token cannot be probed byte by
// byte.
type TriggerAuth struct {
	token string
}

func NewTriggerAuth(token string) *TriggerAuth {
	return &TriggerAuth{token: token}
}

func (m *TriggerAuth) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		presented := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if presented == "" || subtle.ConstantTimeCompare([]byte(presented), []byte(m.token)) != 1 {
			dto.Unauthorized(w, "invalid trigger token")
			return
		}
		next.ServeHTTP(w, r)
	})
}
