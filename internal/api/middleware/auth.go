package middleware

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/contentpilot-ai/contentpilot/internal/api/dto"
	"github.com/contentpilot-ai/contentpilot/internal/domain/models"
)

type contextKey string

const ownerContextKey contextKey = "owner"

type apiKeyStore interface {
	FindByHash(ctx context.Context, keyHash string) (*models.APIKey, error)
	TouchLastUsed(ctx context.Context, keyHash string) error
}

// AuthMiddleware authenticates owner-facing requests with an API key. Only
// the SHA-256 digest of the presented key is ever compared or stored.
type AuthMiddleware struct {
	keys apiKeyStore
}

func NewAuthMiddleware(keys apiKeyStore) *AuthMiddleware {
	return &AuthMiddleware{keys: keys}
}

func (m *AuthMiddleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := extractAPIKey(r)
		if raw == "" {
			dto.Unauthorized(w, "missing API key")
			return
		}

		sum := sha256.Sum256([]byte(raw))
		keyHash := hex.EncodeToString(sum[:])

		key, err := m.keys.FindByHash(r.Context(), keyHash)
		if err != nil {
			dto.Unauthorized(w, "invalid API key")
			return
		}

		if err := m.keys.TouchLastUsed(r.Context(), keyHash); err != nil {
			log.Warn().Err(err).Msg("Failed to update API key last_used_at")
		}

		ctx := context.WithValue(r.Context(), ownerContextKey, key.UserID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func extractAPIKey(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return r.Header.Get("X-API-Key")
}

// OwnerFromContext returns the authenticated owner's ID.
func OwnerFromContext(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(ownerContextKey).(uuid.UUID)
	return id, ok
}
