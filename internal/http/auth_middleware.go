package httpx

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"wasmgate/internal/domain"
	"wasmgate/internal/service/auth"
	"wasmgate/pkg/crypto"
)

type authContextKey string

const contextKeyAuth authContextKey = "wasmgate-auth-info"

type authInfo struct {
	Credential domain.Credential
	Limits     domain.TierLimits
}

// requireAuth resolves the bearer API key before invoking the handler.
func (r *Router) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		secret, err := bearerToken(req.Header.Get("Authorization"))
		if err != nil {
			r.logger.Warn("authorization header invalid", "error", err, "path", req.URL.Path)
			writeError(w, http.StatusUnauthorized, "authentication required")
			return
		}
		credential, limits, err := r.auth.Resolve(req.Context(), secret)
		if err != nil {
			switch {
			case errors.Is(err, auth.ErrNotFound):
				writeError(w, http.StatusUnauthorized, "invalid API key")
			case errors.Is(err, auth.ErrRevoked):
				writeError(w, http.StatusUnauthorized, "API key revoked")
			case errors.Is(err, auth.ErrExpired):
				writeError(w, http.StatusUnauthorized, "API key expired")
			default:
				r.logger.Error("credential resolution failed", "error", err)
				writeError(w, http.StatusInternalServerError, "authentication unavailable")
			}
			return
		}
		info := authInfo{Credential: credential, Limits: limits}
		ctx := context.WithValue(req.Context(), contextKeyAuth, info)
		next(w, req.WithContext(ctx))
	}
}

// requireAdmin gates admin endpoints behind the bcrypt-verified master token.
func (r *Router) requireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if r.cfg.AdminTokenHash == "" {
			writeError(w, http.StatusNotFound, "admin interface disabled")
			return
		}
		token, err := bearerToken(req.Header.Get("Authorization"))
		if err != nil {
			writeError(w, http.StatusUnauthorized, "authentication required")
			return
		}
		if err := crypto.CompareToken([]byte(r.cfg.AdminTokenHash), token); err != nil {
			r.logger.Warn("admin token rejected", "path", req.URL.Path)
			writeError(w, http.StatusForbidden, "invalid admin token")
			return
		}
		next(w, req)
	}
}

// authInfoFromContext extracts auth metadata from context.
func authInfoFromContext(ctx context.Context) (authInfo, bool) {
	value := ctx.Value(contextKeyAuth)
	if value == nil {
		return authInfo{}, false
	}
	info, ok := value.(authInfo)
	return info, ok
}

func bearerToken(header string) (string, error) {
	if strings.TrimSpace(header) == "" {
		return "", errors.New("missing authorization header")
	}
	parts := strings.Fields(header)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", errors.New("invalid authorization header format")
	}
	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", errors.New("empty bearer token")
	}
	return token, nil
}
