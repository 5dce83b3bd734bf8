package endpoints

import (
	"context"
	"net/http"
	"strings"

	"github.com/agubarev/aegis/internal/core"
	"github.com/agubarev/aegis/pkg/security/session"
	"github.com/agubarev/aegis/pkg/util"
	"go.uber.org/zap"
)

// MiddlewareSession validates the bearer session token and adds its
// claims to the context; when roles are given, only those are admitted
func MiddlewareSession(c *core.Core, roles ...session.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			parts := strings.SplitN(r.Header.Get("Authorization"), " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
				util.WriteResponseErrorTo(w, "authentication", ErrMissingSession, http.StatusUnauthorized)
				return
			}

			claims, err := c.Sessions().Validate(strings.TrimSpace(parts[1]))
			if err != nil {
				c.Logger().Warn(
					"session rejected",
					zap.String("remote_addr", r.RemoteAddr),
					zap.Error(err),
				)

				util.WriteResponseErrorTo(w, "authentication", err, statusFor(err))
				return
			}

			if len(roles) > 0 && !hasRole(claims.Identity.Role, roles) {
				util.WriteResponseErrorTo(w, "authorization", ErrForbidden, http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), CKClaims, claims)))
		})
	}
}

func hasRole(role session.Role, roles []session.Role) bool {
	for _, r := range roles {
		if r == role {
			return true
		}
	}

	return false
}

// ClaimsFromContext returns the session claims stored by MiddlewareSession
func ClaimsFromContext(ctx context.Context) (session.Claims, bool) {
	claims, ok := ctx.Value(CKClaims).(session.Claims)
	return claims, ok
}

// DeviceCredential extracts the agent credential from "Authorization: Device <credential>"
func DeviceCredential(r *http.Request) string {
	parts := strings.SplitN(r.Header.Get("Authorization"), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "device") {
		return ""
	}

	return strings.TrimSpace(parts[1])
}
