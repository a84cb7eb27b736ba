package handler

import (
	"net/http"
	"strings"

	"github.com/cvbank/cvbank-backend/pkg/errors"
	"github.com/cvbank/cvbank-backend/pkg/httputil"
	"github.com/cvbank/cvbank-backend/pkg/logger"
)

var errUnauthorized = errors.Unauthenticated("Unauthorized")

// Authenticate requires a valid session. The access token comes from the
// accessToken cookie or an "Authorization: Bearer" header. When it is missing
// or expired a valid refreshToken cookie mints a new access cookie. Any other
// failure clears both cookies and answers 401, or 403 for a disabled account.
func (h *AuthHandler) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		access := bearerToken(r)
		if c, err := r.Cookie(AccessCookie); err == nil && c.Value != "" {
			access = c.Value
		}
		var refresh string
		if c, err := r.Cookie(RefreshCookie); err == nil {
			refresh = c.Value
		}

		session, err := h.service.Authenticate(r.Context(), access, refresh)
		if err != nil {
			h.clearSessionCookies(w)
			switch {
			case errors.Is(err, errors.ErrUnauthenticated):
				httputil.Error(w, errUnauthorized)
				return
			case errors.Is(err, errors.ErrForbidden):
				httputil.Error(w, err)
				return
			}
			logger.FromContext(r.Context(), h.logger).Error().Err(err).Msg("authentication lookup failed")
			httputil.Error(w, err)
			return
		}

		if session.RefreshedAccessToken != "" {
			h.setCookie(w, AccessCookie, session.RefreshedAccessToken, session.AccessExpiresAt)
		}

		ctx := httputil.WithUserContext(r.Context(), session.User.ID, session.User.Email)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func bearerToken(r *http.Request) string {
	parts := strings.SplitN(r.Header.Get("Authorization"), " ", 2)
	if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
		return strings.TrimSpace(parts[1])
	}
	return ""
}
