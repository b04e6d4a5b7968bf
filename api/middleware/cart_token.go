package middleware

import (
	"net/http"
	"strings"

	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

// CartTokenHeader carries the anonymous cart for API clients; browsers use the cookie.
const CartTokenHeader = "X-Cart-Token"

// CartToken reads the anonymous cart token from the header, falling back to the cookie,
// and tags log entries with the cart owner.
func CartToken(cfg config.CartTokenConfig, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := strings.TrimSpace(r.Header.Get(CartTokenHeader))
			if token == "" && cfg.CookieName != "" {
				if cookie, err := r.Cookie(cfg.CookieName); err == nil {
					token = strings.TrimSpace(cookie.Value)
				}
			}
			ctx := WithCartToken(r.Context(), token)
			if logg != nil {
				ctx = logg.WithCartOwner(ctx, UserIDFromContext(ctx))
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// IssueCartToken re-issues the anonymous cart token in both the header and the cookie.
// An empty token means the owner is authenticated and nothing is written.
func IssueCartToken(w http.ResponseWriter, cfg config.CartTokenConfig, token string) {
	if token == "" {
		return
	}
	w.Header().Set(CartTokenHeader, token)
	if cfg.CookieName == "" {
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     cfg.CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(cfg.TTL.Seconds()),
		HttpOnly: true,
		Secure:   cfg.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}
