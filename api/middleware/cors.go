package middleware

import (
	"net/http"
	"strings"

	"github.com/go-chi/cors"
)

// CORS admits the configured storefront origins. With no origins configured the
// local dev storefront is the only one allowed; a "*" entry is dropped because
// credentialed requests cannot use a wildcard.
func CORS(origins []string) func(http.Handler) http.Handler {
	allowed := make([]string, 0, len(origins))
	for _, origin := range origins {
		origin = strings.TrimRight(strings.TrimSpace(origin), "/")
		if origin == "" || origin == "*" {
			continue
		}
		allowed = append(allowed, origin)
	}
	if len(allowed) == 0 {
		allowed = []string{"http://localhost:3000"}
	}

	return cors.Handler(cors.Options{
		AllowedOrigins: allowed,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{
			"Accept",
			"Authorization",
			"Content-Type",
			CartTokenHeader,
			idempotencyHeader,
			RequestIDHeader,
		},
		ExposedHeaders:   []string{CartTokenHeader, RequestIDHeader},
		AllowCredentials: true,
		MaxAge:           600,
	})
}
