package middleware

import (
	"net/http"
	"slices"

	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/go-chi/cors"
)

const tokenHeader = "X-Storefront-Token"

// CORS applies the configured origin allow-list. Credentials are refused when
// the list contains "*", which browsers would reject anyway.
func CORS(cfg config.CORSConfig) func(http.Handler) http.Handler {
	return cors.Handler(cors.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		AllowedMethods: []string{
			http.MethodGet, http.MethodPost, http.MethodPut,
			http.MethodPatch, http.MethodDelete, http.MethodOptions,
		},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", requestIDHeader},
		ExposedHeaders:   []string{requestIDHeader, tokenHeader, "Retry-After"},
		AllowCredentials: !slices.Contains(cfg.AllowedOrigins, "*"),
		MaxAge:           600,
	})
}
