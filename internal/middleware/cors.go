package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// CORSConfig holds configuration for the CORS middleware.
type CORSConfig struct {
	// AllowedOrigins is the list of origins permitted to make cross-origin
	// requests. Use ["*"] to allow all (not recommended for production).
	// Example: ["https://gallery.example.com", "http://localhost:3000"]
	AllowedOrigins []string

	// AllowCredentials indicates whether the browser should include cookies
	// and auth headers in cross-origin requests.
	AllowCredentials bool
}

var (
	corsAllowMethods = strings.Join([]string{
		http.MethodGet,
		http.MethodPost,
		http.MethodPut,
		http.MethodPatch,
		http.MethodDelete,
		http.MethodOptions,
	}, ", ")

	corsAllowHeaders = strings.Join([]string{
		"Content-Type",
		"Authorization",
		RequestIDHeader,
	}, ", ")

	// Headers a browser client needs to read from list responses.
	corsExposeHeaders = strings.Join([]string{
		"X-Total-Count",
		"X-Gallery-Warning",
		RequestIDHeader,
	}, ", ")
)

// CORS returns middleware that handles Cross-Origin Resource Sharing headers
// for the JSON API, so a gallery front end served from another origin can
// call it.
func CORS(cfg CORSConfig) echo.MiddlewareFunc {
	allowAll := false
	originSet := make(map[string]bool)
	for _, o := range cfg.AllowedOrigins {
		if o == "*" {
			allowAll = true
		}
		originSet[o] = true
	}

	// SECURITY: Wildcard origin with credentials would let any website make
	// authenticated requests. Credentials are never sent for a wildcard.
	if allowAll && cfg.AllowCredentials {
		slog.Warn("CORS misconfiguration: AllowedOrigins=['*'] with AllowCredentials=true; credentials will not be sent for wildcard origins")
		cfg.AllowCredentials = false
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			res := c.Response()
			origin := req.Header.Get("Origin")

			// No Origin header means same-origin request -- skip CORS.
			if origin == "" {
				return next(c)
			}

			// Origin not in whitelist -- proceed without CORS headers.
			// The browser will block the response on the client side.
			if !allowAll && !originSet[origin] {
				return next(c)
			}

			res.Header().Set("Access-Control-Allow-Origin", origin)
			res.Header().Add("Vary", "Origin")
			if cfg.AllowCredentials {
				res.Header().Set("Access-Control-Allow-Credentials", "true")
			}

			if req.Method == http.MethodOptions {
				res.Header().Set("Access-Control-Allow-Methods", corsAllowMethods)
				res.Header().Set("Access-Control-Allow-Headers", corsAllowHeaders)
				// Cache preflight response for 1 hour.
				res.Header().Set("Access-Control-Max-Age", "3600")
				return c.NoContent(http.StatusNoContent)
			}

			res.Header().Set("Access-Control-Expose-Headers", corsExposeHeaders)
			return next(c)
		}
	}
}
