// Package middleware provides HTTP middleware for the gallery Echo server.
// Middleware is applied globally (all routes) or per-route group depending
// on the middleware type. See internal/app/routes.go for registration.
package middleware

import (
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/keyxmakerx/gallery/internal/metrics"
)

// RequestIDHeader carries the request id in both directions.
const RequestIDHeader = "X-Request-ID"

// requestIDKey is the echo context key holding the request id.
const requestIDKey = "request_id"

// RequestID returns the id assigned to the current request, or "".
func RequestID(c echo.Context) string {
	id, _ := c.Get(requestIDKey).(string)
	return id
}

// RequestLogger returns middleware that logs every HTTP request with
// structured fields: method, path, status, latency, remote IP and request
// id, and records the request in the API metrics. A client-supplied
// X-Request-ID is reused; otherwise a new UUID is assigned.
func RequestLogger() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			req := c.Request()
			res := c.Response()

			id := req.Header.Get(RequestIDHeader)
			if id == "" || len(id) > 128 {
				id = uuid.NewString()
			}
			c.Set(requestIDKey, id)
			res.Header().Set(RequestIDHeader, id)

			err := next(c)
			if err != nil {
				// Render now so the logged status is the one the client gets.
				c.Error(err)
			}

			// Log after the request completes so we have the status code.
			latency := time.Since(start)

			attrs := []slog.Attr{
				slog.String("method", req.Method),
				slog.String("path", req.URL.Path),
				slog.Int("status", res.Status),
				slog.Duration("latency", latency),
				slog.String("remote_ip", c.RealIP()),
				slog.String("request_id", id),
			}

			// Include query string if present.
			if req.URL.RawQuery != "" {
				attrs = append(attrs, slog.String("query", req.URL.RawQuery))
			}

			// Log at different levels based on status code.
			level := slog.LevelInfo
			if res.Status >= 500 {
				level = slog.LevelError
			} else if res.Status >= 400 {
				level = slog.LevelWarn
			}

			slog.LogAttrs(req.Context(), level, "request", attrs...)

			// The route template keeps label cardinality bounded.
			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			metrics.RecordAPIRequest(req.Method, route, strconv.Itoa(res.Status), latency)

			return nil
		}
	}
}
