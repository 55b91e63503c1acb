// Package app is the application bootstrap and dependency injection root.
// It creates and holds all shared infrastructure (DB pool, Redis client,
// Echo instance) and wires together the plugins and widgets.
package app

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/goccy/go-json"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/keyxmakerx/gallery/internal/apperror"
	"github.com/keyxmakerx/gallery/internal/config"
	"github.com/keyxmakerx/gallery/internal/middleware"
)

// App holds all shared dependencies and the Echo HTTP server instance.
// Created once at startup in main.go and used to register all routes.
type App struct {
	// Config holds the loaded application configuration.
	Config *config.Config

	// DB is the MariaDB connection pool. Nil when the memory driver is used.
	DB *sql.DB

	// Redis backs the filter-option cache. Nil when REDIS_URL is unset.
	Redis *redis.Client

	// Echo is the HTTP server instance.
	Echo *echo.Echo

	// RateLimiter throttles /api/v1 per client IP. main.go runs its cleanup.
	RateLimiter *middleware.RateLimiter
}

// New creates a new App instance with the given dependencies and configures
// the Echo server with global middleware and error handling.
func New(cfg *config.Config, db *sql.DB, rdb *redis.Client) *App {
	e := echo.New()

	// Disable Echo's default banner and startup message -- we log our own.
	e.HideBanner = true
	e.HidePort = true

	e.JSONSerializer = jsonSerializer{}

	// Configure trusted reverse proxy IPs so c.RealIP() returns the actual
	// client IP instead of the proxy's IP. The rate limiter keys on it.
	middleware.TrustedProxies(e, cfg.TrustedProxies)

	app := &App{
		Config:      cfg,
		DB:          db,
		Redis:       rdb,
		Echo:        e,
		RateLimiter: middleware.NewRateLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst),
	}

	// Register global middleware in order of execution.
	app.setupMiddleware()

	// Register the custom error handler that maps AppErrors to HTTP responses.
	e.HTTPErrorHandler = app.errorHandler

	return app
}

// setupMiddleware registers global middleware on the Echo instance.
// The request logger is outermost so it sees the status written by recovery.
func (a *App) setupMiddleware() {
	a.Echo.Use(middleware.RequestLogger())

	// Panic recovery -- catches panics from every handler and later middleware.
	a.Echo.Use(middleware.Recovery())

	a.Echo.Use(middleware.SecurityHeaders())

	// CORS -- allow the gallery front end, served from BaseURL, to call the API.
	a.Echo.Use(middleware.CORS(middleware.CORSConfig{
		AllowedOrigins: []string{a.Config.BaseURL},
	}))
}

// errorResponse is the JSON body of every error reply.
type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

// errorHandler is the custom Echo error handler. It maps domain errors
// (AppError) and Echo's own HTTP errors to JSON responses. Anything else is
// logged and reported as a generic 500 so internals never reach the client.
func (a *App) errorHandler(err error, c echo.Context) {
	// Don't double-write if response is already committed.
	if c.Response().Committed {
		return
	}

	resp := a.errorBody(err, c)
	code := resp.code

	var writeErr error
	if c.Request().Method == http.MethodHead {
		writeErr = c.NoContent(code)
	} else {
		writeErr = c.JSON(code, resp.body)
	}
	if writeErr != nil {
		slog.Error("writing error response", slog.Any("error", writeErr))
	}
}

type errorReply struct {
	code int
	body errorResponse
}

func (a *App) errorBody(err error, c echo.Context) errorReply {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		// Log internal errors with the underlying cause.
		if appErr.Internal != nil {
			slog.Error("internal error",
				slog.String("type", appErr.Type),
				slog.String("message", appErr.Message),
				slog.Any("internal", appErr.Internal),
				slog.String("path", c.Request().URL.Path),
				slog.String("request_id", middleware.RequestID(c)),
			)
		}
		return errorReply{
			code: appErr.Code,
			body: errorResponse{
				Error:   http.StatusText(appErr.Code),
				Message: appErr.Message,
				Field:   appErr.Field,
			},
		}
	}

	// Echo's built-in HTTP errors (404 from the router, 405, bad binds).
	var echoErr *echo.HTTPError
	if errors.As(err, &echoErr) {
		message, ok := echoErr.Message.(string)
		if !ok {
			message = defaultErrorMessage(echoErr.Code)
		}
		return errorReply{
			code: echoErr.Code,
			body: errorResponse{Error: http.StatusText(echoErr.Code), Message: message},
		}
	}

	slog.Error("unhandled error",
		slog.Any("error", err),
		slog.String("path", c.Request().URL.Path),
		slog.String("request_id", middleware.RequestID(c)),
	)
	code := http.StatusInternalServerError
	return errorReply{
		code: code,
		body: errorResponse{Error: http.StatusText(code), Message: defaultErrorMessage(code)},
	}
}

// defaultErrorMessage returns a user-friendly message for common HTTP status codes
// when no specific message was provided by the error.
func defaultErrorMessage(code int) string {
	switch code {
	case http.StatusBadRequest:
		return "The request was invalid or cannot be processed."
	case http.StatusNotFound:
		return "The requested resource does not exist."
	case http.StatusMethodNotAllowed:
		return "This method is not allowed on this resource."
	case http.StatusConflict:
		return "This action conflicts with the current state."
	case http.StatusUnprocessableEntity:
		return "The submitted data could not be processed."
	case http.StatusTooManyRequests:
		return "You're making too many requests. Please slow down."
	case http.StatusServiceUnavailable:
		return "The service is temporarily unavailable. Please try again later."
	default:
		return "An unexpected error occurred."
	}
}

// jsonSerializer implements echo.JSONSerializer with goccy/go-json so c.JSON
// and c.Bind share the encoder the handlers already use.
type jsonSerializer struct{}

func (jsonSerializer) Serialize(c echo.Context, i any, indent string) error {
	enc := json.NewEncoder(c.Response())
	if indent != "" {
		enc.SetIndent("", indent)
	}
	return enc.Encode(i)
}

func (jsonSerializer) Deserialize(c echo.Context, i any) error {
	err := json.NewDecoder(c.Request().Body).Decode(i)
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	switch {
	case errors.As(err, &typeErr):
		return echo.NewHTTPError(http.StatusBadRequest,
			fmt.Sprintf("Unmarshal type error: expected=%v, got=%v, field=%v, offset=%v",
				typeErr.Type, typeErr.Value, typeErr.Field, typeErr.Offset)).SetInternal(err)
	case errors.As(err, &syntaxErr):
		return echo.NewHTTPError(http.StatusBadRequest,
			fmt.Sprintf("Syntax error: offset=%v, error=%v", syntaxErr.Offset, syntaxErr.Error())).SetInternal(err)
	}
	return err
}

// Start begins listening for HTTP requests on the configured port.
func (a *App) Start() error {
	addr := fmt.Sprintf(":%d", a.Config.Port)
	slog.Info("starting gallery server",
		slog.String("addr", addr),
		slog.String("env", a.Config.Env),
		slog.String("storage", a.Config.Storage.Driver),
	)
	return a.Echo.Start(addr)
}
