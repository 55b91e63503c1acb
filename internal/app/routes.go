package app

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/keyxmakerx/gallery/internal/config"
	"github.com/keyxmakerx/gallery/internal/pagination"
	"github.com/keyxmakerx/gallery/internal/plugins/albums"
	"github.com/keyxmakerx/gallery/internal/plugins/photos"
	"github.com/keyxmakerx/gallery/internal/plugins/users"
	"github.com/keyxmakerx/gallery/internal/widgets/tags"
)

// healthTimeout bounds each dependency ping in /healthz.
const healthTimeout = 2 * time.Second

// repositories groups the storage implementations selected by the driver.
type repositories struct {
	users  users.UserRepository
	tags   tags.TagRepository
	albums albums.AlbumRepository
	photos photos.PhotoRepository
}

// newRepositories builds the repositories for the configured driver. The
// memory driver has no foreign keys, so album deletes cascade to photos
// through a hook instead.
func (a *App) newRepositories() repositories {
	if a.Config.Storage.Driver == config.DriverMemory {
		userStore := users.NewMemoryRepository()
		tagStore := tags.NewMemoryRepository()
		albumStore := albums.NewMemoryRepository(userStore, tagStore)
		photoStore := photos.NewMemoryRepository(tagStore)
		albumStore.OnDelete(photoStore.DeleteByAlbum)

		return repositories{users: userStore, tags: tagStore, albums: albumStore, photos: photoStore}
	}

	return repositories{
		users:  users.NewUserRepository(a.DB),
		tags:   tags.NewTagRepository(a.DB),
		albums: albums.NewAlbumRepository(a.DB),
		photos: photos.NewPhotoRepository(a.DB),
	}
}

// filterOptionsCache returns the Redis-backed cache when Redis is configured.
func (a *App) filterOptionsCache() albums.FilterOptionsCache {
	if a.Redis == nil {
		return albums.NewNopFilterOptionsCache()
	}
	return albums.NewRedisFilterOptionsCache(a.Redis, a.Config.Gallery.FilterOptionsTTL)
}

// RegisterRoutes sets up all application routes. It registers the
// operational endpoints directly and delegates to each plugin's route
// registration function for the versioned API.
//
// This is the single place where all routes are aggregated. When a new
// plugin is added, its routes are registered here.
func (a *App) RegisterRoutes() {
	e := a.Echo

	// --- Operational Routes ---

	// Health check endpoint for container health monitoring.
	e.GET("/healthz", a.healthz)

	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	// --- Services ---
	repos := a.newRepositories()
	limits := pagination.Limits{
		DefaultPerPage: a.Config.Gallery.DefaultPageSize,
		MaxPerPage:     a.Config.Gallery.MaxPageSize,
	}

	userSvc := users.NewUserService(repos.users)
	tagSvc := tags.NewTagService(repos.tags)

	// Album rows embed tag names, so a rename must drop cached filter menus.
	cache := a.filterOptionsCache()
	tagSvc.OnChange(cache.Invalidate)

	albumSvc := albums.NewAlbumService(repos.albums, tagSvc, userSvc, cache, a.Config.Gallery.MaxResults)
	photoSvc := photos.NewPhotoService(repos.photos, tagSvc, albumSvc)

	// --- API Routes ---
	api := e.Group("/api/v1", a.RateLimiter.Middleware())

	users.RegisterRoutes(api, users.NewHandler(userSvc, limits))
	tags.RegisterRoutes(api, tags.NewHandler(tagSvc))
	albums.RegisterRoutes(api, albums.NewHandler(albumSvc, limits))
	photos.RegisterRoutes(api, photos.NewHandler(photoSvc, limits))

	slog.Debug("routes registered", slog.Int("count", len(e.Routes())))
}

// healthz reports 503 if any configured backing store fails to answer.
func (a *App) healthz(c echo.Context) error {
	checks := map[string]string{}
	healthy := true

	if a.DB != nil {
		ctx, cancel := context.WithTimeout(c.Request().Context(), healthTimeout)
		defer cancel()
		if err := a.DB.PingContext(ctx); err != nil {
			slog.Warn("health check: database unreachable", slog.Any("error", err))
			checks["database"] = "down"
			healthy = false
		} else {
			checks["database"] = "ok"
		}
	}

	if a.Redis != nil {
		ctx, cancel := context.WithTimeout(c.Request().Context(), healthTimeout)
		defer cancel()
		if err := a.Redis.Ping(ctx).Err(); err != nil {
			slog.Warn("health check: redis unreachable", slog.Any("error", err))
			checks["redis"] = "down"
			healthy = false
		} else {
			checks["redis"] = "ok"
		}
	}

	status, code := "ok", http.StatusOK
	if !healthy {
		status, code = "degraded", http.StatusServiceUnavailable
	}
	return c.JSON(code, map[string]any{"status": status, "checks": checks})
}
