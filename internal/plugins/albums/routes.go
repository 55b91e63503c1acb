package albums

import "github.com/labstack/echo/v4"

// RegisterRoutes mounts the album API on the given group (normally /api/v1).
// Fixed paths are registered before /:id so they are never read as an id.
func RegisterRoutes(g *echo.Group, h *Handler) {
	ag := g.Group("/albums")

	ag.GET("", h.List)
	ag.GET("/search", h.List)
	ag.GET("/gallery", h.Gallery)
	ag.GET("/filter-options", h.FilterOptions)
	ag.POST("", h.Create)

	ag.GET("/:id", h.Get)
	ag.PUT("/:id", h.Update)
	ag.PATCH("/:id", h.Patch)
	ag.DELETE("/:id", h.Delete)
}
