package users

import "github.com/labstack/echo/v4"

// RegisterRoutes mounts the user API on the given group (normally /api/v1).
func RegisterRoutes(g *echo.Group, h *Handler) {
	ug := g.Group("/users")

	ug.GET("", h.List)
	ug.POST("", h.Create)
	ug.GET("/:userId", h.Get)
}
