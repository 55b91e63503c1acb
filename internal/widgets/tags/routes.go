package tags

import "github.com/labstack/echo/v4"

// RegisterRoutes mounts the tag API on the given group (normally /api/v1).
func RegisterRoutes(g *echo.Group, h *Handler) {
	tg := g.Group("/tags")

	tg.GET("", h.ListTags)
	tg.POST("", h.CreateTag)
	tg.GET("/:tagId", h.GetTag)
	tg.PUT("/:tagId", h.UpdateTag)
	tg.DELETE("/:tagId", h.DeleteTag)
}
