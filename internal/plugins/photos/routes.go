package photos

import "github.com/labstack/echo/v4"

// RegisterRoutes mounts the photo API on the given group (normally /api/v1).
func RegisterRoutes(g *echo.Group, h *Handler) {
	g.GET("/albums/:id/photos", h.ListByAlbum)
	g.POST("/albums/:id/photos", h.Create)

	g.GET("/photos/:photoId", h.Get)
	g.DELETE("/photos/:photoId", h.Delete)
}
