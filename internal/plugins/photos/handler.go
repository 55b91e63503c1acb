package photos

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/keyxmakerx/gallery/internal/apperror"
	"github.com/keyxmakerx/gallery/internal/pagination"
)

// Handler serves the photo API.
type Handler struct {
	service PhotoService
	limits  pagination.Limits
}

// NewHandler creates a photo handler.
func NewHandler(service PhotoService, limits pagination.Limits) *Handler {
	return &Handler{service: service, limits: limits}
}

// ListByAlbum returns a page of an album's photos (GET /api/v1/albums/:id/photos).
func (h *Handler) ListByAlbum(c echo.Context) error {
	albumID, err := parseID(c, "id", "album")
	if err != nil {
		return err
	}
	opts, err := pagination.Parse(c.QueryParam("page"), c.QueryParam("perPage"), h.limits)
	if err != nil {
		return err
	}

	page, err := h.service.ListByAlbum(c.Request().Context(), albumID, opts)
	if err != nil {
		return err
	}

	c.Response().Header().Set("X-Total-Count", strconv.Itoa(page.Total))
	return c.JSON(http.StatusOK, page)
}

// Create adds a photo to an album (POST /api/v1/albums/:id/photos).
func (h *Handler) Create(c echo.Context) error {
	albumID, err := parseID(c, "id", "album")
	if err != nil {
		return err
	}

	var req CreatePhotoRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid JSON body")
	}

	photo, err := h.service.Create(c.Request().Context(), albumID, req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, photo)
}

// Get returns one photo (GET /api/v1/photos/:photoId).
func (h *Handler) Get(c echo.Context) error {
	id, err := parseID(c, "photoId", "photo")
	if err != nil {
		return err
	}

	photo, found, err := h.service.GetByID(c.Request().Context(), id)
	if err != nil {
		return err
	}
	if !found {
		return apperror.NewNotFound("photo not found")
	}
	return c.JSON(http.StatusOK, photo)
}

// Delete removes a photo (DELETE /api/v1/photos/:photoId).
func (h *Handler) Delete(c echo.Context) error {
	id, err := parseID(c, "photoId", "photo")
	if err != nil {
		return err
	}
	if err := h.service.Delete(c.Request().Context(), id); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func parseID(c echo.Context, param, what string) (int64, error) {
	id, err := strconv.ParseInt(c.Param(param), 10, 64)
	if err != nil {
		return 0, apperror.NewBadRequest("invalid " + what + " ID")
	}
	return id, nil
}
