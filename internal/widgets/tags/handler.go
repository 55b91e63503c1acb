package tags

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/keyxmakerx/gallery/internal/apperror"
)

// Handler handles HTTP requests for tag operations. Handlers are thin:
// bind request, call service, render response. No business logic lives here.
type Handler struct {
	service TagService
}

// NewHandler creates a new tag handler backed by the given service.
func NewHandler(service TagService) *Handler {
	return &Handler{service: service}
}

// ListTags returns all tags as JSON (GET /api/v1/tags).
func (h *Handler) ListTags(c echo.Context) error {
	tags, err := h.service.List(c.Request().Context())
	if err != nil {
		return err
	}

	// Return empty array instead of null when no tags exist.
	if tags == nil {
		tags = []Tag{}
	}

	return c.JSON(http.StatusOK, tags)
}

// GetTag returns one tag (GET /api/v1/tags/:tagId).
func (h *Handler) GetTag(c echo.Context) error {
	tagID, err := parseTagID(c)
	if err != nil {
		return err
	}

	tag, err := h.service.GetByID(c.Request().Context(), tagID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, tag)
}

// CreateTag creates a new tag (POST /api/v1/tags).
func (h *Handler) CreateTag(c echo.Context) error {
	var req CreateTagRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid JSON body")
	}

	tag, err := h.service.Create(c.Request().Context(), req)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusCreated, tag)
}

// UpdateTag renames an existing tag (PUT /api/v1/tags/:tagId).
func (h *Handler) UpdateTag(c echo.Context) error {
	tagID, err := parseTagID(c)
	if err != nil {
		return err
	}

	var req UpdateTagRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid JSON body")
	}

	tag, err := h.service.Update(c.Request().Context(), tagID, req)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, tag)
}

// DeleteTag removes a tag and detaches it everywhere (DELETE /api/v1/tags/:tagId).
func (h *Handler) DeleteTag(c echo.Context) error {
	tagID, err := parseTagID(c)
	if err != nil {
		return err
	}

	if err := h.service.Delete(c.Request().Context(), tagID); err != nil {
		return err
	}

	return c.NoContent(http.StatusNoContent)
}

func parseTagID(c echo.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("tagId"), 10, 64)
	if err != nil {
		return 0, apperror.NewBadRequest("invalid tag ID")
	}
	return id, nil
}
