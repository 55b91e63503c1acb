package albums

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/keyxmakerx/gallery/internal/apperror"
	"github.com/keyxmakerx/gallery/internal/pagination"
)

// WarningHeader carries non-fatal notices about how a request was read.
const WarningHeader = "X-Gallery-Warning"

// Handler handles HTTP requests for albums. Handlers are thin: bind the
// request, call the service, render the response.
type Handler struct {
	service AlbumService
	limits  pagination.Limits
}

// NewHandler creates a new album handler.
func NewHandler(service AlbumService, limits pagination.Limits) *Handler {
	return &Handler{service: service, limits: limits}
}

// List returns a filtered, ordered page of albums (GET /api/v1/albums).
// The same handler serves GET /api/v1/albums/search.
func (h *Handler) List(c echo.Context) error {
	criteria, err := NormalizeCriteria(RawCriteria{
		Keyword:          c.QueryParam("keyword"),
		Event:            c.QueryParam("event"),
		Year:             c.QueryParam("year"),
		TagName:          c.QueryParam("tagName"),
		ContributorLogin: c.QueryParam("contributorLogin"),
	})
	if err != nil {
		return err
	}

	fieldSort, err := ParseFieldSort(c.QueryParam("sort"))
	if err != nil {
		return err
	}

	page, err := pagination.Parse(c.QueryParam("page"), c.QueryParam("perPage"), h.limits)
	if err != nil {
		return err
	}

	withTags, err := parseBool(c.QueryParam("eagerload"), true)
	if err != nil {
		return apperror.NewBadRequest("eagerload must be true or false")
	}

	result, err := h.service.List(c.Request().Context(), ListRequest{
		Criteria:  criteria,
		SortBy:    h.sortBy(c),
		FieldSort: fieldSort,
		Page:      page,
		WithTags:  withTags,
	})
	if err != nil {
		return err
	}

	c.Response().Header().Set("X-Total-Count", strconv.Itoa(result.Total))
	return c.JSON(http.StatusOK, result)
}

// Gallery returns every album in gallery order (GET /api/v1/albums/gallery).
func (h *Handler) Gallery(c echo.Context) error {
	albums, err := h.service.Gallery(c.Request().Context(), h.sortBy(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, albums)
}

// FilterOptions returns the values available to each filter
// (GET /api/v1/albums/filter-options).
func (h *Handler) FilterOptions(c echo.Context) error {
	opts, err := h.service.FilterOptions(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, opts)
}

// Get returns one album with its tags (GET /api/v1/albums/:id).
func (h *Handler) Get(c echo.Context) error {
	id, err := parseAlbumID(c)
	if err != nil {
		return err
	}

	album, found, err := h.service.GetByID(c.Request().Context(), id)
	if err != nil {
		return err
	}
	if !found {
		return apperror.NewNotFound("album not found")
	}
	return c.JSON(http.StatusOK, album)
}

// Create stores a new album (POST /api/v1/albums).
func (h *Handler) Create(c echo.Context) error {
	var in AlbumInput
	if err := c.Bind(&in); err != nil {
		return apperror.NewBadRequest("invalid JSON body")
	}

	album, err := h.service.Create(c.Request().Context(), in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, album)
}

// Update replaces an album (PUT /api/v1/albums/:id).
func (h *Handler) Update(c echo.Context) error {
	id, err := parseAlbumID(c)
	if err != nil {
		return err
	}

	var in AlbumInput
	if err := c.Bind(&in); err != nil {
		return apperror.NewBadRequest("invalid JSON body")
	}

	album, err := h.service.Update(c.Request().Context(), id, in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, album)
}

// Patch changes the given fields of an album (PATCH /api/v1/albums/:id).
func (h *Handler) Patch(c echo.Context) error {
	id, err := parseAlbumID(c)
	if err != nil {
		return err
	}

	var p AlbumPatch
	if err := c.Bind(&p); err != nil {
		return apperror.NewBadRequest("invalid JSON body")
	}

	album, err := h.service.PartialUpdate(c.Request().Context(), id, p)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, album)
}

// Delete removes an album and everything attached to it
// (DELETE /api/v1/albums/:id).
func (h *Handler) Delete(c echo.Context) error {
	id, err := parseAlbumID(c)
	if err != nil {
		return err
	}

	if err := h.service.Delete(c.Request().Context(), id); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// sortBy reads the sortBy parameter. An unrecognized value falls back to
// EVENT and is reported in the warning header.
func (h *Handler) sortBy(c echo.Context) SortBy {
	raw := c.QueryParam("sortBy")
	sortBy, ok := ParseSortBy(raw)
	if !ok {
		slog.Warn("unrecognized sortBy, using EVENT",
			slog.String("sort_by", raw),
			slog.String("path", c.Path()),
		)
		c.Response().Header().Set(WarningHeader, "unrecognized sortBy "+strconv.Quote(raw)+", using EVENT")
	}
	return sortBy
}

func parseAlbumID(c echo.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return 0, apperror.NewBadRequest("invalid album ID")
	}
	return id, nil
}

func parseBool(s string, def bool) (bool, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return def, nil
	}
	return strconv.ParseBool(s)
}
