package users

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/keyxmakerx/gallery/internal/apperror"
	"github.com/keyxmakerx/gallery/internal/pagination"
)

// Handler serves the user API.
type Handler struct {
	service UserService
	limits  pagination.Limits
}

// NewHandler creates a user handler.
func NewHandler(service UserService, limits pagination.Limits) *Handler {
	return &Handler{service: service, limits: limits}
}

// List returns a page of users (GET /api/v1/users).
func (h *Handler) List(c echo.Context) error {
	opts, err := pagination.Parse(c.QueryParam("page"), c.QueryParam("perPage"), h.limits)
	if err != nil {
		return err
	}

	users, total, err := h.service.List(c.Request().Context(), opts)
	if err != nil {
		return err
	}

	c.Response().Header().Set("X-Total-Count", strconv.Itoa(total))
	return c.JSON(http.StatusOK, pagination.NewPage(users, total, opts))
}

// Get returns one user (GET /api/v1/users/:userId).
func (h *Handler) Get(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("userId"), 10, 64)
	if err != nil {
		return apperror.NewBadRequest("invalid user ID")
	}

	user, err := h.service.GetByID(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, user)
}

// Create registers a user (POST /api/v1/users).
func (h *Handler) Create(c echo.Context) error {
	var req CreateUserRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid JSON body")
	}

	user, err := h.service.Create(c.Request().Context(), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, user)
}
