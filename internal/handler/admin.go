package handler

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
)

// AdminListUsers returns a page of users for the admin surface.
func (h *AuthHandler) AdminListUsers(c echo.Context) error {
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	if limit < 1 || limit > 200 {
		limit = 50
	}
	offset, _ := strconv.Atoi(c.QueryParam("offset"))
	if offset < 0 {
		offset = 0
	}

	ctx, cancel := reqCtx(c)
	defer cancel()

	users, err := h.Users.List(ctx, limit, offset)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "list users failed"})
	}
	out := make([]echo.Map, 0, len(users))
	for _, u := range users {
		out = append(out, echo.Map{
			"id":                u.ID,
			"email":             u.Email,
			"name":              u.Name,
			"role":              u.Role,
			"is_active":         u.IsActive,
			"is_email_verified": u.IsEmailVerified,
			"two_factor":        u.TOTPEnabled,
			"created_at":        u.CreatedAt,
		})
	}
	return c.JSON(http.StatusOK, echo.Map{"users": out})
}

// AdminDeactivateUser disables an account and revokes all of its
// sessions. Outstanding access tokens die within their own short
// lifetime; the authenticate middleware rejects them on the next request.
func (h *AuthHandler) AdminDeactivateUser(c echo.Context) error {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid user id"})
	}

	ctx, cancel := reqCtx(c)
	defer cancel()

	if err := h.Users.Deactivate(ctx, id); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "deactivate failed"})
	}
	if err := h.Sessions.LogoutAll(ctx, id); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "deactivate failed"})
	}
	return c.NoContent(http.StatusNoContent)
}
