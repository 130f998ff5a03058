package httpserver

import (
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/smartconnect/auth-service/internal/middleware"
	"github.com/smartconnect/auth-service/internal/service"
	"github.com/smartconnect/auth-service/pkg/logging"
)

type AuthHTTP struct {
	Svc *service.AuthService
}

func (h *AuthHTTP) Register(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth_register")

	var req RegisterRequest
	if err := c.Bind(&req); err != nil {
		l.Warn("register_error", "status", 400, "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	if msg := validateRegister(&req); msg != "" {
		l.Warn("register_error", "status", 400, "reason", msg)
		return echo.NewHTTPError(http.StatusBadRequest, msg)
	}

	res, err := h.Svc.Register(ctx, service.RegisterInput{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
		FullName: req.FullName,
		Phone:    req.Phone,
		Role:     req.Role,
	})
	if err != nil {
		var exists *service.AlreadyExistsError
		switch {
		case errors.As(err, &exists):
			return echo.NewHTTPError(http.StatusConflict, exists.Error())
		case errors.Is(err, service.ErrInvalidRole):
			return echo.NewHTTPError(http.StatusBadRequest, "invalid role")
		default:
			l.Error("register_failed", "status", 500, "error", err)
			return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
		}
	}

	return c.JSON(http.StatusCreated, res)
}

func (h *AuthHTTP) Login(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth_login")

	var req LoginRequest
	if err := c.Bind(&req); err != nil {
		l.Warn("login_error", "status", 400, "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	if req.Username == "" || req.Password == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "username and password are required")
	}

	res, err := h.Svc.Login(ctx, req.Username, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidCredentials):
			return echo.NewHTTPError(http.StatusUnauthorized, service.ErrInvalidCredentials.Error())
		case errors.Is(err, service.ErrAccountLocked):
			return echo.NewHTTPError(http.StatusLocked, service.ErrAccountLocked.Error())
		case errors.Is(err, service.ErrAccountInactive):
			return echo.NewHTTPError(http.StatusForbidden, service.ErrAccountInactive.Error())
		default:
			l.Error("login_failed", "status", 500, "error", err)
			return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
		}
	}

	return c.JSON(http.StatusOK, res)
}

func (h *AuthHTTP) Refresh(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth_refresh")

	var req RefreshTokenRequest
	if err := c.Bind(&req); err != nil || req.RefreshToken == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "refresh_token is required")
	}

	res, err := h.Svc.Refresh(ctx, req.RefreshToken)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidToken), errors.Is(err, service.ErrAccountInactive):
			return echo.NewHTTPError(http.StatusUnauthorized, service.ErrInvalidToken.Error())
		default:
			l.Error("refresh_failed", "status", 500, "error", err)
			return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
		}
	}

	return c.JSON(http.StatusOK, res)
}

func (h *AuthHTTP) Logout(c echo.Context) error {
	ctx := c.Request().Context()

	var req LogoutRequest
	if err := c.Bind(&req); err != nil {
		req = LogoutRequest{}
	}

	h.Svc.Logout(ctx, middleware.TokenFromRequest(c), req.RefreshToken)

	return c.JSON(http.StatusOK, echo.Map{"message": "logged out"})
}

func (h *AuthHTTP) Me(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth_me")

	idStr, _ := c.Get("user_id").(string)
	id, err := uuid.Parse(idStr)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid or expired token")
	}

	user, err := h.Svc.Users.FindByID(ctx, id)
	if err != nil {
		l.Error("me_failed", "status", 500, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
	if user == nil {
		return echo.NewHTTPError(http.StatusNotFound, "user not found")
	}

	return c.JSON(http.StatusOK, user)
}

func (h *AuthHTTP) Unblock(c echo.Context) error {
	ctx := c.Request().Context()

	var req UnblockRequest
	if err := c.Bind(&req); err != nil || req.AccessToken == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "access_token is required")
	}

	h.Svc.Unblock(ctx, req.AccessToken)
	return c.NoContent(http.StatusNoContent)
}

func validateRegister(req *RegisterRequest) string {
	switch {
	case len(req.Username) < 3:
		return "username must be at least 3 characters"
	case req.Email == "" || !strings.Contains(req.Email, "@"):
		return "email format is invalid"
	case len(req.Password) < 8:
		return "password must be at least 8 characters"
	case req.FullName == "":
		return "full name is required"
	}
	return ""
}
