package httpserver

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/smartconnect/auth-service/internal/middleware"
	"github.com/smartconnect/auth-service/internal/models"
)

type Deps struct {
	AuthHandler *AuthHTTP
	AuthMw      *middleware.Auth
	DB          *gorm.DB
	RDB         *redis.Client
}

func Register(e *echo.Echo, d *Deps) {
	e.GET("/health/live", func(c echo.Context) error { return c.NoContent(http.StatusOK) })
	e.GET("/health/ready", d.ready)

	g := e.Group("/v1/auth")
	g.POST("/register", d.AuthHandler.Register)
	g.POST("/login", d.AuthHandler.Login)
	g.POST("/refresh-token", d.AuthHandler.Refresh)
	g.POST("/logout", d.AuthHandler.Logout)

	private := g.Group("", d.AuthMw.RequireAuth)
	private.GET("/me", d.AuthHandler.Me)
	private.DELETE("/blacklist", d.AuthHandler.Unblock,
		d.AuthMw.RequireRole(models.RoleAdmin, models.RoleSuperAdmin))
}

func (d *Deps) ready(c echo.Context) error {
	ctx := c.Request().Context()

	sqlDB, err := d.DB.DB()
	if err != nil || sqlDB.PingContext(ctx) != nil {
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"status": "db unavailable"})
	}
	if err := d.RDB.Ping(ctx).Err(); err != nil {
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"status": "redis unavailable"})
	}
	return c.JSON(http.StatusOK, echo.Map{"status": "ok"})
}
