package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"deviceguard/internal/authz"
	"deviceguard/internal/handlers"
	"deviceguard/internal/middleware"
	"deviceguard/internal/ratelimit"
)

type Auth struct {
	Secret string
	Issuer string
}

func SetupRoutes(
	r *gin.Engine,
	deviceHandler *handlers.DeviceHandler,
	moderationHandler *handlers.ModerationHandler,
	registerGuard *ratelimit.Limiter,
	auth Auth,
) *gin.Engine {

	// ---- public
	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	devices := r.Group("/devices")
	{
		devices.GET("/:fingerprint/access", deviceHandler.CheckAccess)
		if registerGuard != nil {
			devices.POST("/register", middleware.RateLimit(registerGuard), deviceHandler.Register)
		} else {
			devices.POST("/register", deviceHandler.Register)
		}
		devices.POST("/verify", deviceHandler.Verify)
		devices.POST("/resend", deviceHandler.Resend)
	}

	// ---- moderators
	admin := r.Group("/admin",
		middleware.AuthMiddleware(auth.Secret, auth.Issuer),
		middleware.RequireRoles(authz.RoleModerator, authz.RoleAdmin),
	)
	{
		admin.POST("/devices/:fingerprint/block", moderationHandler.Block)
		admin.DELETE("/devices/:fingerprint/block", moderationHandler.Unblock)
		admin.GET("/devices/blocked", moderationHandler.ListBlocked)
		admin.GET("/devices/blocked/report.pdf", moderationHandler.Report)
	}

	return r
}
