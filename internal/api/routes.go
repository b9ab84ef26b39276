package api

import (
	"alcyxob/fitness-share/internal/domain" // Needed for RoleMiddleware
	"alcyxob/fitness-share/internal/service"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// NewRouter builds a gin engine with the request ID, access log, recovery and
// timeout middleware installed.
func NewRouter(logger *zap.Logger, requestTimeout time.Duration) *gin.Engine {
	router := gin.New()
	router.Use(
		RequestIDMiddleware(),
		LoggerMiddleware(logger.With(zap.String("component", "http"))),
		RecoveryMiddleware(logger),
		TimeoutMiddleware(requestTimeout),
	)
	return router
}

func SetupRoutes(
	router *gin.Engine,
	tokenService service.TokenService,
	shareHandler *ShareHandler,
) {
	router.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})

	// Share links are public, so the routes live at the root as well as under /api/v1.
	registerShareRoutes(&router.RouterGroup, tokenService, shareHandler)
	registerShareRoutes(router.Group("/api/v1"), tokenService, shareHandler)
}

func registerShareRoutes(base *gin.RouterGroup, tokenService service.TokenService, h *ShareHandler) {
	shareGroup := base.Group("/share")
	{
		// POST /share - Anyone can share; a trainer token records ownership
		shareGroup.POST("", OptionalAuthMiddleware(tokenService), h.CreateShare)
		// GET /share/{id} - Public, counts an access
		shareGroup.GET("/:id", h.ResolveShare)
	}

	// Mutations need a trainer token; the service checks ownership.
	ownerGroup := base.Group("/share")
	ownerGroup.Use(AuthMiddleware(tokenService), RoleMiddleware(domain.RoleTrainer))
	{
		ownerGroup.PUT("/:id", h.UpdateShare)
		ownerGroup.DELETE("/:id", h.DeleteShare)
	}
}
