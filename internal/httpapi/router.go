package httpapi

import (
	"github.com/gin-gonic/gin"

	"tabula/internal/config"
	"tabula/internal/core/schema"
	"tabula/internal/object"
	"tabula/internal/register"
	"tabula/internal/storage"
	"tabula/pkg/logger"
)

// RouterConfig wires the engine pieces into the HTTP surface.
type RouterConfig struct {
	Gateway  storage.Gateway
	Registry *schema.Registry
	Factory  *object.Factory
	Locks    *object.LockManager
	Reposter *register.Reposter
	Logger   *logger.Logger
	Engine   config.EngineConfig
}

// NewRouter creates and configures the Gin router.
func NewRouter(cfg RouterConfig) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(Recovery())
	router.Use(Logger(cfg.Logger))
	router.Use(SessionContext())
	router.Use(ErrorHandler())

	h := newHandlers(cfg)

	router.GET("/health/live", h.live)
	router.GET("/health/ready", h.ready)

	v1 := router.Group("/api/v1")
	{
		dirs := v1.Group("/directories/:type")
		{
			dirs.GET("", h.listDirectories)
			dirs.POST("", h.createDirectory)
			dirs.GET("/:id", h.readDirectory)
			dirs.PUT("/:id", h.updateDirectory)
			dirs.POST("/:id/deletion-mark", h.setDirectoryMark)
			dirs.DELETE("/:id", h.deleteDirectory)
			dirs.GET("/:id/versions", h.directoryVersions)
		}

		docs := v1.Group("/documents/:type")
		{
			docs.GET("", h.listDocuments)
			docs.POST("", h.createDocument)
			docs.GET("/:id", h.readDocument)
			docs.PUT("/:id", h.updateDocument)
			docs.POST("/:id/spend", h.spendDocument)
			docs.POST("/:id/deletion-mark", h.setDocumentMark)
			docs.DELETE("/:id", h.deleteDocument)
			docs.GET("/:id/versions", h.documentVersions)
			docs.GET("/:id/parts/:part", h.readTablePart)
			docs.PUT("/:id/parts/:part", h.rewriteTablePart)
			docs.POST("/repost", h.repostDocuments)
		}

		v1.GET("/search", h.search)

		regs := v1.Group("/registers/:name")
		{
			regs.GET("/balance", h.registerBalance)
			regs.GET("/movements/:owner", h.registerMovements)
		}

		locks := v1.Group("/locks/:kind/:type/:id")
		{
			locks.GET("", h.lockInfo)
			locks.POST("", h.lockAcquire)
			locks.DELETE("", h.lockRelease)
		}

		v1.GET("/triggers/depth", h.triggerDepth)
	}

	return router
}
