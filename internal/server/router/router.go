package router

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mamadbah2/dairysync/internal/server/handlers"
)

// Handlers groups the HTTP adapters mounted by New.
type Handlers struct {
	Sync    *handlers.SyncHandler
	Import  *handlers.ImportHandler
	Session *handlers.SessionHandler
}

// New wires the Gin engine with required routes and middlewares.
func New(h Handlers, logger *zap.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(zapLoggerMiddleware(logger))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	if h.Sync != nil {
		r.POST("/sync", h.Sync.Trigger)
		r.GET("/sync/status", h.Sync.Status)
	}
	if h.Import != nil {
		r.POST("/import/farmers", h.Import.Farmers)
		r.POST("/import/prices", h.Import.Prices)
	}
	if h.Session != nil {
		r.POST("/session", h.Session.SignIn)
		r.DELETE("/session", h.Session.SignOut)
	}

	if logger != nil {
		logger.Info("router initialized")
	}

	return r
}

func zapLoggerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}

	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		logger.Info("request completed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("client_ip", c.ClientIP()))
	}
}
