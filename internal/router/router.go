package router

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/quickdesk/quickdesk/api"
	"github.com/quickdesk/quickdesk/internal/handler"
	"github.com/quickdesk/quickdesk/internal/push"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// Deps carries the wired handlers.
type Deps struct {
	Ticket  *handler.TicketHandler
	Message *handler.MessageHandler
	Upload  *handler.UploadHandler
	Hub     *push.Hub
	// FilesDir, when non-empty, is served at /files (disk storage driver).
	FilesDir string
}

func New(d Deps) http.Handler {
	r := gin.New()
	r.Use(gin.Recovery())
	r.GET("/health", handler.Health)
	r.GET("/ready", handler.Ready)
	r.GET("/swagger", func(c *gin.Context) { c.Redirect(http.StatusFound, "/swagger/") })
	r.GET("/swagger/*any", func(c *gin.Context) {
		if strings.TrimPrefix(c.Param("any"), "/") == "openapi.json" {
			c.Data(http.StatusOK, "application/json", api.OpenAPISpec)
			return
		}
		if strings.TrimPrefix(c.Param("any"), "/") == "" {
			c.Request.URL.Path = "/swagger/index.html"
			c.Request.RequestURI = "/swagger/index.html"
		}
		ginSwagger.WrapHandler(swaggerFiles.Handler, ginSwagger.URL("/swagger/openapi.json"))(c)
	})

	if d.FilesDir != "" {
		r.Static("/files", d.FilesDir)
	}

	v1 := r.Group("/api/v1")
	{
		v1.POST("/upload", d.Upload.Upload)
		v1.DELETE("/upload", d.Upload.Delete)
		v1.POST("/tickets", d.Ticket.Create)
		v1.GET("/tickets", d.Ticket.List)
		v1.PUT("/tickets/:id", d.Ticket.Update)
		v1.POST("/tickets/:id/messages", d.Message.Create)
		v1.GET("/tickets/:id/messages", d.Message.List)
		v1.GET("/ws", d.Hub.Handler())
	}

	return r
}
