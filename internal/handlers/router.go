package handlers

import (
	"embed"
	"html/template"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

//go:embed templates/*.html
var templatesFS embed.FS

// NewRouter builds the gin engine with every route of the service.
func NewRouter(h *Handler) *gin.Engine {
	r := gin.New()
	r.Use(requestLogger(), gin.Recovery())
	r.Use(cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders:    []string{"Content-Type"},
	}))

	r.SetHTMLTemplate(template.Must(template.New("").ParseFS(templatesFS, "templates/*.html")))
	r.Static(uploadsURLPath, h.opts.UploadsDir)

	r.GET("/", h.Index)
	r.GET("/reset", h.Reset)
	r.GET("/health", h.Health)
	r.GET("/predictions", h.History)

	upload := r.Group("/", limitBody(h.opts.MaxUploadBytes))
	upload.POST("/predict", h.Predict)
	upload.POST("/predict/image", h.PredictFromImage)

	return r
}

// limitBody rejects oversized uploads before any form parsing happens.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.ContentLength > maxBytes {
			slog.Warn("upload rejected", "content_length", c.Request.ContentLength, "max", maxBytes)
			c.Header("Connection", "close")
			c.String(http.StatusRequestEntityTooLarge, "File too large")
			c.Abort()
			return
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		id := uuid.NewString()
		c.Set("request_id", id)
		c.Header("X-Request-ID", id)

		c.Next()

		slog.Info("request",
			"request_id", id,
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"latency", time.Since(start),
			"client_ip", c.ClientIP(),
		)
	}
}
