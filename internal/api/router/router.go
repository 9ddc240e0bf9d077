package router

import (
	"github.com/wb-go/wbf/ginext"

	"github.com/aliskhannn/image-crawler/internal/api/handlers/stats"
	"github.com/aliskhannn/image-crawler/internal/api/handlers/task"
	"github.com/aliskhannn/image-crawler/internal/api/handlers/thumbnail"
)

// Setup builds the operator API.
func Setup(th *task.Handler, sh *stats.Handler, thumbs *thumbnail.Handler) *ginext.Engine {
	r := ginext.New()

	r.Use(ginext.Logger())
	r.Use(ginext.Recovery())

	api := r.Group("/api")

	api.POST("/tasks", th.Submit)          // queue an image for crawling
	api.GET("/stats/:source", sh.Get)      // counters for a source
	api.GET("/thumbnails/:id", thumbs.Get) // stored thumbnail by identifier

	return r
}
