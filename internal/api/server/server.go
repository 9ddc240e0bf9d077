// Package server builds the operator API's HTTP server.
package server

import (
	"net/http"

	"github.com/wb-go/wbf/ginext"

	"github.com/aliskhannn/image-crawler/internal/config"
)

// New creates a server for router listening on cfg.HTTPPort. Headers must
// arrive within the read timeout as well.
func New(cfg config.Server, router *ginext.Engine) *http.Server {
	return &http.Server{
		Addr:              cfg.HTTPPort,
		Handler:           router,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
	}
}
