package thumbnail

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/wb-go/wbf/ginext"
	"github.com/wb-go/wbf/zlog"

	"github.com/aliskhannn/image-crawler/internal/api/respond"
	"github.com/aliskhannn/image-crawler/internal/storage/file"
)

// loader defines the interface for reading stored thumbnails.
type loader interface {
	Load(ctx context.Context, identifier string) (io.ReadCloser, int64, error)
}

// Handler serves stored thumbnails.
type Handler struct {
	storage loader
}

// NewHandler creates a new Handler reading from l.
func NewHandler(l loader) *Handler {
	return &Handler{storage: l}
}

// Get serves the thumbnail bytes for a given identifier.
func (h *Handler) Get(c *ginext.Context) {
	id := c.Param("id")
	if id == "" {
		zlog.Logger.Warn().Msg("missing id")
		respond.Fail(c, http.StatusBadRequest, fmt.Errorf("missing id"))
		return
	}

	reader, size, err := h.storage.Load(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, file.ErrImageNotFound) {
			respond.Fail(c, http.StatusNotFound, fmt.Errorf("thumbnail not found"))
			return
		}

		zlog.Logger.Err(err).Str("identifier", id).Msg("failed to load thumbnail")
		respond.Fail(c, http.StatusInternalServerError, fmt.Errorf("failed to load thumbnail"))
		return
	}
	defer reader.Close()

	// Thumbnails are replaced when a task is crawled again.
	c.Header("Cache-Control", "no-cache, no-store, must-revalidate")

	respond.JPEG(c, size, reader)
}
