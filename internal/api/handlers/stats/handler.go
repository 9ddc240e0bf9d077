package stats

import (
	"context"
	"fmt"
	"net/http"

	"github.com/wb-go/wbf/ginext"
	"github.com/wb-go/wbf/zlog"

	"github.com/aliskhannn/image-crawler/internal/api/respond"
	"github.com/aliskhannn/image-crawler/internal/stats"
)

// reader defines the interface for reading per-source counters.
type reader interface {
	Snapshot(ctx context.Context, source string) (stats.Snapshot, error)
}

// Handler serves crawl statistics.
type Handler struct {
	stats reader
}

// NewHandler creates a new Handler backed by r.
func NewHandler(r reader) *Handler {
	return &Handler{stats: r}
}

// Get returns the counters recorded for a source.
func (h *Handler) Get(c *ginext.Context) {
	source := c.Param("source")
	if source == "" {
		respond.Fail(c, http.StatusBadRequest, fmt.Errorf("missing source"))
		return
	}

	snap, err := h.stats.Snapshot(c.Request.Context(), source)
	if err != nil {
		zlog.Logger.Err(err).Str("source", source).Msg("failed to read stats")
		respond.Fail(c, http.StatusInternalServerError, fmt.Errorf("failed to read stats"))
		return
	}

	respond.OK(c, snap)
}
