// Package respond writes operator API responses. JSON bodies share one
// envelope: {"result": ...} on success, {"error": "..."} on failure.
package respond

import (
	"io"
	"net/http"

	"github.com/wb-go/wbf/ginext"
)

type envelope struct {
	Result any    `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
}

// OK writes result with 200.
func OK(c *ginext.Context, result any) {
	c.JSON(http.StatusOK, envelope{Result: result})
}

// Accepted writes result with 202, for work queued but not yet done.
func Accepted(c *ginext.Context, result any) {
	c.JSON(http.StatusAccepted, envelope{Result: result})
}

// Fail writes err's message with status and aborts the handler chain.
func Fail(c *ginext.Context, status int, err error) {
	c.AbortWithStatusJSON(status, envelope{Error: err.Error()})
}

// JPEG streams a thumbnail. A negative size omits Content-Length.
func JPEG(c *ginext.Context, size int64, reader io.Reader) {
	c.DataFromReader(http.StatusOK, size, "image/jpeg", reader, nil)
}
