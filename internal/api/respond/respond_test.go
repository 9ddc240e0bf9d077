package respond

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/wb-go/wbf/ginext"
)

func serve(t *testing.T, h func(c *ginext.Context)) *httptest.ResponseRecorder {
	t.Helper()

	r := ginext.New()
	r.GET("/", h)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	return rec
}

func TestEnvelope(t *testing.T) {
	rec := serve(t, func(c *ginext.Context) { OK(c, map[string]int{"n": 1}) })
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"result":{"n":1}}`, rec.Body.String())

	rec = serve(t, func(c *ginext.Context) { Accepted(c, "queued") })
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.JSONEq(t, `{"result":"queued"}`, rec.Body.String())

	rec = serve(t, func(c *ginext.Context) { Fail(c, http.StatusNotFound, errors.New("thumbnail not found")) })
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"error":"thumbnail not found"}`, rec.Body.String())
}

func TestJPEG(t *testing.T) {
	rec := serve(t, func(c *ginext.Context) { JPEG(c, 4, strings.NewReader("\xff\xd8\xff\xd9")) })

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/jpeg", rec.Header().Get("Content-Type"))
	assert.Equal(t, "4", rec.Header().Get("Content-Length"))
}
