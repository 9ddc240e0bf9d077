package thumbnail

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wb-go/wbf/ginext"

	"github.com/aliskhannn/image-crawler/internal/storage/file"
)

type fakeLoader struct {
	data map[string][]byte
	err  error
}

func (f *fakeLoader) Load(_ context.Context, id string) (io.ReadCloser, int64, error) {
	if f.err != nil {
		return nil, 0, f.err
	}
	b, ok := f.data[id]
	if !ok {
		return nil, 0, file.ErrImageNotFound
	}
	return io.NopCloser(bytes.NewReader(b)), int64(len(b)), nil
}

func get(t *testing.T, l loader, path string) *httptest.ResponseRecorder {
	t.Helper()

	r := ginext.New()
	r.GET("/api/thumbnails/:id", NewHandler(l).Get)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestGet(t *testing.T) {
	l := &fakeLoader{data: map[string][]byte{"id-1": {0xff, 0xd8, 0xff, 0xd9}}}

	rec := get(t, l, "/api/thumbnails/id-1")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/jpeg", rec.Header().Get("Content-Type"))
	assert.Equal(t, []byte{0xff, 0xd8, 0xff, 0xd9}, rec.Body.Bytes())
}

func TestGetNotFound(t *testing.T) {
	rec := get(t, &fakeLoader{}, "/api/thumbnails/missing")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetStorageError(t *testing.T) {
	rec := get(t, &fakeLoader{err: errors.New("minio down")}, "/api/thumbnails/id-1")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
