package stats

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wb-go/wbf/ginext"

	"github.com/aliskhannn/image-crawler/internal/stats"
)

func TestGet(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	m := stats.New(rdb)
	require.NoError(t, m.RecordSuccess(context.Background(), "example"))
	require.NoError(t, m.RecordError(context.Background(), "example", "404"))

	r := ginext.New()
	r.GET("/api/stats/:source", NewHandler(m).Get)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/stats/example", nil))

	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Result stats.Snapshot `json:"result"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "example", resp.Result.Source)
	assert.Equal(t, int64(1), resp.Result.Successful)
	assert.Equal(t, int64(1), resp.Result.Errors)
	assert.Equal(t, map[string]int{"200": 1, "404": 1}, resp.Result.LastStatuses)
}

func TestGetRedisDown(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer rdb.Close()
	mr.Close()

	r := ginext.New()
	r.GET("/api/stats/:source", NewHandler(stats.New(rdb)).Get)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/stats/example", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
