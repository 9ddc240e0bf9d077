package server

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/wb-go/wbf/ginext"

	"github.com/aliskhannn/image-crawler/internal/config"
)

func TestNewAppliesConfig(t *testing.T) {
	r := ginext.New()
	s := New(config.Server{
		HTTPPort:     ":9090",
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 40 * time.Second,
		IdleTimeout:  time.Minute,
	}, r)

	assert.Equal(t, ":9090", s.Addr)
	assert.Equal(t, 3*time.Second, s.ReadTimeout)
	assert.Equal(t, 3*time.Second, s.ReadHeaderTimeout)
	assert.Equal(t, 40*time.Second, s.WriteTimeout)
	assert.Equal(t, time.Minute, s.IdleTimeout)
}
