package metadata

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aliskhannn/image-crawler/internal/model"
	"github.com/aliskhannn/image-crawler/internal/testutil"
)

func TestQuality(t *testing.T) {
	buf := testutil.JPEG(t, 64, 32, 75)
	img := &model.DecodedImage{Width: 64, Height: 32, Format: "jpeg", Size: len(buf)}

	update := Quality(img, buf, "id-1")

	assert.Equal(t, 64, update.Width)
	assert.Equal(t, 32, update.Height)
	assert.Equal(t, "id-1", update.Identifier)
	assert.Equal(t, len(buf), update.Filesize)
	require.NotNil(t, update.CompressionQuality)
	assert.InDelta(t, 75, *update.CompressionQuality, 2)
}

func TestQualityWithoutProbe(t *testing.T) {
	buf := testutil.PNG(t, 8, 8)
	img := &model.DecodedImage{Width: 8, Height: 8, Format: "png", Size: len(buf)}

	update := Quality(img, buf, "id-2")
	assert.Nil(t, update.CompressionQuality)

	data, err := json.Marshal(update)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Contains(t, decoded, "compressionQuality")
	assert.Nil(t, decoded["compressionQuality"])
	assert.Equal(t, "id-2", decoded["identifier"])
}

func TestExif(t *testing.T) {
	img := &model.DecodedImage{Exif: map[string]any{"0x13b": "unknown"}}

	update, ok := Exif(img, "id-1")
	require.True(t, ok)
	assert.Equal(t, "id-1", update.Identifier)
	assert.Equal(t, "unknown", update.Exif["0x13b"])

	_, ok = Exif(&model.DecodedImage{}, "id-1")
	assert.False(t, ok)
}

func TestRetry(t *testing.T) {
	notice := Retry("id-1", "flickr", "https://example.test/a.jpg", 2)

	data, err := json.Marshal(notice)
	require.NoError(t, err)
	assert.JSONEq(t,
		`{"identifier":"id-1","source":"flickr","url":"https://example.test/a.jpg","attempts":2}`,
		string(data))
}

func TestLinkRot(t *testing.T) {
	fixed := time.Date(2024, 3, 1, 12, 30, 0, 0, time.FixedZone("UTC+3", 3*3600))
	now = func() time.Time { return fixed }
	t.Cleanup(func() { now = time.Now })

	notice := LinkRot("id-1")

	assert.Equal(t, "id-1", notice.Identifier)
	assert.Equal(t, "2024-03-01T09:30:00Z", notice.Timestamp)
}
