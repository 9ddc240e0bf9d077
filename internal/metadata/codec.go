// Package metadata maps decoded images to the events published alongside
// their thumbnails. Every function here is pure apart from LinkRot, which
// reads the clock.
package metadata

import (
	"time"

	"github.com/aliskhannn/image-crawler/internal/model"
)

// now is replaced in tests.
var now = time.Now

// Quality builds a QualityUpdate for img. buf holds the source bytes and is
// inspected independently of img to estimate the compression quality; an
// image whose quality cannot be estimated gets a nil CompressionQuality.
func Quality(img *model.DecodedImage, buf []byte, identifier string) model.QualityUpdate {
	update := model.QualityUpdate{
		Height:     img.Height,
		Width:      img.Width,
		Identifier: identifier,
		Filesize:   len(buf),
	}

	if q, err := EstimateQuality(buf); err == nil {
		update.CompressionQuality = &q
	}

	return update
}

// Exif builds an ExifUpdate for img. The second return value is false when
// the image carries no EXIF tags.
func Exif(img *model.DecodedImage, identifier string) (model.ExifUpdate, bool) {
	if len(img.Exif) == 0 {
		return model.ExifUpdate{}, false
	}

	tags := make(map[string]any, len(img.Exif))
	for k, v := range img.Exif {
		tags[k] = v
	}

	return model.ExifUpdate{Identifier: identifier, Exif: tags}, true
}

// Retry builds a RetryNotice.
func Retry(identifier, source, url string, attempts int) model.RetryNotice {
	return model.RetryNotice{
		Identifier: identifier,
		Source:     source,
		URL:        url,
		Attempts:   attempts,
	}
}

// LinkRot builds a LinkRotNotice stamped with the current UTC time.
func LinkRot(identifier string) model.LinkRotNotice {
	return model.LinkRotNotice{
		Identifier: identifier,
		Timestamp:  now().UTC().Format(time.RFC3339Nano),
	}
}
