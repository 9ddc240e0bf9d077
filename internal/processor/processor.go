package processor

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/aliskhannn/image-crawler/internal/model"
)

// ErrUnidentifiedImage is returned when the bytes are not a supported image.
var ErrUnidentifiedImage = errors.New("unidentified image")

const (
	DefaultMaxWidth  = 640
	DefaultMaxHeight = 480
	DefaultQuality   = 30
)

// Options configures thumbnail generation.
type Options struct {
	MaxWidth  int // maximum thumbnail width in pixels
	MaxHeight int // maximum thumbnail height in pixels
	Quality   int // JPEG quality factor of the thumbnail
}

// Processor decodes crawled images and renders thumbnails.
type Processor struct {
	opts Options
}

// New creates a new Processor, filling zero options with defaults.
func New(opts Options) *Processor {
	if opts.MaxWidth <= 0 {
		opts.MaxWidth = DefaultMaxWidth
	}
	if opts.MaxHeight <= 0 {
		opts.MaxHeight = DefaultMaxHeight
	}
	if opts.Quality <= 0 || opts.Quality > 100 {
		opts.Quality = DefaultQuality
	}

	return &Processor{opts: opts}
}

// Decode decodes raw image bytes and collects their intrinsic attributes.
// EXIF is read on a best-effort basis and never fails the decode.
func (p *Processor) Decode(data []byte) (*model.DecodedImage, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnidentifiedImage, err)
	}

	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnidentifiedImage, err)
	}

	return &model.DecodedImage{
		Image:  img,
		Width:  cfg.Width,
		Height: cfg.Height,
		Format: format,
		Exif:   readExif(data),
		Size:   len(data),
	}, nil
}

// Thumbnail fits img within the configured envelope without upscaling,
// flattens it onto an opaque background and encodes it as JPEG.
func (p *Processor) Thumbnail(img image.Image) ([]byte, error) {
	// Fit returns a clone when the image already fits.
	thumb := imaging.Fit(img, p.opts.MaxWidth, p.opts.MaxHeight, imaging.NearestNeighbor)

	bounds := thumb.Bounds()
	canvas := imaging.New(bounds.Dx(), bounds.Dy(), color.White)
	flat := imaging.Overlay(canvas, thumb, image.Pt(0, 0), 1.0)

	buf := bytes.NewBuffer(nil)
	if err := imaging.Encode(buf, flat, imaging.JPEG, imaging.JPEGQuality(p.opts.Quality)); err != nil {
		return nil, fmt.Errorf("failed to encode thumbnail: %w", err)
	}

	return buf.Bytes(), nil
}
