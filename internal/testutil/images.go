// Package testutil builds image fixtures shared by package tests.
package testutil

import (
	"bytes"
	"encoding/binary"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"
)

// Gradient returns a w x h RGBA image with a simple colour ramp.
func Gradient(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x % 256), G: uint8(y % 256), B: 128, A: 255})
		}
	}
	return img
}

// JPEG encodes a w x h gradient at the given quality.
func JPEG(t testing.TB, w, h, quality int) []byte {
	t.Helper()

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, Gradient(w, h), &jpeg.Options{Quality: quality}); err != nil {
		t.Fatalf("encode jpeg: %v", err)
	}
	return buf.Bytes()
}

// JPEGWithArtist encodes a w x h gradient and inserts an APP1 EXIF segment
// holding a single Artist (0x013b) tag.
func JPEGWithArtist(t testing.TB, w, h int, artist string) []byte {
	t.Helper()

	raw := JPEG(t, w, h, 90)

	value := append([]byte(artist), 0)
	le := binary.LittleEndian

	tiff := make([]byte, 26, 26+len(value))
	copy(tiff, "II")
	le.PutUint16(tiff[2:], 42)
	le.PutUint32(tiff[4:], 8)       // IFD0 offset
	le.PutUint16(tiff[8:], 1)       // entry count
	le.PutUint16(tiff[10:], 0x013b) // Artist
	le.PutUint16(tiff[12:], 2)      // ASCII
	le.PutUint32(tiff[14:], uint32(len(value)))
	le.PutUint32(tiff[18:], 26) // value offset
	le.PutUint32(tiff[22:], 0)  // next IFD
	tiff = append(tiff, value...)

	payload := append([]byte("Exif\x00\x00"), tiff...)
	segment := []byte{0xff, 0xe1, 0, 0}
	binary.BigEndian.PutUint16(segment[2:], uint16(len(payload)+2))
	segment = append(segment, payload...)

	out := make([]byte, 0, len(raw)+len(segment))
	out = append(out, raw[:2]...) // SOI
	out = append(out, segment...)
	out = append(out, raw[2:]...)
	return out
}

// PNG encodes a w x h image that is half transparent.
func PNG(t testing.TB, w, h int) []byte {
	t.Helper()

	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.NRGBA{R: 200, G: 10, B: 10, A: uint8(255 * (x % 2))})
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}
