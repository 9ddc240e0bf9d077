package processor

import (
	"bytes"
	"fmt"

	"github.com/rwcarlsen/goexif/exif"
	"github.com/rwcarlsen/goexif/tiff"
)

// tagCollector gathers EXIF tags keyed by their lowercase hex id.
type tagCollector map[string]any

// Walk implements exif.Walker.
func (c tagCollector) Walk(_ exif.FieldName, tag *tiff.Tag) error {
	c[fmt.Sprintf("0x%x", tag.Id)] = tagValue(tag)
	return nil
}

// readExif returns the EXIF tags of data, or nil when there are none or they
// cannot be parsed.
func readExif(data []byte) map[string]any {
	x, err := exif.Decode(bytes.NewReader(data))
	if err != nil {
		return nil
	}

	tags := tagCollector{}
	if err := x.Walk(tags); err != nil || len(tags) == 0 {
		return nil
	}

	return tags
}

// tagValue converts a tag to a JSON-friendly value: strings stay strings,
// integers and floats become numbers, rationals become "num/den".
func tagValue(tag *tiff.Tag) any {
	switch tag.Format() {
	case tiff.StringVal:
		if s, err := tag.StringVal(); err == nil {
			return s
		}
	case tiff.IntVal:
		vals := make([]int, 0, tag.Count)
		for i := 0; i < int(tag.Count); i++ {
			v, err := tag.Int(i)
			if err != nil {
				return tag.String()
			}
			vals = append(vals, v)
		}
		if len(vals) == 1 {
			return vals[0]
		}
		return vals
	case tiff.RatVal:
		vals := make([]string, 0, tag.Count)
		for i := 0; i < int(tag.Count); i++ {
			num, den, err := tag.Rat2(i)
			if err != nil {
				return tag.String()
			}
			vals = append(vals, fmt.Sprintf("%d/%d", num, den))
		}
		if len(vals) == 1 {
			return vals[0]
		}
		return vals
	case tiff.FloatVal:
		if v, err := tag.Float(0); err == nil && tag.Count == 1 {
			return v
		}
	}

	return tag.String()
}
