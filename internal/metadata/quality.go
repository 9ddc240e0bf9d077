package metadata

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// ErrNoQuantTable is returned when buf is not a JPEG or has no luminance
// quantization table.
var ErrNoQuantTable = errors.New("no luminance quantization table")

// baseLuminance is the IJG base luminance table in zig-zag order.
var baseLuminance = [64]float64{
	16, 11, 12, 14, 12, 10, 16, 14,
	13, 14, 18, 17, 16, 19, 24, 40,
	26, 24, 22, 22, 24, 49, 35, 37,
	29, 40, 58, 51, 61, 60, 57, 51,
	56, 55, 64, 72, 92, 78, 64, 68,
	87, 69, 55, 56, 80, 109, 81, 87,
	95, 98, 103, 104, 103, 62, 77, 113,
	121, 112, 100, 120, 92, 101, 103, 99,
}

const (
	markerSOI = 0xd8
	markerEOI = 0xd9
	markerSOS = 0xda
	markerDQT = 0xdb
)

// EstimateQuality estimates the IJG quality factor (1-100) a JPEG was encoded
// with by comparing its luminance quantization table against the base table.
func EstimateQuality(buf []byte) (int, error) {
	table, err := luminanceTable(buf)
	if err != nil {
		return 0, err
	}

	var sum float64
	for i, q := range table {
		sum += float64(q) * 100 / baseLuminance[i]
	}
	scale := sum / 64

	var quality float64
	if scale <= 100 {
		quality = (200 - scale) / 2
	} else {
		quality = 5000 / scale
	}

	return clamp(int(math.Round(quality)), 1, 100), nil
}

// luminanceTable walks the JPEG marker segments up to the first scan and
// returns quantization table 0.
func luminanceTable(buf []byte) ([64]uint16, error) {
	var table [64]uint16

	if len(buf) < 4 || buf[0] != 0xff || buf[1] != markerSOI {
		return table, ErrNoQuantTable
	}

	pos := 2
	for pos+4 <= len(buf) {
		if buf[pos] != 0xff {
			return table, fmt.Errorf("corrupt marker at offset %d", pos)
		}
		marker := buf[pos+1]
		if marker == 0xff { // fill byte
			pos++
			continue
		}
		if marker == markerSOS || marker == markerEOI {
			break
		}

		length := int(binary.BigEndian.Uint16(buf[pos+2:]))
		end := pos + 2 + length
		if length < 2 || end > len(buf) {
			return table, fmt.Errorf("truncated segment at offset %d", pos)
		}

		if marker == markerDQT {
			if found := parseDQT(buf[pos+4:end], &table); found {
				return table, nil
			}
		}
		pos = end
	}

	return table, ErrNoQuantTable
}

// parseDQT reads every table in one DQT segment and reports whether table 0
// was among them.
func parseDQT(seg []byte, table *[64]uint16) bool {
	for len(seg) > 0 {
		precision, id := seg[0]>>4, seg[0]&0x0f
		seg = seg[1:]

		size := 64
		if precision == 1 {
			size = 128
		}
		if len(seg) < size {
			return false
		}

		if id == 0 {
			for i := 0; i < 64; i++ {
				if precision == 1 {
					table[i] = binary.BigEndian.Uint16(seg[2*i:])
				} else {
					table[i] = uint16(seg[i])
				}
			}
			return true
		}
		seg = seg[size:]
	}

	return false
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
