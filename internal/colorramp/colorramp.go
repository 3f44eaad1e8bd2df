// Package colorramp adjusts gdaldem color-relief files in HSV space.
//
// A color file has one entry per line: an elevation (a number, a percentage
// such as "50%", or "nv" for nodata) followed by R G B and an optional alpha.
// Blank lines, comments and lines that do not parse are copied unchanged.
package colorramp

import (
	"bufio"
	"bytes"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/lucasb-eyer/go-colorful"
)

// Params controls the adjustment. The zero value is not the identity; use
// DefaultParams.
type Params struct {
	Saturation      float64 // multiplier
	ShadowAdjust    float64 // added to HSV value below 1/3
	MidAdjust       float64 // added to HSV value in [1/3, 2/3)
	HighlightAdjust float64 // added to HSV value from 2/3
	MinHue          float64 // hue range (degrees) retargeted to TargetHue
	MaxHue          float64
	TargetHue       float64
	ElevAdjust      float64 // multiplier for numeric elevations
}

// DefaultParams leaves a color file unchanged.
func DefaultParams() Params {
	return Params{Saturation: 1, ElevAdjust: 1}
}

// Adjust rewrites every color entry in data.
func Adjust(data []byte, p Params) ([]byte, error) {
	var out bytes.Buffer
	sc := bufio.NewScanner(bytes.NewReader(data))
	line := 0
	for sc.Scan() {
		line++
		out.WriteString(adjustLine(sc.Text(), p))
		out.WriteByte('\n')
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("colorramp: line %d: %w", line, err)
	}
	return out.Bytes(), nil
}

func adjustLine(text string, p Params) string {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" || strings.HasPrefix(trimmed, "#") {
		return text
	}
	fields := strings.FieldsFunc(trimmed, func(r rune) bool {
		return r == ' ' || r == '\t' || r == ',' || r == ':'
	})
	if len(fields) < 4 || len(fields) > 5 {
		return text
	}
	elev := fields[0]
	if strings.EqualFold(elev, "nv") {
		return text
	}
	rgb := make([]uint8, 3)
	for i := 0; i < 3; i++ {
		v, err := strconv.Atoi(fields[i+1])
		if err != nil || v < 0 || v > 255 {
			return text
		}
		rgb[i] = uint8(v)
	}

	if !strings.HasSuffix(elev, "%") {
		if e, err := strconv.ParseFloat(elev, 64); err == nil {
			elev = strconv.FormatFloat(e*p.ElevAdjust, 'f', -1, 64)
		} else {
			return text
		}
	}

	r, g, b := adjustColor(rgb[0], rgb[1], rgb[2], p)
	s := fmt.Sprintf("%s %d %d %d", elev, r, g, b)
	if len(fields) == 5 {
		s += " " + fields[4]
	}
	return s
}

func adjustColor(r, g, b uint8, p Params) (uint8, uint8, uint8) {
	c := colorful.Color{R: float64(r) / 255, G: float64(g) / 255, B: float64(b) / 255}
	h, s, v := c.Hsv()

	s = clamp01(s * p.Saturation)
	switch {
	case v < 1.0/3:
		v += p.ShadowAdjust
	case v < 2.0/3:
		v += p.MidAdjust
	default:
		v += p.HighlightAdjust
	}
	v = clamp01(v)

	if p.MaxHue > p.MinHue && h >= p.MinHue && h <= p.MaxHue {
		h = math.Mod(p.TargetHue, 360)
		if h < 0 {
			h += 360
		}
	}
	return colorful.Hsv(h, s, v).Clamped().RGB255()
}

func clamp01(x float64) float64 {
	return math.Max(0, math.Min(1, x))
}
