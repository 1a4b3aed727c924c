package script

import (
	"image"
	"strconv"
	"strings"
)

// DefaultRegion is the OCR region used when a step does not set one.
const DefaultRegion = "0,0,100,100"

// ParseRegion parses an "x,y,w,h" rectangle and clamps it to bounds.
//
// It never fails: a malformed spec selects the whole of bounds, and a
// rectangle that lies entirely outside bounds also selects the whole image.
// Negative origins are moved to the image edge and width/height are cut at
// the far edge.
func ParseRegion(spec string, bounds image.Rectangle) image.Rectangle {
	parts := strings.Split(spec, ",")
	if len(parts) != 4 {
		return bounds
	}
	var v [4]int
	for i, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return bounds
		}
		v[i] = n
	}

	x := clamp(bounds.Min.X+v[0], bounds.Min.X, bounds.Max.X)
	y := clamp(bounds.Min.Y+v[1], bounds.Min.Y, bounds.Max.Y)
	w := clamp(v[2], 0, bounds.Max.X-x)
	h := clamp(v[3], 0, bounds.Max.Y-y)

	r := image.Rect(x, y, x+w, y+h)
	if r.Empty() {
		return bounds
	}
	return r
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
