package capture

import (
	"fmt"
	"math"
)

const (
	rotationStep  = 90
	zoomInFactor  = 1.2
	zoomOutFactor = 0.8
	minZoom       = 0.2
	maxZoom       = 5.0
)

// Transform is the rotate and scale applied to the preview image
type Transform struct {
	Rotation int
	Zoom     float64
}

// CSS renders the transform as a CSS transform value
func (t Transform) CSS() string {
	return fmt.Sprintf("rotate(%ddeg) scale(%g)", t.Rotation, t.Zoom)
}

// ZoomLabel renders the zoom factor as a whole percentage
func (t Transform) ZoomLabel() string {
	return fmt.Sprintf("%d%%", int(math.Round(t.Zoom*100)))
}

// rotateBy adds degrees to an angle and wraps the result into [0, 360)
func rotateBy(angle, degrees int) int {
	a := (angle + degrees) % 360
	if a < 0 {
		a += 360
	}
	return a
}

// zoomBy scales a zoom factor and clamps it to [minZoom, maxZoom]
func zoomBy(zoom, factor float64) float64 {
	return math.Max(minZoom, math.Min(zoom*factor, maxZoom))
}
