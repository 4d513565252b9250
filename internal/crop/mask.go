package crop

import (
	"image"
	"image/color"
)

// circle is an alpha mask that is opaque inside the ellipse inscribed in a
// w×h rectangle at the origin.
type circle struct {
	w, h int
}

func (c *circle) ColorModel() color.Model {
	return color.AlphaModel
}

func (c *circle) Bounds() image.Rectangle {
	return image.Rect(0, 0, c.w, c.h)
}

func (c *circle) At(x, y int) color.Color {
	rx, ry := float64(c.w)/2, float64(c.h)/2
	dx := (float64(x) + 0.5 - rx) / rx
	dy := (float64(y) + 0.5 - ry) / ry
	if dx*dx+dy*dy <= 1 {
		return color.Alpha{A: 255}
	}
	return color.Alpha{}
}
