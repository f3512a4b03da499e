// Package colormap provides the color schemes used by rank plot payloads.
package colormap

import (
	"fmt"
	"image/color"
)

// LinearColormap is a linear interpolation colormap.
type LinearColormap struct {
	colors []color.RGBA
}

// At returns the color at position t (0-1).
func (c LinearColormap) At(t float64) color.Color {
	if t <= 0 {
		return c.colors[0]
	}
	if t >= 1 {
		return c.colors[len(c.colors)-1]
	}

	idx := t * float64(len(c.colors)-1)
	lower := int(idx)
	upper := lower + 1
	if upper >= len(c.colors) {
		upper = len(c.colors) - 1
	}

	frac := idx - float64(lower)
	return interpolate(c.colors[lower], c.colors[upper], frac)
}

// Ramp samples n evenly spaced colors from 0 to 1 as hex strings. With as
// many steps as control points the ramp reproduces them exactly.
func (c LinearColormap) Ramp(n int) []string {
	if n <= 0 {
		return nil
	}
	if n == 1 {
		return []string{Hex(c.At(0))}
	}
	out := make([]string, n)
	for i := range out {
		out[i] = Hex(c.At(float64(i) / float64(n-1)))
	}
	return out
}

// Len returns the number of control points.
func (c LinearColormap) Len() int { return len(c.colors) }

func interpolate(c1, c2 color.RGBA, t float64) color.RGBA {
	return color.RGBA{
		R: uint8(float64(c1.R) + t*(float64(c2.R)-float64(c1.R))),
		G: uint8(float64(c1.G) + t*(float64(c2.G)-float64(c1.G))),
		B: uint8(float64(c1.B) + t*(float64(c2.B)-float64(c1.B))),
		A: 255,
	}
}

// Hex formats a color as #rrggbb.
func Hex(c color.Color) string {
	r, g, b, _ := c.RGBA()
	return fmt.Sprintf("#%02x%02x%02x", r>>8, g>>8, b>>8)
}

// Blues is a sequential white-to-blue ramp for numeric sample fields.
var Blues = LinearColormap{
	colors: []color.RGBA{
		{247, 251, 255, 255},
		{222, 235, 247, 255},
		{198, 219, 239, 255},
		{158, 202, 225, 255},
		{107, 174, 214, 255},
		{66, 146, 198, 255},
		{33, 113, 181, 255},
		{8, 81, 156, 255},
		{8, 48, 107, 255},
	},
}

// CategoricalColormap provides distinct colors for categories.
type CategoricalColormap struct {
	colors []color.RGBA
}

// AtIndex returns color at index.
func (c CategoricalColormap) AtIndex(i int) color.Color {
	return c.colors[i%len(c.colors)]
}

// Assign gives each category a color in order, wrapping when there are more
// categories than colors.
func (c CategoricalColormap) Assign(categories []string) map[string]string {
	out := make(map[string]string, len(categories))
	for i, cat := range categories {
		out[cat] = Hex(c.AtIndex(i))
	}
	return out
}

// Tableau10 is the default categorical scheme for sample metadata.
var Tableau10 = CategoricalColormap{
	colors: []color.RGBA{
		{78, 121, 167, 255},  // Blue
		{242, 142, 43, 255},  // Orange
		{225, 87, 89, 255},   // Red
		{118, 183, 178, 255}, // Teal
		{89, 161, 79, 255},   // Green
		{237, 201, 72, 255},  // Yellow
		{176, 122, 161, 255}, // Purple
		{255, 157, 167, 255}, // Pink
		{156, 117, 95, 255},  // Brown
		{186, 176, 172, 255}, // Gray
	},
}

// Classification colors for the log-ratio membership of a feature, keyed by
// classification value.
var Classification = map[string]color.RGBA{
	"None":        {224, 224, 224, 255},
	"Numerator":   {255, 0, 0, 255},
	"Denominator": {0, 0, 255, 255},
	"Both":        {153, 68, 153, 255},
}

// ClassificationHex returns the hex color for each value in domain. Values
// without a classification color are omitted.
func ClassificationHex(domain []string) map[string]string {
	out := make(map[string]string, len(domain))
	for _, v := range domain {
		if c, ok := Classification[v]; ok {
			out[v] = Hex(c)
		}
	}
	return out
}
