package colormap

import (
	"image/color"
	"testing"
)

func TestBluesEndpoints(t *testing.T) {
	t.Parallel()

	c0, ok := Blues.At(0).(color.RGBA)
	if !ok {
		t.Fatalf("expected color.RGBA at t=0")
	}
	if c0 != (color.RGBA{R: 247, G: 251, B: 255, A: 255}) {
		t.Fatalf("unexpected Blues.At(0): %#v", c0)
	}

	if got := Hex(Blues.At(1)); got != "#08306b" {
		t.Fatalf("unexpected Blues.At(1): %s", got)
	}
}

func TestRamp(t *testing.T) {
	t.Parallel()

	stops := Blues.Ramp(Blues.Len())
	if len(stops) != 9 {
		t.Fatalf("expected 9 stops, got %d", len(stops))
	}
	if stops[0] != "#f7fbff" || stops[4] != "#6baed6" || stops[8] != "#08306b" {
		t.Fatalf("ramp does not reproduce control points: %v", stops)
	}

	three := Blues.Ramp(3)
	if three[0] != "#f7fbff" || three[1] != "#6baed6" || three[2] != "#08306b" {
		t.Fatalf("unexpected 3-step ramp: %v", three)
	}
	if got := Blues.Ramp(1); len(got) != 1 || got[0] != "#f7fbff" {
		t.Fatalf("unexpected 1-step ramp: %v", got)
	}
	if got := Blues.Ramp(0); got != nil {
		t.Fatalf("expected nil ramp, got %v", got)
	}
}

func TestBluesInterpolates(t *testing.T) {
	t.Parallel()

	// Halfway between the first two control points.
	got, ok := Blues.At(0.0625).(color.RGBA)
	if !ok {
		t.Fatalf("expected color.RGBA")
	}
	if got != (color.RGBA{R: 234, G: 243, B: 251, A: 255}) {
		t.Fatalf("unexpected midpoint color %#v", got)
	}
}

func TestClassificationHex(t *testing.T) {
	t.Parallel()

	got := ClassificationHex([]string{"None", "Numerator", "Denominator", "Both", "Other"})
	want := map[string]string{
		"None":        "#e0e0e0",
		"Numerator":   "#ff0000",
		"Denominator": "#0000ff",
		"Both":        "#994499",
	}
	if len(got) != len(want) {
		t.Fatalf("unexpected colors: %v", got)
	}
	for k, v := range want {
		if got[k] != v {
			t.Fatalf("color for %s: got %s, want %s", k, got[k], v)
		}
	}
}

func TestAssignWraps(t *testing.T) {
	t.Parallel()

	cats := make([]string, 12)
	for i := range cats {
		cats[i] = string(rune('a' + i))
	}
	got := Tableau10.Assign(cats)
	if got["a"] != got["k"] || got["b"] != got["l"] {
		t.Fatalf("expected palette to wrap: %v", got)
	}
	if got["a"] != "#4e79a7" {
		t.Fatalf("unexpected first color %s", got["a"])
	}
}
