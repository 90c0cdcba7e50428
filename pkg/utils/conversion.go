package utils

import "strings"

func ConvertToFloat32(f []float64) []float32 {
	out := make([]float32, len(f))
	for i, v := range f {
		out[i] = float32(v)
	}
	return out
}

// Truncate shortens s to at most max runes, appending an ellipsis when
// anything was cut.
func Truncate(s string, max int) string {
	s = strings.TrimSpace(s)
	runes := []rune(s)

	if len(runes) <= max {
		return s
	}

	return string(runes[:max]) + "…"
}
