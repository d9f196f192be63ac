package testutil

import (
	"time"
)

// RandomString generates a random string of specified length
func RandomString(length int) string {
	const charset = "abcdefghijklmnopqrstuvwxyz0123456789"
	b := make([]byte, length)
	seed := time.Now().UnixNano()
	for i := range b {
		seed = seed*1103515245 + 12345 // Simple LCG
		idx := int(seed % int64(len(charset)))
		if idx < 0 {
			idx = -idx
		}
		b[i] = charset[idx]
	}
	return string(b)
}

// RandomVersion generates a unique world version string so integration tests
// sharing one database do not collide.
func RandomVersion() string {
	return "vtest_" + RandomString(8)
}

// ConstantSamples builds a width*width elevation grid where every sample
// holds the same value.
func ConstantSamples(width int, value int16) []int16 {
	samples := make([]int16, width*width)
	for i := range samples {
		samples[i] = value
	}
	return samples
}

// GradientSamples builds a width*width elevation grid where each sample is
// base plus its row index. Row 0 is the north edge, so elevation grows
// southward.
func GradientSamples(width int, base int16) []int16 {
	samples := make([]int16, width*width)
	for y := 0; y < width; y++ {
		for x := 0; x < width; x++ {
			samples[y*width+x] = base + int16(y)
		}
	}
	return samples
}
