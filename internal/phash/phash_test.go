package phash

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gradient(w, h int, invert bool) image.Image {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := uint8((x * 255) / w)
			if invert {
				v = 255 - v
			}
			img.SetGray(x, y, color.Gray{Y: v})
		}
	}
	return img
}

func TestDistance(t *testing.T) {
	tests := []struct {
		name string
		a, b Fingerprint
		want int
	}{
		{"identical", 0xdeadbeef, 0xdeadbeef, 0},
		{"one bit", 0b1010, 0b1000, 1},
		{"all bits", 0, ^Fingerprint(0), 64},
		{"two bits high and low", 1 << 63, 1, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Distance(tt.a, tt.b))
			assert.Equal(t, tt.want, Distance(tt.b, tt.a))
		})
	}
}

func TestParseRoundTrip(t *testing.T) {
	f := Fingerprint(0x00ff00ff12345678)
	assert.Equal(t, "00ff00ff12345678", f.String())

	back, err := Parse(f.String())
	require.NoError(t, err)
	assert.Equal(t, f, back)

	_, err = Parse("abc")
	assert.Error(t, err)
	_, err = Parse("zzzzzzzzzzzzzzzz")
	assert.Error(t, err)
}

func TestCompute(t *testing.T) {
	a, err := Compute(gradient(256, 256, false))
	require.NoError(t, err)
	b, err := Compute(gradient(256, 256, false))
	require.NoError(t, err)
	c, err := Compute(gradient(256, 256, true))
	require.NoError(t, err)

	assert.Equal(t, 0, Distance(a, b), "same pixels hash identically")
	assert.NotEqual(t, a, c, "inverted image hashes differently")
}
