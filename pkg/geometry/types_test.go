package geometry

import (
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRectIntUnion(t *testing.T) {
	a := RectInt{X: 10, Y: 10, Width: 5, Height: 5}
	b := RectInt{X: 0, Y: 12, Width: 4, Height: 10}

	assert.Equal(t, RectInt{X: 0, Y: 10, Width: 15, Height: 12}, a.Union(b))
	assert.Equal(t, a, a.Union(RectInt{}))
	assert.Equal(t, b, RectInt{}.Union(b))
}

func TestRectIntArea(t *testing.T) {
	assert.Equal(t, 0, RectInt{Width: -1, Height: 4}.Area())
	assert.Equal(t, 12, FromImageRect(image.Rect(1, 1, 4, 5)).Area())
	assert.True(t, RectInt{Width: 3}.Empty())
}

func TestRectIntString(t *testing.T) {
	assert.Equal(t, "80x12+10+5", RectInt{X: 10, Y: 5, Width: 80, Height: 12}.String())
	assert.Equal(t, "0x0+0+0", RectInt{}.String())
}
