package render

import (
	"bytes"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"megasap/internal/game"
)

func testSnapshot() *game.WorldSnapshot {
	return &game.WorldSnapshot{
		Width:  320,
		Height: 224,
		Donuts: []game.DonutSnapshot{
			{ID: 0, X: 10, Y: 10, Size: 16, Kind: "collidable"},
			{ID: 1, X: 18, Y: 12, Size: 16, Kind: "static"},
			{ID: 2, X: 200, Y: 100, Size: 16, Kind: "static"},
		},
		Pairs: []game.PairSnapshot{{A: 0, B: 1}, {A: 0, B: 9}},
	}
}

func TestEncodePNG(t *testing.T) {
	r := NewRenderer(Options{Scale: 2, ShowBounds: true})

	var buf bytes.Buffer
	require.NoError(t, r.EncodePNG(&buf, testSnapshot()))

	img, err := png.Decode(&buf)
	require.NoError(t, err)
	assert.Equal(t, 640, img.Bounds().Dx())
	assert.Equal(t, 448, img.Bounds().Dy())
}

func TestDrawColorsDonuts(t *testing.T) {
	r := NewRenderer(Options{Scale: 1})
	img := r.Draw(testSnapshot())

	// Ring of the lone static donut: centre (208,108), radius 6.
	cr, cg, cb, _ := img.At(208+6, 108).RGBA()
	assert.Equal(t, uint32(colorStatic.R), cr>>8)
	assert.Equal(t, uint32(colorStatic.G), cg>>8)
	assert.Equal(t, uint32(colorStatic.B), cb>>8)

	// Background far from everything.
	br, bg, bb, _ := img.At(300, 210).RGBA()
	assert.Equal(t, []uint32{12, 12, 28}, []uint32{br >> 8, bg >> 8, bb >> 8})
}

func TestDrawReturnsCopy(t *testing.T) {
	r := NewRenderer(Options{Scale: 1})
	first := r.Draw(testSnapshot())
	before := first.At(208+6, 108)

	empty := &game.WorldSnapshot{Width: 320, Height: 224}
	r.Draw(empty)

	assert.Equal(t, before, first.At(208+6, 108), "earlier frame must not be overwritten")
}

func TestDefaultScale(t *testing.T) {
	r := NewRenderer(Options{})
	img := r.Draw(&game.WorldSnapshot{Width: 100, Height: 50})
	assert.Equal(t, 200, img.Bounds().Dx())
}
