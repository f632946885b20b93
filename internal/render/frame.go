// Package render draws world snapshots to PNG frames with gg.
package render

import (
	"image"
	"image/color"
	"io"
	"sync"

	"github.com/fogleman/gg"

	"megasap/internal/game"
)

// Palette
var (
	colorBackground = color.RGBA{12, 12, 28, 255}
	colorGrid       = color.RGBA{30, 30, 45, 255}
	colorStatic     = color.RGBA{240, 170, 90, 255}
	colorCollidable = color.RGBA{230, 60, 120, 255}
	colorHit        = color.RGBA{83, 255, 69, 255}
	colorPairLine   = color.RGBA{255, 255, 255, 160}
	colorBounds     = color.RGBA{255, 255, 255, 60}
)

// gridStep matches the spawn lattice.
const gridStep = 16

// Renderer draws snapshots into a reused gg context. Safe for concurrent
// use; frames are serialized.
type Renderer struct {
	mu         sync.Mutex
	scale      float64
	showBounds bool
	dc         *gg.Context
	w, h       int
}

// Options configures a Renderer.
type Options struct {
	Scale      float64 // output pixels per world pixel, default 2
	ShowBounds bool    // outline every AABB
}

// NewRenderer creates a renderer. The context is allocated on the first frame.
func NewRenderer(opts Options) *Renderer {
	if opts.Scale <= 0 {
		opts.Scale = 2
	}
	return &Renderer{scale: opts.Scale, showBounds: opts.ShowBounds}
}

// context returns a context sized for the world, reallocating on resize.
func (r *Renderer) context(w, h int) *gg.Context {
	if r.dc == nil || r.w != w || r.h != h {
		r.dc = gg.NewContext(int(float64(w)*r.scale), int(float64(h)*r.scale))
		r.w, r.h = w, h
	}
	return r.dc
}

// Draw renders snap and returns a copy of the frame.
func (r *Renderer) Draw(snap *game.WorldSnapshot) image.Image {
	r.mu.Lock()
	defer r.mu.Unlock()

	dc := r.draw(snap)
	src := dc.Image()
	out := image.NewRGBA(src.Bounds())
	copy(out.Pix, src.(*image.RGBA).Pix)
	return out
}

// EncodePNG renders snap and writes it as PNG.
func (r *Renderer) EncodePNG(w io.Writer, snap *game.WorldSnapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.draw(snap).EncodePNG(w)
}

func (r *Renderer) draw(snap *game.WorldSnapshot) *gg.Context {
	dc := r.context(snap.Width, snap.Height)

	dc.Push()
	defer dc.Pop()
	dc.Scale(r.scale, r.scale)

	r.drawBackground(dc, snap.Width, snap.Height)

	hit := make(map[int]bool, len(snap.Pairs)*2)
	for _, p := range snap.Pairs {
		hit[p.A] = true
		hit[p.B] = true
	}

	byID := make(map[int]game.DonutSnapshot, len(snap.Donuts))
	for _, d := range snap.Donuts {
		byID[d.ID] = d
		r.drawDonut(dc, d, hit[d.ID])
	}

	r.drawPairs(dc, snap.Pairs, byID)
	return dc
}

func (r *Renderer) drawBackground(dc *gg.Context, w, h int) {
	dc.SetColor(colorBackground)
	dc.DrawRectangle(0, 0, float64(w), float64(h))
	dc.Fill()

	dc.SetColor(colorGrid)
	dc.SetLineWidth(1 / r.scale)
	for x := gridStep; x < w; x += gridStep {
		dc.DrawLine(float64(x), 0, float64(x), float64(h))
		dc.Stroke()
	}
	for y := gridStep; y < h; y += gridStep {
		dc.DrawLine(0, float64(y), float64(w), float64(y))
		dc.Stroke()
	}
}

// drawDonut draws a ring inscribed in the donut's box.
func (r *Renderer) drawDonut(dc *gg.Context, d game.DonutSnapshot, hit bool) {
	size := float64(d.Size)
	cx := float64(d.X) + size/2
	cy := float64(d.Y) + size/2

	c := colorStatic
	if d.Kind == "collidable" {
		c = colorCollidable
	}
	if hit {
		c = colorHit
	}

	dc.SetColor(c)
	dc.SetLineWidth(size / 4)
	dc.DrawCircle(cx, cy, size*3/8)
	dc.Stroke()

	if r.showBounds {
		dc.SetColor(colorBounds)
		dc.SetLineWidth(1 / r.scale)
		dc.DrawRectangle(float64(d.X), float64(d.Y), size, size)
		dc.Stroke()
	}
}

// drawPairs links the centres of every pair reported this tick.
func (r *Renderer) drawPairs(dc *gg.Context, pairs []game.PairSnapshot, byID map[int]game.DonutSnapshot) {
	dc.SetColor(colorPairLine)
	dc.SetLineWidth(1)
	for _, p := range pairs {
		a, okA := byID[p.A]
		b, okB := byID[p.B]
		if !okA || !okB {
			continue
		}
		dc.DrawLine(
			float64(a.X)+float64(a.Size)/2, float64(a.Y)+float64(a.Size)/2,
			float64(b.X)+float64(b.Size)/2, float64(b.Y)+float64(b.Size)/2,
		)
		dc.Stroke()
	}
}
