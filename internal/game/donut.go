package game

import "megasap/internal/game/spatial"

// Donut is one bouncing sprite of the demo world. It implements
// spatial.Entity; bounds are refreshed once per tick before the broad phase
// runs and stay fixed while it sweeps.
type Donut struct {
	ID           int
	X, Y         int // top-left corner in pixels
	MoveX, MoveY int // signed velocity in pixels per tick
	Size         int

	kind   spatial.Kind
	bounds spatial.AABB

	alive     bool
	respawnAt uint64 // tick at which a destroyed donut comes back
	hits      int
}

// NewDonut creates a donut at (x, y) and computes its bounds.
func NewDonut(id, x, y, size int, kind spatial.Kind, moveX, moveY int) *Donut {
	d := &Donut{
		ID:    id,
		X:     x,
		Y:     y,
		MoveX: moveX,
		MoveY: moveY,
		Size:  size,
		kind:  kind,
		alive: true,
	}
	d.refresh()
	return d
}

// Bounds returns the box computed at the last refresh.
func (d *Donut) Bounds() spatial.AABB { return d.bounds }

// Kind returns the collidability attribute.
func (d *Donut) Kind() spatial.Kind { return d.kind }

// Alive reports whether the donut is on screen.
func (d *Donut) Alive() bool { return d.alive }

// Hits returns how many pairs the donut took part in.
func (d *Donut) Hits() int { return d.hits }

func (d *Donut) refresh() {
	s := uint16(d.Size)
	d.bounds = spatial.NewAABB(uint16(d.X), uint16(d.Y), s, s)
}

// step moves the donut by its velocity and bounces off the playfield
// edges. maxX and maxY are the largest valid top-left coordinates.
func (d *Donut) step(maxX, maxY int) {
	nx := d.X + d.MoveX
	ny := d.Y + d.MoveY

	if nx < 0 {
		nx = 0
		d.MoveX = -d.MoveX
	}
	if ny < 0 {
		ny = 0
		d.MoveY = -d.MoveY
	}
	if nx >= maxX {
		nx = maxX
		d.MoveX = -d.MoveX
	}
	if ny >= maxY {
		ny = maxY
		d.MoveY = -d.MoveY
	}

	d.X, d.Y = nx, ny
	d.refresh()
}

// rebound is the collision response: reverse the vertical velocity.
func (d *Donut) rebound() {
	d.MoveY = -d.MoveY
	d.hits++
}
