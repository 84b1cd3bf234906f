package geo

import (
	"math"

	"github.com/twpayne/go-geom"
)

// BBox is a planar bounding box.
type BBox struct {
	MinX float64 `json:"min_x"`
	MinY float64 `json:"min_y"`
	MaxX float64 `json:"max_x"`
	MaxY float64 `json:"max_y"`
}

// emptyBBox returns a box that any Extend call will replace.
func emptyBBox() BBox {
	return BBox{
		MinX: math.Inf(1), MinY: math.Inf(1),
		MaxX: math.Inf(-1), MaxY: math.Inf(-1),
	}
}

// BBoxOf returns the bounding box of a geometry.
func BBoxOf(g geom.T) BBox {
	b := g.Bounds()
	if b.IsEmpty() {
		return emptyBBox()
	}
	return BBox{MinX: b.Min(0), MinY: b.Min(1), MaxX: b.Max(0), MaxY: b.Max(1)}
}

// Extend grows the box to include (x, y).
func (b BBox) Extend(x, y float64) BBox {
	b.MinX = math.Min(b.MinX, x)
	b.MinY = math.Min(b.MinY, y)
	b.MaxX = math.Max(b.MaxX, x)
	b.MaxY = math.Max(b.MaxY, y)
	return b
}

// IsEmpty reports whether no point was ever added to the box.
func (b BBox) IsEmpty() bool {
	return b.MinX > b.MaxX || b.MinY > b.MaxY
}

// Contains reports whether (x, y) lies inside or on the box.
func (b BBox) Contains(x, y float64) bool {
	return x >= b.MinX && x <= b.MaxX && y >= b.MinY && y <= b.MaxY
}
