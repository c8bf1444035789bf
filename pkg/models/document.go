package models

// BoundingBox is an axis-aligned rectangle in page-pixel coordinates.
type BoundingBox struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Right returns the x coordinate of the right edge.
func (b BoundingBox) Right() int { return b.X + b.Width }

// Bottom returns the y coordinate of the bottom edge.
func (b BoundingBox) Bottom() int { return b.Y + b.Height }

// CenterY returns the vertical centre of the box.
func (b BoundingBox) CenterY() float64 { return float64(b.Y) + float64(b.Height)/2 }

// Empty reports whether the box has no area.
func (b BoundingBox) Empty() bool { return b.Width <= 0 || b.Height <= 0 }

// Union returns the smallest box containing both b and o.
func (b BoundingBox) Union(o BoundingBox) BoundingBox {
	if b.Empty() {
		return o
	}
	if o.Empty() {
		return b
	}
	x := min(b.X, o.X)
	y := min(b.Y, o.Y)
	return BoundingBox{
		X:      x,
		Y:      y,
		Width:  max(b.Right(), o.Right()) - x,
		Height: max(b.Bottom(), o.Bottom()) - y,
	}
}

// RecognizedToken is one unit of OCR output. Tokens are immutable once the
// OCR adapter returns them.
type RecognizedToken struct {
	Text       string      `json:"text"`
	Box        BoundingBox `json:"box"`
	Confidence float64     `json:"confidence"` // 0..1
	Page       int         `json:"page"`
}

type Page struct {
	Index  int    // zero-based page index
	Image  []byte // encoded bitmap
	Format string // "png"
	Width  int
	Height int
	DPI    int
}

// Document is the unit of work for a single request. It is never persisted.
type Document struct {
	ID       string
	Filename string
	Source   []byte // raw PDF bytes
	Size     int64
	Pages    []Page
}
