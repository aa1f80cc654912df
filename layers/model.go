package layers

import (
	"fmt"
)

// the host imposes a hard ceiling on group nesting.
// grouping past this depth hangs the host, so it is guarded locally
// before any request is issued.
const MaxNestingDepth = 9

// layer and document ids are assigned by the host and stable for the
// life of the document
type LayerId = int64
type DocumentId = int64

type LayerKind int

const (
	LayerKindAny LayerKind = 0
	LayerKindPixel LayerKind = 1
	LayerKindText LayerKind = 3
	LayerKindVector LayerKind = 4
	LayerKindSmartObject LayerKind = 5
	LayerKindGroup LayerKind = 7
	LayerKindGroupEnd LayerKind = 13
	LayerKindArtboard LayerKind = 14
	LayerKindBackground LayerKind = 15
)

func (self LayerKind) String() string {
	switch self {
	case LayerKindPixel:
		return "pixel"
	case LayerKindText:
		return "text"
	case LayerKindVector:
		return "vector"
	case LayerKindSmartObject:
		return "smartObject"
	case LayerKindGroup:
		return "group"
	case LayerKindGroupEnd:
		return "groupEnd"
	case LayerKindArtboard:
		return "artboard"
	case LayerKindBackground:
		return "background"
	default:
		return fmt.Sprintf("kind(%d)", int(self))
	}
}

type BlendMode = string

const (
	BlendNormal BlendMode = "normal"
	BlendDissolve BlendMode = "dissolve"
	BlendMultiply BlendMode = "multiply"
	BlendScreen BlendMode = "screen"
	BlendOverlay BlendMode = "overlay"
	BlendPassThrough BlendMode = "passThrough"
)

type Bounds struct {
	Top float64 `json:"top"`
	Left float64 `json:"left"`
	Bottom float64 `json:"bottom"`
	Right float64 `json:"right"`
}

func (self Bounds) Width() float64 {
	return self.Right - self.Left
}

func (self Bounds) Height() float64 {
	return self.Bottom - self.Top
}

func (self Bounds) Area() float64 {
	return self.Width() * self.Height()
}

func (self Bounds) Translate(dx float64, dy float64) Bounds {
	return Bounds{
		Top: self.Top + dy,
		Left: self.Left + dx,
		Bottom: self.Bottom + dy,
		Right: self.Right + dx,
	}
}

// immutable value. layer nodes are replaced wholesale on update, never
// mutated in place. `Depth` is derived from the flat marker structure
// when the document model is built.
type LayerNode struct {
	Id LayerId `json:"id"`
	Kind LayerKind `json:"kind"`
	Name string `json:"name"`
	Visible bool `json:"visible"`
	Locked bool `json:"locked"`
	Opacity int `json:"opacity"`
	Mode BlendMode `json:"mode"`
	// absent for groups and empty layers
	Bounds *Bounds `json:"bounds,omitempty"`
	Selected bool `json:"selected"`
	Proportional bool `json:"proportional"`
	Depth int `json:"depth"`
}

func (self *LayerNode) IsBackground() bool {
	return self.Kind == LayerKindBackground
}

func (self *LayerNode) IsGroupStart() bool {
	return self.Kind == LayerKindGroup || self.Kind == LayerKindArtboard
}

func (self *LayerNode) IsGroupEnd() bool {
	return self.Kind == LayerKindGroupEnd
}

// zero-area covers both a nil bounds and a degenerate rect,
// which is how the host reports the empty placeholder layer
func (self *LayerNode) ZeroArea() bool {
	return self.Bounds == nil || self.Bounds.Area() == 0
}

func (self *LayerNode) Clone() *LayerNode {
	next := *self
	if self.Bounds != nil {
		bounds := *self.Bounds
		next.Bounds = &bounds
	}
	return &next
}

func (self *LayerNode) String() string {
	return fmt.Sprintf("layer(%d %s %q)", self.Id, self.Kind, self.Name)
}
