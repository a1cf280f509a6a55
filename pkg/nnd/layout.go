package nnd

import "fmt"

// Layout identifies the axis ordering of a tensor. Axis letters are listed
// most-significant first: O output features, I input features, Y/X spatial.
type Layout uint8

const (
	LayoutO    Layout = iota // also used for F, I and X vectors
	LayoutOI                 // BF, BX
	LayoutIO                 // FB, XB
	LayoutOIYX               // BFYX
	LayoutYXIO               // YXFB
)

// Layouts lists every supported layout.
var Layouts = []Layout{LayoutO, LayoutOI, LayoutIO, LayoutOIYX, LayoutYXIO}

// Code returns the header layout code.
func (l Layout) Code() uint8 {
	switch l {
	case LayoutO:
		return 0
	case LayoutIO:
		return 1
	case LayoutOI:
		return 2
	case LayoutOIYX:
		return 8
	case LayoutYXIO:
		return 11
	default:
		return 0xFF
	}
}

// layoutFromCode decodes a header layout code. Legacy codes carry an fp16
// offset, so only the remainder is significant.
func layoutFromCode(code uint8) (Layout, bool) {
	switch code % LegacyLayoutOffset {
	case 0:
		return LayoutO, true
	case 1:
		return LayoutIO, true
	case 2:
		return LayoutOI, true
	case 4, 11:
		return LayoutYXIO, true
	case 8:
		return LayoutOIYX, true
	default:
		return 0, false
	}
}

// MaxAxes returns the number of axes the layout describes.
func (l Layout) MaxAxes() int {
	switch l {
	case LayoutO:
		return 1
	case LayoutOI, LayoutIO:
		return 2
	case LayoutOIYX, LayoutYXIO:
		return 4
	default:
		return 0
	}
}

// Valid reports whether l is one of the supported layouts.
func (l Layout) Valid() bool { return l.MaxAxes() != 0 }

// outputAxis returns the index (most-significant first) of the output feature
// axis, or -1.
func (l Layout) outputAxis() int {
	switch l {
	case LayoutO, LayoutOI, LayoutOIYX:
		return 0
	case LayoutIO:
		return 1
	case LayoutYXIO:
		return 3
	default:
		return -1
	}
}

// inputAxis returns the index of the input feature axis, or -1.
func (l Layout) inputAxis() int {
	switch l {
	case LayoutOI, LayoutOIYX:
		return 1
	case LayoutIO:
		return 0
	case LayoutYXIO:
		return 2
	default:
		return -1
	}
}

func (l Layout) String() string {
	switch l {
	case LayoutO:
		return "O"
	case LayoutOI:
		return "OI"
	case LayoutIO:
		return "IO"
	case LayoutOIYX:
		return "OIYX"
	case LayoutYXIO:
		return "YXIO"
	default:
		return fmt.Sprintf("Layout(%d)", uint8(l))
	}
}
