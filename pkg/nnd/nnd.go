// Package nnd implements the NND tensor file format.
//
// An NND file holds exactly one tensor: a fixed 8-byte header, one
// little-endian uint64 per axis (least-significant axis first) and the raw
// element payload. Only format version 3 is supported.
package nnd

// NND global constants must never change.
const (
	// Magic is the file magic for all NND files.
	Magic = "nnd"

	// Version is the only supported format revision.
	Version uint8 = 3

	// HeaderSize is the size of the fixed header in bytes.
	HeaderSize = 8

	// AxisSize is the size of one encoded axis extent.
	AxisSize = 8

	// LegacyLayoutOffset is added to the layout code of fp16 tensors when the
	// legacy layout encoding is requested. Older readers derived the element
	// type from the layout code.
	LegacyLayoutOffset = 19
)
