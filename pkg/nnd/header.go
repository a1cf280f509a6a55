package nnd

// Header is the fixed 8-byte NND header.
type Header struct {
	Magic      [3]byte
	TypeCode   byte
	Version    uint8
	Axes       uint8
	ElemSize   uint8
	LayoutCode uint8
}

// Valid reports whether the header carries the NND magic.
func (h *Header) Valid() bool {
	return string(h.Magic[:]) == Magic
}

// Compatible reports whether the header version can be decoded.
func (h *Header) Compatible() bool {
	return h.Version == Version
}

func encodeHeader(dst []byte, h *Header) bool {
	if len(dst) < HeaderSize || h == nil {
		return false
	}
	copy(dst[0:3], h.Magic[:])
	dst[3] = h.TypeCode
	dst[4] = h.Version
	dst[5] = h.Axes
	dst[6] = h.ElemSize
	dst[7] = h.LayoutCode
	return true
}

func decodeHeader(src []byte) (Header, bool) {
	var h Header
	if len(src) < HeaderSize {
		return h, false
	}
	copy(h.Magic[:], src[0:3])
	h.TypeCode = src[3]
	h.Version = src[4]
	h.Axes = src[5]
	h.ElemSize = src[6]
	h.LayoutCode = src[7]
	return h, true
}
