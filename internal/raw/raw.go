// Package raw handles the pixel encoding of Diondo RAW projection frames.
// Frames are header-less little-endian unsigned integer arrays; this package
// decodes them into float32 buffers for downstream processing.
package raw

import (
	"encoding/binary"
	"fmt"
)

// ElementType identifies the on-disk integer encoding of RAW samples.
type ElementType int

const (
	// Uint16 is the scanner default encoding.
	Uint16 ElementType = iota
	Uint8
	Uint32
)

// ItemSize returns the number of bytes per sample.
func (e ElementType) ItemSize() int {
	switch e {
	case Uint8:
		return 1
	case Uint16:
		return 2
	case Uint32:
		return 4
	}
	return 0
}

func (e ElementType) String() string {
	switch e {
	case Uint8:
		return "uint8"
	case Uint16:
		return "uint16"
	case Uint32:
		return "uint32"
	}
	return fmt.Sprintf("ElementType(%d)", int(e))
}

// ParseElementType converts a configuration string such as "uint16" into an
// ElementType.
func ParseElementType(s string) (ElementType, error) {
	switch s {
	case "uint8":
		return Uint8, nil
	case "uint16", "":
		return Uint16, nil
	case "uint32":
		return Uint32, nil
	}
	return 0, fmt.Errorf("unknown element type %q", s)
}

// DecodeInto decodes buf as little-endian samples of type e into dst.
// The buffer must hold exactly len(dst) samples.
func DecodeInto(dst []float32, buf []byte, e ElementType) error {
	itemSize := e.ItemSize()
	if itemSize == 0 {
		return fmt.Errorf("invalid element type %v", e)
	}
	if len(buf) != len(dst)*itemSize {
		return fmt.Errorf("buffer holds %d bytes, want %d (%d samples of %v)",
			len(buf), len(dst)*itemSize, len(dst), e)
	}

	switch e {
	case Uint8:
		for i := range dst {
			dst[i] = float32(buf[i])
		}
	case Uint16:
		for i := range dst {
			dst[i] = float32(binary.LittleEndian.Uint16(buf[i*2:]))
		}
	case Uint32:
		for i := range dst {
			dst[i] = float32(binary.LittleEndian.Uint32(buf[i*4:]))
		}
	}
	return nil
}
