package record

import (
	"encoding/binary"

	"github.com/ardnew/mpa/pkg"
)

// Magic is the 32-bit little-endian prefix ("VOXL" in ASCII) every mpa
// record begins with.
const Magic uint32 = 0x564F584C

// MagicSize is the width in bytes of the magic prefix.
const MagicSize = 4

// ValidateMagic reports whether buf begins with Magic.
func ValidateMagic(buf []byte) bool {
	if len(buf) < MagicSize {
		return false
	}
	return binary.LittleEndian.Uint32(buf) == Magic
}

// Sized is implemented by a pointer to any fixed-width record type counted
// by CountRecords.
type Sized interface {
	// Size returns the on-wire byte width of one record of this type.
	Size() int
	// ParseFrom decodes one record from buf, which is guaranteed to hold
	// at least Size() bytes. ParseFrom returns false if the magic prefix
	// does not validate.
	ParseFrom(buf []byte) bool
}

// CountRecords scans buf for consecutive valid records of type T, stopping
// at the first short or invalid tail. Callers pre-allocate read buffers
// that are a multiple of T's record size, so in practice a tail is never
// partial — this only guards against a caller that didn't.
//
// T is the value record type (e.g. CameraMetadata); PT is its pointer type,
// which must implement Sized. This two-parameter shape is the standard way
// to write a generic function over pointer-receiver methods in Go.
func CountRecords[T any, PT interface {
	*T
	Sized
}](buf []byte) (int, []T) {
	var zero T
	size := PT(&zero).Size()
	if size <= 0 {
		return 0, nil
	}

	out := make([]T, 0, len(buf)/size)
	for off := 0; off+size <= len(buf); off += size {
		var rec T
		if !PT(&rec).ParseFrom(buf[off : off+size]) {
			pkg.LogWarn(pkg.ComponentFraming, "record failed to parse, stopping scan",
				"offset", off)
			break
		}
		out = append(out, rec)
	}
	return len(out), out
}
