package record

import "github.com/ardnew/mpa/pkg"

// PointFormat identifies the per-point layout of a point-cloud payload.
type PointFormat uint32

// Recognized point-cloud formats and their stride table (spec §4.2).
const (
	PointFormatXYZ      PointFormat = iota // x,y,z float32
	PointFormatXYZC                        // x,y,z float32 + confidence float32
	PointFormatXYZRGB                      // x,y,z float32 + r,g,b uint8
	PointFormatXYZCRGB                     // x,y,z,confidence float32 + r,g,b uint8
	PointFormatXY                          // x,y float32
	PointFormatXYC                         // x,y,confidence float32
)

// StrideForFormat returns the per-point byte width for format, or false if
// format is not recognized.
func StrideForFormat(format PointFormat) (int, bool) {
	switch format {
	case PointFormatXYZ:
		return 12, true
	case PointFormatXYZC:
		return 16, true
	case PointFormatXYZRGB:
		return 15, true
	case PointFormatXYZCRGB:
		return 19, true
	case PointFormatXY:
		return 8, true
	case PointFormatXYC:
		return 12, true
	default:
		return 0, false
	}
}

// PointCloudMetadataSize is the packed on-wire width of PointCloudMetadata.
const PointCloudMetadataSize = 40

// ServerNameSize is the fixed width of PointCloudMetadata.ServerName.
const ServerNameSize = 16

// PointCloudMetadata is the fixed header preceding a point-cloud frame's
// point payload, whose length is NPoints * StrideForFormat(Format).
type PointCloudMetadata struct {
	Magic      uint32
	Timestamp  uint64
	NPoints    uint32
	Format     PointFormat
	ID         uint32
	ServerName [ServerNameSize]byte
	_reserved0 uint32
}

// Size returns PointCloudMetadataSize.
func (m *PointCloudMetadata) Size() int { return PointCloudMetadataSize }

// ParseFrom decodes a PointCloudMetadata from buf, validating the magic
// prefix.
func (m *PointCloudMetadata) ParseFrom(buf []byte) bool {
	if len(buf) < PointCloudMetadataSize || !ValidateMagic(buf) {
		return false
	}
	m.Magic = le32(buf[0:4])
	m.Timestamp = le64(buf[4:12])
	m.NPoints = le32(buf[12:16])
	m.Format = PointFormat(le32(buf[16:20]))
	m.ID = le32(buf[20:24])
	copy(m.ServerName[:], buf[24:24+ServerNameSize])
	return true
}

// MarshalTo writes m to buf in wire order, returning the number of bytes
// written (PointCloudMetadataSize), or 0 if buf is too small.
func (m *PointCloudMetadata) MarshalTo(buf []byte) int {
	if len(buf) < PointCloudMetadataSize {
		return 0
	}
	putLE32(buf[0:4], Magic)
	putLE64(buf[4:12], m.Timestamp)
	putLE32(buf[12:16], m.NPoints)
	putLE32(buf[16:20], uint32(m.Format))
	putLE32(buf[20:24], m.ID)
	copy(buf[24:24+ServerNameSize], m.ServerName[:])
	return PointCloudMetadataSize
}

// PayloadSize returns NPoints * stride for m.Format, or an error if the
// format has no known stride.
func (m *PointCloudMetadata) PayloadSize() (int, error) {
	stride, ok := StrideForFormat(m.Format)
	if !ok {
		return 0, pkg.ErrUnknownFormat
	}
	return int(m.NPoints) * stride, nil
}
