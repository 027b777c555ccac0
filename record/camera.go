package record

// CameraFormat identifies the pixel/codec format of a camera metadata
// record's payload.
type CameraFormat uint32

// Recognized camera formats. Values beyond GRAY/RGB/H264/H265 are treated
// as opaque raw payloads of size_bytes and never frame-classified.
const (
	CameraFormatGray CameraFormat = iota
	CameraFormatRGB
	CameraFormatH264
	CameraFormatH265
	CameraFormatStereoGray
)

// CameraMetadataSize is the packed on-wire width of CameraMetadata.
const CameraMetadataSize = 48

// CameraMetadata is the 48-byte fixed header preceding a camera frame's
// image payload. Stereo formats split the size_bytes payload 50/50 into
// left then right.
type CameraMetadata struct {
	Magic      uint32
	Timestamp  uint64 // nanoseconds, monotonic
	FrameID    uint32
	Width      uint32
	Height     uint32
	SizeBytes  uint32
	Stride     uint32
	Exposure   uint32 // microseconds
	Gain       uint32 // sensor gain, arbitrary units
	Format     CameraFormat
	Framerate  uint32 // frames per second x1000, fixed point
	_reserved0 uint32
}

// Size returns CameraMetadataSize.
func (m *CameraMetadata) Size() int { return CameraMetadataSize }

// ParseFrom decodes a CameraMetadata from buf, validating the magic prefix.
func (m *CameraMetadata) ParseFrom(buf []byte) bool {
	if len(buf) < CameraMetadataSize || !ValidateMagic(buf) {
		return false
	}
	m.Magic = le32(buf[0:4])
	m.Timestamp = le64(buf[4:12])
	m.FrameID = le32(buf[12:16])
	m.Width = le32(buf[16:20])
	m.Height = le32(buf[20:24])
	m.SizeBytes = le32(buf[24:28])
	m.Stride = le32(buf[28:32])
	m.Exposure = le32(buf[32:36])
	m.Gain = le32(buf[36:40])
	m.Format = CameraFormat(le32(buf[40:44]))
	m.Framerate = le32(buf[44:48])
	return true
}

// MarshalTo writes m to buf in wire order, returning the number of bytes
// written (CameraMetadataSize), or 0 if buf is too small.
func (m *CameraMetadata) MarshalTo(buf []byte) int {
	if len(buf) < CameraMetadataSize {
		return 0
	}
	putLE32(buf[0:4], Magic)
	putLE64(buf[4:12], m.Timestamp)
	putLE32(buf[12:16], m.FrameID)
	putLE32(buf[16:20], m.Width)
	putLE32(buf[20:24], m.Height)
	putLE32(buf[24:28], m.SizeBytes)
	putLE32(buf[28:32], m.Stride)
	putLE32(buf[32:36], m.Exposure)
	putLE32(buf[36:40], m.Gain)
	putLE32(buf[40:44], uint32(m.Format))
	putLE32(buf[44:48], m.Framerate)
	return CameraMetadataSize
}

// IsEncodedVideo reports whether Format carries H264/H265 payloads subject
// to header/I/P frame sequencing rather than opaque raw image bytes.
func (m *CameraMetadata) IsEncodedVideo() bool {
	return m.Format == CameraFormatH264 || m.Format == CameraFormatH265
}

// IsStereo reports whether the payload must be split 50/50 into left/right.
func (m *CameraMetadata) IsStereo() bool {
	return m.Format == CameraFormatStereoGray
}

// SplitStereo splits payload 50/50 into left then right, per a stereo
// frame's wire layout (spec §4.2 "Stereo pairs split the payload 50/50
// into left then right"). If m is not stereo, it returns payload, nil.
func (m *CameraMetadata) SplitStereo(payload []byte) (left, right []byte) {
	if !m.IsStereo() {
		return payload, nil
	}
	half := len(payload) / 2
	return payload[:half], payload[half:]
}

func le32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

func le64(b []byte) uint64 {
	var v uint64
	for i := 7; i >= 0; i-- {
		v = v<<8 | uint64(b[i])
	}
	return v
}

func putLE32(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}

func putLE64(b []byte, v uint64) {
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * uint(i)))
	}
}
