package record

import "github.com/ardnew/mpa/pkg"

// FrameClass is the role of an encoded-video frame within its GOP
// (group of pictures): header, I (key), P (predicted), or B (bidirectional,
// currently unsupported per spec open questions).
type FrameClass int

const (
	FrameClassUnknown FrameClass = iota
	FrameClassHeader
	FrameClassI
	FrameClassP
	FrameClassB
)

// String names a FrameClass for logging.
func (c FrameClass) String() string {
	switch c {
	case FrameClassHeader:
		return "header"
	case FrameClassI:
		return "I"
	case FrameClassP:
		return "P"
	case FrameClassB:
		return "B"
	default:
		return "unknown"
	}
}

// videoMarkerOffset is the byte offset inside a payload the classifiers
// inspect to determine frame class (spec §4.2).
const videoMarkerOffset = 4

// ClassifyH264 classifies payload per the H264 NAL marker convention:
// 0x67 header, 0x65 I, 0x41 P. Any other byte at offset 4 is rejected.
func ClassifyH264(payload []byte) (FrameClass, error) {
	return classify(payload, map[byte]FrameClass{
		0x67: FrameClassHeader,
		0x65: FrameClassI,
		0x41: FrameClassP,
	})
}

// ClassifyH265 classifies payload per the H265 NAL marker convention:
// 0x40 header, 0x26 I, 0x02 P. Any other byte at offset 4 is rejected.
func ClassifyH265(payload []byte) (FrameClass, error) {
	return classify(payload, map[byte]FrameClass{
		0x40: FrameClassHeader,
		0x26: FrameClassI,
		0x02: FrameClassP,
	})
}

func classify(payload []byte, markers map[byte]FrameClass) (FrameClass, error) {
	if len(payload) <= videoMarkerOffset {
		return FrameClassUnknown, pkg.ErrShortRead
	}
	if class, ok := markers[payload[videoMarkerOffset]]; ok {
		return class, nil
	}
	pkg.LogWarn(pkg.ComponentFraming, "unclassified encoded-video frame marker",
		"marker", payload[videoMarkerOffset])
	return FrameClassB, pkg.ErrUnclassifiedFrame
}
