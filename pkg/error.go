package pkg

import "errors"

// Code is a stable negative error code, mirroring the integer codes the
// mpa wire protocol has historically exposed to non-Go bindings. Go callers
// should match errors with errors.Is against the sentinel values below;
// Code exists only for logging and for callers that must cross an FFI
// boundary.
type Code int

// Stable negative error codes.
const (
	CodeOther               Code = -1
	CodeServerNotAvailable  Code = -2
	CodeReachedMaxNameIndex Code = -3
	CodeFileIO              Code = -4
	CodeTimeout             Code = -5
	CodeInvalidArg          Code = -6
	CodeNotConnected        Code = -7
	CodeCtrlNotAvailable    Code = -8
	CodeInfoNotAvailable    Code = -9
	CodeChannelOOB          Code = -10
)

// String returns the human-readable single-line description for a code.
func (c Code) String() string {
	switch c {
	case CodeOther:
		return "other error"
	case CodeServerNotAvailable:
		return "server not available"
	case CodeReachedMaxNameIndex:
		return "reached max name index"
	case CodeFileIO:
		return "file I/O error"
	case CodeTimeout:
		return "timeout"
	case CodeInvalidArg:
		return "invalid argument"
	case CodeNotConnected:
		return "not connected"
	case CodeCtrlNotAvailable:
		return "control channel not available"
	case CodeInfoNotAvailable:
		return "info descriptor not available"
	case CodeChannelOOB:
		return "channel index out of bounds"
	default:
		return "unknown error"
	}
}

// fabricError pairs a stable Code with the sentinel error it wraps, so
// callers can use errors.Is against the sentinel while still recovering
// the numeric code via CodeOf.
type fabricError struct {
	code Code
	err  error
}

func (e *fabricError) Error() string { return e.err.Error() }
func (e *fabricError) Unwrap() error { return e.err }

// newError builds a sentinel error bearing the given code.
func newError(code Code, msg string) error {
	return &fabricError{code: code, err: errors.New(msg)}
}

// CodeOf returns the stable error code carried by err, or CodeOther if err
// does not originate from this package.
func CodeOf(err error) Code {
	var fe *fabricError
	if errors.As(err, &fe) {
		return fe.code
	}
	if err == nil {
		return 0
	}
	return CodeOther
}

// Sentinel errors surfaced at the mpa public API boundary (spec §6, §7).
var (
	// ErrOther is a catch-all for conditions with no dedicated code.
	ErrOther = newError(CodeOther, "other error")

	// ErrServerNotAvailable indicates the rendezvous FIFO for an endpoint
	// does not exist, or its opening server process is not running.
	ErrServerNotAvailable = newError(CodeServerNotAvailable, "server not available")

	// ErrReachedMaxNameIndex indicates every client-handle suffix in
	// [0, 8) is already taken for the requested base name.
	ErrReachedMaxNameIndex = newError(CodeReachedMaxNameIndex, "reached max name index")

	// ErrFileIO indicates a filesystem operation failed while creating,
	// opening, or removing an endpoint's pipes or descriptor.
	ErrFileIO = newError(CodeFileIO, "file I/O error")

	// ErrTimeout indicates an operation did not complete within its
	// deadline or retry bound.
	ErrTimeout = newError(CodeTimeout, "timeout")

	// ErrInvalidArg indicates a caller-supplied argument failed
	// validation at a public entry point.
	ErrInvalidArg = newError(CodeInvalidArg, "invalid argument")

	// ErrNotConnected indicates an operation was attempted on a slot or
	// client that is not in the CONNECTED state.
	ErrNotConnected = newError(CodeNotConnected, "not connected")

	// ErrCtrlNotAvailable indicates the control FIFO was not enabled on
	// the endpoint, or could not be opened.
	ErrCtrlNotAvailable = newError(CodeCtrlNotAvailable, "control channel not available")

	// ErrInfoNotAvailable indicates the info descriptor file could not
	// be read or parsed.
	ErrInfoNotAvailable = newError(CodeInfoNotAvailable, "info descriptor not available")

	// ErrChannelOOB indicates a channel or slot index is outside the
	// configured bound.
	ErrChannelOOB = newError(CodeChannelOOB, "channel index out of bounds")
)

// Framing and protocol errors, not part of the stable code table but
// returned from the record package and wrapped by callers as needed.
var (
	// ErrBadMagic indicates a record did not begin with the mpa magic number.
	ErrBadMagic = errors.New("bad magic number")

	// ErrUnknownFormat indicates a point-cloud format id has no known stride.
	ErrUnknownFormat = errors.New("unknown point-cloud format")

	// ErrUnclassifiedFrame indicates an encoded-video frame byte did not
	// match any known header/I/P marker for its codec.
	ErrUnclassifiedFrame = errors.New("unclassified video frame")

	// ErrShortRead indicates fewer bytes arrived than a metadata header promised.
	ErrShortRead = errors.New("short read")
)
