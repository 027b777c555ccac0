package client

import "github.com/ardnew/mpa/record"

// Mode selects how the helper goroutine interprets the data stream it
// reads. The three modes are mutually exclusive (spec §4.4 "EN_SIMPLE_
// HELPER / EN_CAMERA_HELPER / EN_POINT_CLOUD_HELPER").
type Mode int

const (
	// ModeNone performs the handshake but spawns no reader goroutine;
	// Slot has no method of its own for reading the data FIFO, and
	// auto-reconnect is disabled
	// (spec §4.4 "Resume": "no helper mode selected implies auto-reconnect
	// disabled").
	ModeNone Mode = iota
	ModeSimple
	ModeCamera
	ModePointCloud
)

// SimpleFunc receives the bytes returned by a single read() into the
// fixed-size buffer configured by WithSimpleHelper, passed through
// unvalidated (no magic check); len(data) is that read's byte count, which
// may be less than recordSize (spec §4.4 Simple: "invoke simple callback with
// the number of bytes").
type SimpleFunc func(data []byte)

// CameraFunc receives one parsed camera metadata header and its image
// payload.
type CameraFunc func(meta *record.CameraMetadata, payload []byte)

// PointCloudFunc receives one parsed point-cloud metadata header and its
// point payload.
type PointCloudFunc func(meta *record.PointCloudMetadata, payload []byte)

// DisconnectFunc is invoked whenever the data connection is lost, whether
// or not auto-reconnect is enabled.
type DisconnectFunc func(channelID int, handle string)

// Option configures a Slot at Open time.
type Option func(*config)

type config struct {
	mode Mode

	recordSize int
	simpleFunc SimpleFunc
	cameraFunc CameraFunc
	pointFunc  PointCloudFunc

	startPaused    bool
	noReconnect    bool
	reconnectDelay int // milliseconds; 0 means DefaultReconnectDelayMS
	debugPrints    bool
	onDisconnect   DisconnectFunc
}

func defaultConfig() *config {
	return &config{}
}

// WithSimpleHelper enables ModeSimple: the reader goroutine performs one
// read() per callback into a recordSize buffer (spec §4.4 "read buffer
// ... size fixed for raw mode") and invokes fn with exactly the bytes
// that read() returned.
func WithSimpleHelper(recordSize int, fn SimpleFunc) Option {
	return func(c *config) {
		c.mode = ModeSimple
		c.recordSize = recordSize
		c.simpleFunc = fn
	}
}

// WithCameraHelper enables ModeCamera: the reader goroutine parses a
// camera metadata header, reads its payload, and invokes fn.
func WithCameraHelper(fn CameraFunc) Option {
	return func(c *config) {
		c.mode = ModeCamera
		c.cameraFunc = fn
	}
}

// WithPointCloudHelper enables ModePointCloud: the reader goroutine parses
// a point-cloud metadata header, reads its payload, and invokes fn.
func WithPointCloudHelper(fn PointCloudFunc) Option {
	return func(c *config) {
		c.mode = ModePointCloud
		c.pointFunc = fn
	}
}

// WithStartPaused opens the slot without performing the rendezvous
// handshake; a later call to Resume connects it (spec's START_PAUSED).
func WithStartPaused() Option {
	return func(c *config) { c.startPaused = true }
}

// WithoutReconnect disables the automatic reconnect loop even when a
// helper mode is selected; a lost connection exits the helper goroutine
// after invoking the disconnect callback (spec §4.4 "Reconnect").
func WithoutReconnect() Option {
	return func(c *config) { c.noReconnect = true }
}

// WithReconnectDelayMS overrides the sleep between reconnect attempts,
// default DefaultReconnectDelayMS.
func WithReconnectDelayMS(ms int) Option {
	return func(c *config) { c.reconnectDelay = ms }
}

// WithDebugPrints enables verbose per-transition debug logging.
func WithDebugPrints() Option {
	return func(c *config) { c.debugPrints = true }
}

// WithDisconnectFunc registers a callback invoked whenever the data
// connection is lost.
func WithDisconnectFunc(fn DisconnectFunc) Option {
	return func(c *config) { c.onDisconnect = fn }
}
