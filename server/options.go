package server

// Option configures a Channel at Create time.
type Option func(*config)

type config struct {
	sizeBytes          int
	enableControl      bool
	controlBufSize     int
	controlCapacity    int
	debugPrints        bool
	onConnect          func(handle string)
	onDisconnect       func(handle string)
	controlFunc        ControlFunc
	controlCtx         any
}

func defaultConfig() *config {
	return &config{
		sizeBytes:       0, // 0 means "use descriptor default", clamped in Create
		controlBufSize:  DefaultControlBufSize,
		controlCapacity: DefaultControlCapacity,
	}
}

// WithSizeBytes sets the requested per-client FIFO kernel buffer size,
// clamped into [pipeio.MinCapacity, pipeio.MaxCapacity] at Create.
func WithSizeBytes(n int) Option {
	return func(c *config) { c.sizeBytes = n }
}

// WithControl enables the control FIFO (spec's EN_CONTROL_PIPE) and
// registers the callback invoked for every command received on it.
func WithControl(fn ControlFunc, ctx any) Option {
	return func(c *config) {
		c.enableControl = true
		c.controlFunc = fn
		c.controlCtx = ctx
	}
}

// WithControlBufSize overrides the control channel's read buffer size,
// default DefaultControlBufSize. Must be set before Create.
func WithControlBufSize(n int) Option {
	return func(c *config) { c.controlBufSize = n }
}

// WithControlCapacity overrides the control FIFO's kernel buffer capacity,
// default DefaultControlCapacity. Must be set before Create.
func WithControlCapacity(n int) Option {
	return func(c *config) { c.controlCapacity = n }
}

// WithDebugPrints enables verbose per-transition debug logging (spec's
// EN_DEBUG_PRINTS).
func WithDebugPrints() Option {
	return func(c *config) { c.debugPrints = true }
}

// WithConnectFunc registers a callback invoked when a client slot
// transitions to INITIALIZED.
func WithConnectFunc(fn func(handle string)) Option {
	return func(c *config) { c.onConnect = fn }
}

// WithDisconnectFunc registers a callback invoked when a client slot
// transitions to DISCONNECTED.
func WithDisconnectFunc(fn func(handle string)) Option {
	return func(c *config) { c.onDisconnect = fn }
}
