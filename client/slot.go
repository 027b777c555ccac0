package client

import (
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/ardnew/mpa/endpoint"
	"github.com/ardnew/mpa/internal/pipeio"
	"github.com/ardnew/mpa/pkg"
)

// MaxChannels bounds the channel index a Slot may attach to.
const MaxChannels = 16

// MaxHandleNameLen bounds a client's base name, with one byte reserved
// for the suffix digit the handshake appends (spec §4.4 "rejects name
// strings within 1 byte of the maximum").
const MaxHandleNameLen = 32

// MaxHandleSuffix bounds the handshake's disambiguating suffix digit to
// [0, 8) (spec §4.4 step 2, §8 "Handle uniqueness").
const MaxHandleSuffix = 8

// handshakeOpenAttempts/handshakeOpenInterval bound how long the client
// waits for its newly-created data FIFO to be opened by the server
// (spec §4.4 step 5: "500 x 1ms").
const (
	handshakeOpenAttempts = 500
	handshakeOpenInterval = time.Millisecond
)

// DefaultReconnectDelayMS is the sleep between reconnect attempts absent
// WithReconnectDelayMS (spec §4.4 "Reconnect").
const DefaultReconnectDelayMS = 500

type slotState int

const (
	slotUnused slotState = iota
	slotOpen
	slotConnected
	slotDisconnected
)

// Slot is one client's attachment to a channel: its rendezvous state,
// data FIFO, and (if a helper mode is configured) background reader.
type Slot struct {
	mu sync.Mutex

	channelID int
	name      string
	dir       string
	cfg       config

	state  slotState
	handle string

	dataFile *os.File
	reader   *pipeio.CancelReader

	running        bool
	insideCallback bool // true while the helper goroutine is running a user callback
	wg             sync.WaitGroup
}

// Open validates channelID and name, rejects options selecting more than
// one helper mode, expands the endpoint location, and
// — unless WithStartPaused is given — performs the rendezvous handshake
// (and, if a helper mode is configured, starts the reader goroutine)
// (spec §4.4 "Open").
func Open(channelID int, name string, opts ...Option) (*Slot, error) {
	if channelID < 0 || channelID >= MaxChannels {
		return nil, errors.Wrapf(pkg.ErrChannelOOB, "channel id %d", channelID)
	}
	if name == "" || strings.Contains(name, "/") {
		return nil, errors.Wrapf(pkg.ErrInvalidArg, "invalid client name %q", name)
	}
	if len(name) > MaxHandleNameLen-1 {
		return nil, errors.Wrapf(pkg.ErrInvalidArg,
			"client name %q exceeds %d bytes (1 reserved for suffix)", name, MaxHandleNameLen-1)
	}

	cfg := defaultConfig()
	for _, opt := range opts {
		prev := cfg.mode
		opt(cfg)
		if prev != ModeNone && cfg.mode != prev {
			return nil, errors.Wrap(pkg.ErrInvalidArg, "more than one helper mode selected")
		}
	}

	dir, err := endpoint.Expand(name)
	if err != nil {
		return nil, err
	}

	s := &Slot{channelID: channelID, name: name, dir: dir, cfg: *cfg, state: slotOpen}

	if cfg.startPaused {
		return s, nil
	}
	if err := s.Resume(); err != nil {
		return s, err
	}
	return s, nil
}

// Resume performs the rendezvous handshake. If a helper mode is
// configured it spawns the reader goroutine and returns immediately after
// the first successful handshake; otherwise it performs one handshake
// synchronously and returns (spec §4.4 "Resume").
func (s *Slot) Resume() error {
	if err := s.handshake(); err != nil {
		return err
	}

	s.mu.Lock()
	mode := s.cfg.mode
	s.mu.Unlock()

	if mode == ModeNone {
		return nil
	}

	s.mu.Lock()
	s.running = true
	s.mu.Unlock()

	s.wg.Add(1)
	go s.helperLoop()
	return nil
}

// handshake implements spec §4.4 steps 1-5: verify the endpoint's
// rendezvous FIFO exists,
// claim a handle via bounded suffix retry, write it to the rendezvous
// FIFO, and open the resulting data FIFO for read.
func (s *Slot) handshake() error {
	if !endpoint.Exists(s.dir) {
		return errors.Wrap(pkg.ErrServerNotAvailable, s.dir)
	}

	handle, err := s.claimHandle()
	if err != nil {
		return err
	}

	reqPath := s.dir + endpoint.RequestFile
	reqFile, err := pipeio.OpenNonblockWrite(reqPath, 1, 0)
	if err != nil {
		if pipeio.NoDeviceOrAddress(err) {
			s.sweepDeadServer()
		}
		return errors.Wrap(pkg.ErrServerNotAvailable, err.Error())
	}
	_, werr := reqFile.Write(append([]byte(handle), 0))
	reqFile.Close()
	if werr != nil {
		return errors.Wrap(pkg.ErrServerNotAvailable, werr.Error())
	}

	dataPath := s.dir + handle
	f, err := pipeio.OpenNonblockRead(dataPath, handshakeOpenAttempts, handshakeOpenInterval)
	if err != nil {
		return errors.Wrapf(pkg.ErrTimeout, "open data fifo %q: %v", dataPath, err)
	}
	reader, err := pipeio.NewCancelReader(f)
	if err != nil {
		f.Close()
		return err
	}

	s.mu.Lock()
	s.handle = handle
	s.dataFile = f
	s.reader = reader
	s.state = slotConnected
	s.mu.Unlock()

	if s.cfg.debugPrints {
		pkg.LogDebug(pkg.ComponentClient, "attached", "channel", s.channelID, "handle", handle)
	}
	return nil
}

// claimHandle finds the first unclaimed <name><suffix> in [0, 8), per
// spec §4.4 step 2 / §8 "Handle uniqueness".
func (s *Slot) claimHandle() (string, error) {
	for n := 0; n < MaxHandleSuffix; n++ {
		candidate := s.name + strconv.Itoa(n)
		if _, err := os.Stat(s.dir + candidate); err != nil {
			return candidate, nil
		}
	}
	return "", errors.Wrap(pkg.ErrReachedMaxNameIndex, s.name)
}

// sweepDeadServer best-effort removes a dead server's endpoint tree after
// opening the rendezvous FIFO fails with ENXIO, guarded by a PID-liveness check
// (spec §4.4 step 3, design notes §9).
func (s *Slot) sweepDeadServer() {
	desc, err := endpoint.ReadDescriptor(s.dir)
	if err != nil {
		return
	}
	if desc.ServerAlive() {
		return
	}
	if err := endpoint.RemoveAll(s.dir); err != nil {
		pkg.LogWarn(pkg.ComponentClient, "failed to sweep dead server's endpoint tree",
			"dir", s.dir, "err", err)
		return
	}
	pkg.LogInfo(pkg.ComponentClient, "swept dead server's endpoint tree", "dir", s.dir)
}

// ChannelID returns the channel index this slot attaches to.
func (s *Slot) ChannelID() int { return s.channelID }

// Handle returns the handle string claimed by the last successful
// handshake, or "" if never connected.
func (s *Slot) Handle() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handle
}

// IsConnected reports whether the slot currently has an open data
// connection.
func (s *Slot) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == slotConnected
}

// closeJoinTimeout bounds how long Pause/Close wait for the helper
// goroutine to notice cancellation and exit (spec §5 "1 s timeout").
const closeJoinTimeout = time.Second

// Pause stops the helper goroutine and closes the local read descriptor,
// preserving the configured callbacks so a later Resume reconnects with
// the same configuration (spec §4.4 "pause stops the reader ... but
// preserves callbacks"). If Pause is called from within a callback
// running on the helper goroutine itself, the signal-and-join step is
// skipped; the helper unwinds to its loop head and exits on its own once
// the callback returns (spec §4.4 "Cancellation").
func (s *Slot) Pause() error {
	s.mu.Lock()
	if s.state != slotConnected {
		s.mu.Unlock()
		return nil
	}
	self := s.insideCallback
	s.running = false
	reader := s.reader
	s.mu.Unlock()

	if !self {
		if reader != nil {
			reader.Cancel()
		}
		s.joinHelper()
	}

	s.mu.Lock()
	if s.dataFile != nil {
		s.dataFile.Close()
		s.dataFile = nil
	}
	if s.reader != nil {
		s.reader.Close()
		s.reader = nil
	}
	s.state = slotOpen
	s.mu.Unlock()
	return nil
}

// Close stops the helper goroutine, closes the local read descriptor, and
// zeroes the slot's connection state. Callbacks and other configuration
// are left in place, but the Slot must not be reused after Close.
func (s *Slot) Close() error {
	s.mu.Lock()
	if s.state == slotUnused {
		s.mu.Unlock()
		return nil
	}
	self := s.insideCallback
	s.running = false
	reader := s.reader
	s.mu.Unlock()

	if !self {
		if reader != nil {
			reader.Cancel()
		}
		s.joinHelper()
	}

	s.mu.Lock()
	if s.dataFile != nil {
		s.dataFile.Close()
		s.dataFile = nil
	}
	if s.reader != nil {
		s.reader.Close()
		s.reader = nil
	}
	s.state = slotUnused
	s.handle = ""
	s.mu.Unlock()
	return nil
}

func (s *Slot) joinHelper() {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(closeJoinTimeout):
		pkg.LogWarn(pkg.ComponentClient, "helper goroutine did not join within timeout",
			"channel", s.channelID)
	}
}
