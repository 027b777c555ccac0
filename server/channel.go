package server

import (
	"os"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/ardnew/mpa/endpoint"
	"github.com/ardnew/mpa/internal/pipeio"
	"github.com/ardnew/mpa/pkg"
)

// MaxChannels bounds the number of concurrently published endpoints in one
// process (spec §3 "bounded number, e.g. 16").
const MaxChannels = 16

// MaxClients bounds the number of attached clients per channel.
const MaxClients = 16

// rendezvousOpenAttempts and rendezvousOpenInterval bound how long the
// server waits for a newly-created client FIFO's reader to appear before
// giving up on that attach (spec §4.3 step 3: "500 x 1ms").
const (
	rendezvousOpenAttempts = 500
	rendezvousOpenInterval = time.Millisecond
)

// closeJoinTimeout bounds how long Close waits for a reader goroutine to
// exit after being cancelled (spec §4.3 Close, §5 "1 s timeout").
const closeJoinTimeout = time.Second

// rendezvousReadBufSize is the maximum handle length the server will
// accept from the rendezvous FIFO (spec §6 "reads up to 256 bytes").
const rendezvousReadBufSize = 256

var (
	channelArena  [MaxChannels]*Channel
	channelClaims [MaxChannels]bool
	channelClaim  sync.Mutex
)

// Channel is one published endpoint: its rendezvous/control FIFOs, its
// client slot table, and the fan-out logic that writes records to every
// attached client.
type Channel struct {
	id   int
	name string
	dir  string

	cfg  config
	desc endpoint.Descriptor

	lifecycle sync.Mutex // guards running/close structural transitions
	running   bool

	requestFile   *os.File
	requestReader *pipeio.CancelReader

	controlFile   *os.File
	controlReader *pipeio.CancelReader

	slotClaim sync.Mutex // guards clients[*].state==unused claim bit
	clients   [MaxClients]*clientSlot

	videoMu     sync.Mutex // guards the cached header frame below
	headerMeta  []byte
	headerBody  []byte
	haveHeader  bool

	wg sync.WaitGroup
}

// Create claims channel id, validates name, publishes its descriptor, and
// starts the rendezvous (and optional control) reader goroutines.
func Create(id int, name string, payloadType string, opts ...Option) (*Channel, error) {
	if id < 0 || id >= MaxChannels {
		return nil, errors.Wrapf(pkg.ErrChannelOOB, "channel id %d", id)
	}
	if name == "" || strings.Contains(name, "/") || name == "unknown" {
		return nil, errors.Wrapf(pkg.ErrInvalidArg, "invalid channel name %q", name)
	}

	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	dir, err := endpoint.Expand(name)
	if err != nil {
		return nil, err
	}

	channelClaim.Lock()
	if channelClaims[id] {
		channelClaim.Unlock()
		return nil, errors.Wrapf(pkg.ErrInvalidArg, "channel %d already claimed", id)
	}
	for i, ch := range channelArena {
		if i != id && ch != nil && ch.dir == dir {
			channelClaim.Unlock()
			return nil, errors.Wrapf(pkg.ErrInvalidArg, "duplicate endpoint directory %q", dir)
		}
	}
	channelClaims[id] = true
	channelClaim.Unlock()

	ch := &Channel{id: id, name: name, dir: dir, cfg: *cfg}

	if err := ch.open(payloadType); err != nil {
		channelClaim.Lock()
		channelClaims[id] = false
		channelClaim.Unlock()
		return nil, err
	}

	channelArena[id] = ch
	return ch, nil
}

func (c *Channel) open(payloadType string) error {
	sizeBytes := pipeio.ClampCapacity(c.cfg.sizeBytes)

	if err := endpoint.MkdirAll(c.dir); err != nil {
		return err
	}

	c.desc = endpoint.Descriptor{
		Name:       c.name,
		Location:   c.dir,
		Type:       payloadType,
		ServerName: c.name,
		SizeBytes:  sizeBytes,
		ServerPID:  os.Getpid(),
	}
	if err := endpoint.WriteDescriptor(c.dir, &c.desc); err != nil {
		return err
	}

	reqPath := c.dir + endpoint.RequestFile
	if err := pipeio.CreateFIFO(reqPath); err != nil {
		return errors.Wrapf(pkg.ErrFileIO, "create rendezvous fifo: %v", err)
	}
	reqFile, err := pipeio.OpenReadWrite(reqPath)
	if err != nil {
		return errors.Wrapf(pkg.ErrFileIO, "open rendezvous fifo: %v", err)
	}
	c.requestFile = reqFile
	reqReader, err := pipeio.NewCancelReader(reqFile)
	if err != nil {
		reqFile.Close()
		return err
	}
	c.requestReader = reqReader

	if c.cfg.enableControl {
		if err := c.openControl(); err != nil {
			return err
		}
	}

	c.lifecycle.Lock()
	c.running = true
	c.lifecycle.Unlock()

	c.wg.Add(1)
	go c.rendezvousLoop()
	if c.cfg.enableControl {
		c.wg.Add(1)
		go c.controlLoop()
	}

	pkg.LogInfo(pkg.ComponentServer, "channel created", "id", c.id, "name", c.name, "dir", c.dir)
	return nil
}

// ID returns the channel's slot index.
func (c *Channel) ID() int { return c.id }

// Name returns the channel's short name.
func (c *Channel) Name() string { return c.name }

// Descriptor returns a copy of the channel's published descriptor.
func (c *Channel) Descriptor() endpoint.Descriptor { return c.desc }

// IsRunning reports whether the channel's readers are still active.
func (c *Channel) IsRunning() bool {
	c.lifecycle.Lock()
	defer c.lifecycle.Unlock()
	return c.running
}

// Close stops the rendezvous/control readers, closes every client FIFO,
// removes the endpoint tree, and releases the channel's slot claim.
func (c *Channel) Close() error {
	c.lifecycle.Lock()
	if !c.running {
		c.lifecycle.Unlock()
		return nil
	}
	c.running = false
	c.lifecycle.Unlock()

	c.requestReader.Cancel()
	if c.controlReader != nil {
		c.controlReader.Cancel()
	}

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(closeJoinTimeout):
		pkg.LogWarn(pkg.ComponentServer, "reader goroutines did not join within timeout",
			"id", c.id)
	}

	c.requestReader.Close()
	c.requestFile.Close()
	if c.controlReader != nil {
		c.controlReader.Close()
		c.controlFile.Close()
	}

	c.slotClaim.Lock()
	for i, slot := range c.clients {
		if slot != nil && slot.dataFile != nil {
			slot.dataFile.Close()
		}
		c.clients[i] = nil
	}
	c.slotClaim.Unlock()

	if err := endpoint.RemoveAll(c.dir); err != nil {
		pkg.LogWarn(pkg.ComponentServer, "failed to remove endpoint tree", "dir", c.dir, "err", err)
	}

	channelClaim.Lock()
	channelClaims[c.id] = false
	channelArena[c.id] = nil
	channelClaim.Unlock()

	pkg.LogInfo(pkg.ComponentServer, "channel closed", "id", c.id, "name", c.name)
	return nil
}
