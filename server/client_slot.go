package server

import (
	"os"
	"sync"

	"github.com/ardnew/mpa/internal/pipeio"
	"github.com/ardnew/mpa/pkg"
)

// clientState is a client slot's position in the §3 connection state machine.
type clientState int

const (
	clientUnused clientState = iota
	clientInitialized
	clientConnected
	clientDisconnected
)

func (s clientState) String() string {
	switch s {
	case clientInitialized:
		return "initialized"
	case clientConnected:
		return "connected"
	case clientDisconnected:
		return "disconnected"
	default:
		return "unused"
	}
}

// clientSlot is one attached client's server-side bookkeeping (spec §3
// "Client entry (server-side)"). A disconnected slot keeps its handle so a
// reconnecting client with the same handle returns to the same slot.
type clientSlot struct {
	mu sync.Mutex // steady-state: guards writes and dataFile/capacity

	state      clientState
	handle     string
	dataPath   string
	dataFile   *os.File
	capacity   int
	acceptingP bool
}

// rendezvousLoop blocks reading client-handle announcements from the
// rendezvous FIFO until the channel is closed (spec §4.3 "Rendezvous
// reader").
func (c *Channel) rendezvousLoop() {
	defer c.wg.Done()

	buf := make([]byte, rendezvousReadBufSize)
	for {
		n, err := c.requestReader.Read(buf)
		if err != nil {
			if !c.IsRunning() {
				return
			}
			pkg.LogWarn(pkg.ComponentServer, "rendezvous read error", "id", c.id, "err", err)
			continue
		}
		if n == 0 {
			continue
		}

		handle := sanitizeHandle(buf[:n])
		if handle == "" {
			continue
		}
		c.acceptClient(handle)
	}
}

// sanitizeHandle truncates raw at the first control character (including
// the null terminator the wire protocol requires), per spec §4.3 step 0 /
// §6 "sanitizes at the first control character".
func sanitizeHandle(raw []byte) string {
	for i, b := range raw {
		if b < 0x20 || b == 0x7f {
			return string(raw[:i])
		}
	}
	return string(raw)
}

// acceptClient implements spec §4.3's rendezvous reader steps 1-4: find or
// allocate a slot, create and open the per-client data FIFO, and announce
// the new connection.
func (c *Channel) acceptClient(handle string) {
	c.slotClaim.Lock()
	idx, slot, isNew := c.findOrAllocateSlot(handle)
	c.slotClaim.Unlock()

	if idx < 0 {
		pkg.LogWarn(pkg.ComponentServer, "no free client slot for handle", "id", c.id, "handle", handle)
		return
	}

	if err := c.openClientFIFO(slot, handle); err != nil {
		pkg.LogWarn(pkg.ComponentServer, "failed to open client data fifo",
			"id", c.id, "handle", handle, "err", err)
		return
	}

	slot.mu.Lock()
	slot.state = clientInitialized
	slot.acceptingP = false
	slot.mu.Unlock()

	if c.cfg.onConnect != nil {
		c.cfg.onConnect(handle)
	}

	c.replayCachedHeader(slot)

	if c.cfg.debugPrints {
		pkg.LogDebug(pkg.ComponentServer, "client attached", "id", c.id, "handle", handle, "new", isNew)
	}
}

// findOrAllocateSlot searches for a reconnecting handle first (spec §4.3
// step 1), falling back to the first unused slot (step 2). Caller holds
// c.slotClaim.
func (c *Channel) findOrAllocateSlot(handle string) (int, *clientSlot, bool) {
	for i, s := range c.clients {
		if s != nil && s.handle == handle {
			return i, s, false
		}
	}
	for i, s := range c.clients {
		if s == nil {
			s = &clientSlot{handle: handle}
			c.clients[i] = s
			return i, s, true
		}
	}
	return -1, nil, false
}

// openClientFIFO creates (idempotently) and opens the per-client data
// FIFO, sets its kernel buffer capacity, and records the achieved
// capacity (spec §4.3 step 3).
func (c *Channel) openClientFIFO(slot *clientSlot, handle string) error {
	path := c.dir + handle

	if err := pipeio.CreateFIFO(path); err != nil {
		return err
	}

	f, err := pipeio.OpenNonblockWrite(path, rendezvousOpenAttempts, rendezvousOpenInterval)
	if err != nil {
		return err
	}

	capacity, err := pipeio.SetCapacity(f, c.desc.SizeBytes)
	if err != nil {
		pkg.LogWarn(pkg.ComponentServer, "failed to set client fifo capacity",
			"handle", handle, "err", err)
	}

	slot.mu.Lock()
	slot.dataPath = path
	slot.dataFile = f
	slot.capacity = capacity
	slot.mu.Unlock()

	return nil
}

// replayCachedHeader writes the channel's cached encoded-video header to a
// newly attached client, so it can decode without waiting for the next
// header frame (spec §4.3 step 4).
func (c *Channel) replayCachedHeader(slot *clientSlot) {
	c.videoMu.Lock()
	haveHeader := c.haveHeader
	meta := append([]byte(nil), c.headerMeta...)
	body := append([]byte(nil), c.headerBody...)
	c.videoMu.Unlock()

	if !haveHeader {
		return
	}
	c.writeToSlot(slot, append(meta, body...))
}
