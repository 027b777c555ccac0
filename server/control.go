package server

import (
	"bytes"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/ardnew/mpa/endpoint"
	"github.com/ardnew/mpa/internal/pipeio"
	"github.com/ardnew/mpa/pkg"
)

// ControlFunc receives a command read from a channel's control FIFO. data is
// the payload with its null terminator stripped; ctx is the value passed to
// WithControl. There is no acknowledgement path (spec §4.5 "no
// acknowledgement").
type ControlFunc func(channelID int, data []byte, ctx any)

// DefaultControlBufSize is the read buffer size used when no
// WithControlBufSize option is given.
const DefaultControlBufSize = 1 << 10 // 1 KiB

// DefaultControlCapacity is the control FIFO's kernel buffer capacity used
// when no WithControlCapacity option is given.
const DefaultControlCapacity = 64 << 10 // 64 KiB

// openControl creates and opens the channel's control FIFO and sets its
// kernel buffer capacity (spec §4.5 "Control channel").
func (c *Channel) openControl() error {
	path := c.dir + endpoint.ControlFile

	if err := pipeio.CreateFIFO(path); err != nil {
		return errors.Wrapf(pkg.ErrFileIO, "create control fifo: %v", err)
	}
	f, err := pipeio.OpenReadWrite(path)
	if err != nil {
		return errors.Wrapf(pkg.ErrFileIO, "open control fifo: %v", err)
	}
	c.controlFile = f

	if _, err := pipeio.SetCapacity(f, c.cfg.controlCapacity); err != nil {
		pkg.LogWarn(pkg.ComponentServer, "failed to set control fifo capacity", "id", c.id, "err", err)
	}

	reader, err := pipeio.NewCancelReader(f)
	if err != nil {
		f.Close()
		return err
	}
	c.controlReader = reader
	return nil
}

// controlLoop blocks reading commands from the control FIFO, null-terminates
// each read, and hands the bytes to the user-supplied callback, until the
// channel is closed (spec §4.5 step "reads, null-terminates, and hands the
// bytes to the user-supplied callback").
func (c *Channel) controlLoop() {
	defer c.wg.Done()

	buf := make([]byte, c.cfg.controlBufSize)
	for {
		n, err := c.controlReader.Read(buf)
		if err != nil {
			if !c.IsRunning() {
				return
			}
			pkg.LogWarn(pkg.ComponentServer, "control read error", "id", c.id, "err", err)
			continue
		}
		if n == 0 {
			continue
		}

		data := buf[:n]
		if i := bytes.IndexByte(data, 0); i >= 0 {
			data = data[:i]
		}

		if c.cfg.debugPrints {
			pkg.LogDebug(pkg.ComponentControl, "control command received",
				"id", c.id, "corr_id", uuid.NewString(), "len", len(data))
		}

		if c.cfg.controlFunc != nil {
			c.cfg.controlFunc(c.id, data, c.cfg.controlCtx)
		}
	}
}

