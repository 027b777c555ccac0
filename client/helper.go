package client

import (
	"errors"
	"time"

	"github.com/ardnew/mpa/internal/pipeio"
	"github.com/ardnew/mpa/pkg"
	"github.com/ardnew/mpa/record"
)

// helperLoop is the background reader goroutine spawned by Resume when a
// helper mode is configured. It dispatches to the configured per-mode
// reader, reconnecting on disconnect unless WithoutReconnect was given
// (spec §4.4 "Reconnect").
func (s *Slot) helperLoop() {
	defer s.wg.Done()

	for {
		s.mu.Lock()
		running := s.running
		connected := s.state == slotConnected
		s.mu.Unlock()
		if !running {
			return
		}

		if !connected {
			if s.cfg.noReconnect {
				return
			}
			if err := s.handshake(); err != nil {
				time.Sleep(s.reconnectDelay())
				continue
			}
		}

		err := s.readOnce()

		s.mu.Lock()
		running = s.running
		s.mu.Unlock()
		if !running {
			return
		}

		if err != nil {
			s.onReadFailure()
			if s.cfg.noReconnect {
				return
			}
		}
	}
}

func (s *Slot) reconnectDelay() time.Duration {
	if s.cfg.reconnectDelay > 0 {
		return time.Duration(s.cfg.reconnectDelay) * time.Millisecond
	}
	return DefaultReconnectDelayMS * time.Millisecond
}

// readOnce reads and dispatches exactly one record in the configured
// mode. A framing error on a metadata stream triggers a flush-and-resync
// rather than a disconnect (spec §7 "framing errors ... flush-and-resync").
func (s *Slot) readOnce() error {
	switch s.cfg.mode {
	case ModeSimple:
		return s.readSimple()
	case ModeCamera:
		return s.readCamera()
	case ModePointCloud:
		return s.readPointCloud()
	default:
		return nil
	}
}

// readSimple performs one read() into a single fixed-size buffer and
// dispatches exactly the bytes it returned, rather than accumulating a
// full recordSize buffer across several reads (spec §4.4 Simple: "read
// into a single fixed-size user buffer; invoke simple callback with the
// number of bytes"). A server writing several small records back to back
// (the §8 Hello scenario) therefore yields one callback per record. Simple
// mode is an opaque byte blob of caller-defined shape, unlike Camera/Point-
// cloud, so no magic validation is performed here.
func (s *Slot) readSimple() error {
	s.mu.Lock()
	reader := s.reader
	s.mu.Unlock()
	if reader == nil {
		return pkg.ErrNotConnected
	}

	buf := make([]byte, s.cfg.recordSize)
	n, err := reader.Read(buf)
	if err != nil {
		return err
	}
	if n <= 0 {
		return pkg.ErrNotConnected
	}

	fn := s.cfg.simpleFunc
	if fn != nil {
		data := buf[:n]
		s.dispatch(func() { fn(data) })
	}
	return nil
}

// maxPayloadReads bounds the number of partial reads readCamera/
// readPointCloud will attempt to assemble a payload before giving up and
// resyncing (spec §4.4 Camera: "up to 10 partial reads").
const maxPayloadReads = 10

func (s *Slot) readCamera() error {
	hdr := make([]byte, record.CameraMetadataSize)
	if err := s.readFull(hdr); err != nil {
		return err
	}

	var meta record.CameraMetadata
	if !meta.ParseFrom(hdr) {
		pkg.LogWarn(pkg.ComponentFraming, "camera metadata failed to parse, resyncing", "handle", s.handle)
		s.flush()
		return nil
	}

	maxSize := uint64(meta.Width) * uint64(meta.Height) * 10
	if uint64(meta.SizeBytes) > maxSize {
		pkg.LogWarn(pkg.ComponentFraming, "camera size_bytes exceeds width*height*10, resyncing",
			"handle", s.handle, "size_bytes", meta.SizeBytes, "width", meta.Width, "height", meta.Height)
		s.flush()
		return nil
	}

	payload := make([]byte, meta.SizeBytes)
	if err := s.readFullBounded(payload, maxPayloadReads); err != nil {
		if errors.Is(err, pkg.ErrShortRead) {
			pkg.LogWarn(pkg.ComponentFraming, "camera payload exceeded partial-read bound, resyncing", "handle", s.handle)
			s.flush()
			return nil
		}
		return err
	}

	fn := s.cfg.cameraFunc
	if fn != nil {
		s.dispatch(func() { fn(&meta, payload) })
	}
	return nil
}

func (s *Slot) readPointCloud() error {
	hdr := make([]byte, record.PointCloudMetadataSize)
	if err := s.readFull(hdr); err != nil {
		return err
	}

	var meta record.PointCloudMetadata
	if !meta.ParseFrom(hdr) {
		pkg.LogWarn(pkg.ComponentFraming, "point-cloud metadata failed to parse, resyncing", "handle", s.handle)
		s.flush()
		return nil
	}

	size, err := meta.PayloadSize()
	if err != nil {
		pkg.LogWarn(pkg.ComponentFraming, "point-cloud format unrecognized, resyncing", "handle", s.handle)
		s.flush()
		return nil
	}

	payload := make([]byte, size)
	if err := s.readFullBounded(payload, maxPayloadReads); err != nil {
		if errors.Is(err, pkg.ErrShortRead) {
			pkg.LogWarn(pkg.ComponentFraming, "point-cloud payload exceeded partial-read bound, resyncing", "handle", s.handle)
			s.flush()
			return nil
		}
		return err
	}

	fn := s.cfg.pointFunc
	if fn != nil {
		s.dispatch(func() { fn(&meta, payload) })
	}
	return nil
}

// flush drains whatever is currently queued in the kernel FIFO so the
// next read starts aligned on a metadata record boundary (spec §7).
func (s *Slot) flush() {
	s.mu.Lock()
	reader := s.reader
	f := s.dataFile
	s.mu.Unlock()
	if reader == nil || f == nil {
		return
	}
	queued, err := pipeio.QueuedBytes(f)
	if err != nil || queued <= 0 {
		return
	}
	discard := make([]byte, queued)
	for queued > 0 {
		n, err := reader.Read(discard[:queued])
		if err != nil || n <= 0 {
			return
		}
		queued -= n
	}
}

// readFull reads exactly len(buf) bytes, looping over short reads without
// bound (used for fixed-size metadata headers, which are always small).
func (s *Slot) readFull(buf []byte) error {
	return s.readFullBounded(buf, 0)
}

// readFullBounded reads exactly len(buf) bytes, looping over short reads.
// If maxReads > 0 and that many read() calls still haven't filled buf, it
// returns pkg.ErrShortRead so the caller can flush-and-resync instead of
// disconnecting (spec §4.4 Camera: "up to 10 partial reads").
func (s *Slot) readFullBounded(buf []byte, maxReads int) error {
	s.mu.Lock()
	reader := s.reader
	s.mu.Unlock()
	if reader == nil {
		return pkg.ErrNotConnected
	}

	for off, attempt := 0, 0; off < len(buf); attempt++ {
		if maxReads > 0 && attempt >= maxReads {
			return pkg.ErrShortRead
		}
		n, err := reader.Read(buf[off:])
		if err != nil {
			return err
		}
		if n <= 0 {
			return pkg.ErrNotConnected
		}
		off += n
	}
	return nil
}

// dispatch invokes fn on the helper goroutine, marking the slot so a
// Pause/Close called from within fn recognizes the self-cancellation case
// (spec §4.4 "Cancellation").
func (s *Slot) dispatch(fn func()) {
	s.mu.Lock()
	s.insideCallback = true
	s.mu.Unlock()

	fn()

	s.mu.Lock()
	s.insideCallback = false
	s.mu.Unlock()
}

// onReadFailure closes the data connection and invokes the disconnect
// callback (spec §4.4 "A read returning <= 0 signals disconnect").
func (s *Slot) onReadFailure() {
	s.mu.Lock()
	handle := s.handle
	if s.dataFile != nil {
		s.dataFile.Close()
		s.dataFile = nil
	}
	if s.reader != nil {
		s.reader.Close()
		s.reader = nil
	}
	s.state = slotDisconnected
	s.mu.Unlock()

	if s.cfg.onDisconnect != nil {
		s.dispatch(func() { s.cfg.onDisconnect(s.channelID, handle) })
	}
}
