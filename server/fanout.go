package server

import (
	"syscall"

	"github.com/ardnew/mpa/internal/pipeio"
	"github.com/ardnew/mpa/pkg"
	"github.com/ardnew/mpa/record"
)

// WriteRaw fans a fixed-format record out to every attached client (spec
// §4.3 "Fan-out write"). data must already include its magic prefix.
func (c *Channel) WriteRaw(data []byte) {
	c.forEachSlot(func(slot *clientSlot) {
		c.writeToSlot(slot, data)
	})
}

// WriteCamera fans a camera metadata+payload pair out to every attached
// client, applying the encoded-video header/I/P sequencing rule when
// meta.Format names H264/H265 (spec §4.3 "Encoded-video sequencing").
func (c *Channel) WriteCamera(meta *record.CameraMetadata, payload []byte) {
	metaBuf := make([]byte, record.CameraMetadataSize)
	meta.MarshalTo(metaBuf)
	rec := append(metaBuf, payload...)

	if !meta.IsEncodedVideo() {
		c.WriteRaw(rec)
		return
	}

	class, err := classifyPayload(meta, payload)
	if err != nil {
		pkg.LogWarn(pkg.ComponentServer, "encoded-video frame not classified, dropping",
			"id", c.id, "err", err)
		return
	}

	switch class {
	case record.FrameClassHeader:
		c.cacheHeader(metaBuf, payload)
		c.forEachSlot(func(slot *clientSlot) {
			slot.mu.Lock()
			slot.acceptingP = false
			slot.mu.Unlock()
			c.writeToSlot(slot, rec)
		})
	case record.FrameClassI:
		c.forEachSlot(func(slot *clientSlot) {
			c.writeToSlot(slot, rec)
			slot.mu.Lock()
			slot.acceptingP = true
			slot.mu.Unlock()
		})
	case record.FrameClassP:
		c.forEachSlot(func(slot *clientSlot) {
			slot.mu.Lock()
			ok := slot.acceptingP
			slot.mu.Unlock()
			if ok {
				c.writeToSlot(slot, rec)
			}
		})
	default:
		pkg.LogWarn(pkg.ComponentServer, "unclassified (B) video frame, not forwarded", "id", c.id)
	}
}

// WriteCameraStereo fans a stereo camera frame out to every attached
// client, concatenating left and right into one size_bytes payload (spec
// §4.2 "Stereo pairs split the payload 50/50 into left then right").
// meta.Format is forced to CameraFormatStereoGray and meta.SizeBytes to
// len(left)+len(right).
func (c *Channel) WriteCameraStereo(meta *record.CameraMetadata, left, right []byte) {
	meta.Format = record.CameraFormatStereoGray
	meta.SizeBytes = uint32(len(left) + len(right))

	payload := make([]byte, 0, len(left)+len(right))
	payload = append(payload, left...)
	payload = append(payload, right...)
	c.WriteCamera(meta, payload)
}

// WritePointCloud fans a point-cloud metadata+payload pair out to every
// attached client.
func (c *Channel) WritePointCloud(meta *record.PointCloudMetadata, payload []byte) {
	metaBuf := make([]byte, record.PointCloudMetadataSize)
	meta.MarshalTo(metaBuf)
	c.WriteRaw(append(metaBuf, payload...))
}

// cacheHeader stores the most recent encoded-video header so a late-joining
// client can be replayed it before any fan-out traffic (spec §4.3 step 4).
func (c *Channel) cacheHeader(meta, body []byte) {
	c.videoMu.Lock()
	c.headerMeta = append([]byte(nil), meta...)
	c.headerBody = append([]byte(nil), body...)
	c.haveHeader = true
	c.videoMu.Unlock()
}

func (c *Channel) forEachSlot(fn func(*clientSlot)) {
	c.slotClaim.Lock()
	slots := make([]*clientSlot, 0, MaxClients)
	for _, s := range c.clients {
		if s != nil {
			slots = append(slots, s)
		}
	}
	c.slotClaim.Unlock()

	for _, s := range slots {
		fn(s)
	}
}

// writeToSlot performs the per-client back-pressure pre-check and
// non-blocking write (spec §4.3 "Fan-out write"). A record that doesn't
// fit is dropped for this client only; any other write failure
// disconnects the client.
func (c *Channel) writeToSlot(slot *clientSlot, data []byte) {
	slot.mu.Lock()
	defer slot.mu.Unlock()

	if slot.state == clientDisconnected || slot.dataFile == nil {
		return
	}

	fits, err := pipeio.Fits(slot.dataFile, slot.capacity, len(data))
	if err != nil {
		pkg.LogWarn(pkg.ComponentServer, "queued-bytes query failed", "handle", slot.handle, "err", err)
	} else if !fits {
		pkg.LogDebug(pkg.ComponentServer, "back-pressure: dropping record for client",
			"handle", slot.handle, "len", len(data))
		return
	}

	n, err := pipeio.WriteNonblock(slot.dataFile, data)
	switch {
	case err != nil && pipeio.WouldBlock(err):
		pkg.LogDebug(pkg.ComponentServer, "back-pressure: write would block, dropping",
			"handle", slot.handle)
	case err != nil:
		c.disconnectSlotLocked(slot, err)
	case n < len(data):
		pkg.LogDebug(pkg.ComponentServer, "partial write, dropping remainder for client",
			"handle", slot.handle, "wrote", n, "total", len(data))
	default:
		slot.state = clientConnected
	}
}

// disconnectSlotLocked transitions slot to DISCONNECTED, closes and
// unlinks its data FIFO, and invokes the disconnect callback. Caller
// holds slot.mu.
func (c *Channel) disconnectSlotLocked(slot *clientSlot, cause error) {
	pkg.LogWarn(pkg.ComponentServer, "client write failed, disconnecting",
		"handle", slot.handle, "err", cause)

	slot.state = clientDisconnected
	slot.acceptingP = false
	if slot.dataFile != nil {
		slot.dataFile.Close()
		slot.dataFile = nil
	}
	_ = syscallUnlink(slot.dataPath)

	if c.cfg.onDisconnect != nil {
		c.cfg.onDisconnect(slot.handle)
	}
}

func syscallUnlink(path string) error {
	if path == "" {
		return nil
	}
	return syscall.Unlink(path)
}

// classifyPayload dispatches to the H264 or H265 classifier based on
// meta.Format.
func classifyPayload(meta *record.CameraMetadata, payload []byte) (record.FrameClass, error) {
	if meta.Format == record.CameraFormatH264 {
		return record.ClassifyH264(payload)
	}
	return record.ClassifyH265(payload)
}
