package pipeio

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"github.com/ardnew/mpa/pkg"
)

// Capacity bounds for a client data FIFO's kernel buffer (spec §4.3).
const (
	MinCapacity     = 4 << 10  // 4 KiB floor
	MaxCapacity     = 256 << 20 // 256 MiB ceiling
	DefaultCapacity = 1 << 20  // 1 MiB, used below the floor and as final fallback
)

const pipeMaxSizeFile = "/proc/sys/fs/pipe-max-size"

// ClampCapacity enforces the required [4 KiB, 256 MiB] window: a request
// below the floor silently becomes the 1 MiB default, a request above the
// ceiling is clamped to the ceiling and logged.
func ClampCapacity(requested int) int {
	switch {
	case requested < MinCapacity:
		return DefaultCapacity
	case requested > MaxCapacity:
		pkg.LogWarn(pkg.ComponentPipeIO, "clamping oversized pipe capacity request",
			"requested", requested, "ceiling", MaxCapacity)
		return MaxCapacity
	default:
		return requested
	}
}

// CreateFIFO creates a named pipe at path, tolerating a node that already
// exists, since creation must be idempotent across reconnects.
func CreateFIFO(path string) error {
	if err := unix.Mkfifo(path, 0o666); err != nil && err != unix.EEXIST {
		return err
	}
	return nil
}

// OpenReadWrite opens path as O_RDWR. The server uses this for the
// rendezvous and control FIFOs even though it never writes them, solely
// so the kernel never reports EOF for want of a writer (spec §3 invariants).
func OpenReadWrite(path string) (*os.File, error) {
	return os.OpenFile(path, os.O_RDWR, 0)
}

// OpenNonblockWrite opens path O_WRONLY|O_NONBLOCK, retrying up to
// attempts times with the given interval between tries. This accommodates
// the race between a newly-created FIFO node and its reader opening it
// (spec §4.3 step 3: 500 x 1ms).
func OpenNonblockWrite(path string, attempts int, interval time.Duration) (*os.File, error) {
	var lastErr error
	for i := 0; i < attempts; i++ {
		f, err := os.OpenFile(path, os.O_WRONLY|syscall.O_NONBLOCK, 0)
		if err == nil {
			return f, nil
		}
		lastErr = err
		if i < attempts-1 {
			time.Sleep(interval)
		}
	}
	return nil, lastErr
}

// OpenNonblockRead opens path O_RDONLY|O_NONBLOCK, retrying up to attempts
// times with the given interval between tries (spec §4.4 step 5: 500 x 1ms).
func OpenNonblockRead(path string, attempts int, interval time.Duration) (*os.File, error) {
	var lastErr error
	for i := 0; i < attempts; i++ {
		f, err := os.OpenFile(path, os.O_RDONLY|syscall.O_NONBLOCK, 0)
		if err == nil {
			return f, nil
		}
		lastErr = err
		if i < attempts-1 {
			time.Sleep(interval)
		}
	}
	return nil, lastErr
}

// SetCapacity requests a kernel buffer capacity of want bytes for the pipe
// backing f, then always re-queries the achieved capacity via
// F_GETPIPE_SZ rather than trusting F_SETPIPE_SZ's return value (spec §9
// open question: some platforms report 0 for "not set" on this path).
// On failure to set, it falls back to the system-advertised maximum from
// /proc/sys/fs/pipe-max-size, or DefaultCapacity if that is unreadable.
func SetCapacity(f *os.File, want int) (int, error) {
	fd := int(f.Fd())

	if _, err := unix.FcntlInt(uintptr(fd), unix.F_SETPIPE_SZ, want); err != nil {
		fallback := systemPipeMaxSize()
		if _, ferr := unix.FcntlInt(uintptr(fd), unix.F_SETPIPE_SZ, fallback); ferr != nil {
			// Even the fallback was rejected; report whatever the kernel
			// already has configured.
			return queryCapacity(fd)
		}
	}

	return queryCapacity(fd)
}

func queryCapacity(fd int) (int, error) {
	got, err := unix.FcntlInt(uintptr(fd), unix.F_GETPIPE_SZ, 0)
	if err != nil {
		return 0, err
	}
	return got, nil
}

// systemPipeMaxSize reads the kernel's advertised ceiling for pipe
// buffers, falling back to DefaultCapacity if the file is unreadable.
func systemPipeMaxSize() int {
	data, err := os.ReadFile(pipeMaxSizeFile)
	if err != nil {
		return DefaultCapacity
	}
	n, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || n <= 0 {
		return DefaultCapacity
	}
	return n
}

// QueuedBytes returns the number of bytes currently buffered for read in
// the pipe backing f — the authoritative input to the fan-out writer's
// back-pressure pre-check (spec §4.3 "query bytes currently queued").
func QueuedBytes(f *os.File) (int, error) {
	return unix.IoctlGetInt(int(f.Fd()), unix.FIONREAD)
}

// WouldBlock reports whether err is the "no buffer space right now" error
// a non-blocking write or open returns, as opposed to a hard failure.
func WouldBlock(err error) bool {
	return errors.Is(err, syscall.EAGAIN) || errors.Is(err, syscall.EWOULDBLOCK)
}

// NoDeviceOrAddress reports whether err is ENXIO — the error a client gets
// opening a rendezvous FIFO with no reader present, i.e. a dead server
// (spec §4.4 step 3, §9 "best-effort sweep of a peer's pipe tree").
func NoDeviceOrAddress(err error) bool {
	return errors.Is(err, syscall.ENXIO)
}
