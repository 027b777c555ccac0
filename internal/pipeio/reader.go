package pipeio

import (
	"errors"
	"os"
	"sync"
	"syscall"

	"golang.org/x/sys/unix"
)

// ErrCancelled is returned from CancelReader.Read when Cancel or Close
// interrupted a blocking read (spec §5 "interrupted by a user signal").
var ErrCancelled = errors.New("pipeio: read cancelled")

// CancelReader wraps a non-blocking *os.File with an epoll instance and a
// private eventfd, so a goroutine blocked in Read can be woken on demand
// instead of waiting indefinitely for the peer to write or close.
//
// This is the Go realization of design notes §9's "signal-driven
// cancellation of blocking reads," built on an epoll_create1/eventfd2
// pair via golang.org/x/sys/unix's typed wrappers rather than raw
// syscall numbers, one epoll instance per reader rather than one shared
// poller, since each FIFO reader here is already its own goroutine.
type CancelReader struct {
	file   *os.File
	epfd   int
	wakefd int

	closeOnce  sync.Once
	cancelOnce sync.Once
	cancelled  chan struct{}
}

// NewCancelReader wraps f, which must already be open O_NONBLOCK.
func NewCancelReader(f *os.File) (*CancelReader, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, err
	}

	wakefd, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		unix.Close(epfd)
		return nil, err
	}

	r := &CancelReader{
		file:      f,
		epfd:      epfd,
		wakefd:    wakefd,
		cancelled: make(chan struct{}),
	}

	fd := int(f.Fd())
	if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, fd,
		&unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(fd)}); err != nil {
		unix.Close(wakefd)
		unix.Close(epfd)
		return nil, err
	}
	if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, wakefd,
		&unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(wakefd)}); err != nil {
		unix.Close(wakefd)
		unix.Close(epfd)
		return nil, err
	}

	return r, nil
}

// Read blocks until data is available on the wrapped file, the reader is
// cancelled, or the wrapped file reports an error. It returns (0, nil) at
// end of file, once every writer of the wrapped pipe has closed.
func (r *CancelReader) Read(buf []byte) (int, error) {
	fd := int(r.file.Fd())
	events := make([]unix.EpollEvent, 2)

	for {
		select {
		case <-r.cancelled:
			return 0, ErrCancelled
		default:
		}

		n, err := unix.EpollWait(r.epfd, events, -1)
		if err != nil {
			if errors.Is(err, unix.EINTR) {
				continue
			}
			return 0, err
		}

		woken := false
		for i := 0; i < n; i++ {
			if int(events[i].Fd) == r.wakefd {
				var drain [8]byte
				unix.Read(r.wakefd, drain[:])
				woken = true
			}
		}

		select {
		case <-r.cancelled:
			return 0, ErrCancelled
		default:
		}

		if woken && n == 1 {
			// Only the wake fd fired; loop and re-check cancellation/data.
			continue
		}

		nr, err := unix.Read(fd, buf)
		if err != nil {
			if errors.Is(err, syscall.EAGAIN) || errors.Is(err, syscall.EWOULDBLOCK) {
				continue
			}
			return 0, err
		}
		return nr, nil
	}
}

// Cancel interrupts a blocking Read without closing the underlying file.
// Safe to call multiple times and from any goroutine.
func (r *CancelReader) Cancel() {
	r.cancelOnce.Do(func() { close(r.cancelled) })
	var buf [8]byte
	buf[7] = 1
	unix.Write(r.wakefd, buf[:])
}

// Close cancels any blocked Read and releases the epoll/eventfd resources.
// It does not close the wrapped file, which the caller still owns.
func (r *CancelReader) Close() error {
	r.Cancel()
	r.closeOnce.Do(func() {
		unix.Close(r.wakefd)
		unix.Close(r.epfd)
	})
	return nil
}
