package endpoint

import (
	"time"

	"golang.org/x/sys/unix"

	"github.com/ardnew/mpa/pkg"
)

// pollInterval is how often Stop polls for the server process to exit.
const pollInterval = 50 * time.Millisecond

// MinStopTimeout is the required floor for a liveness-stop timeout
// (§4.1: "minimum 0.1 s").
const MinStopTimeout = 100 * time.Millisecond

// pidAlive reports whether pid names a running process, using the
// standard kill(pid, 0) liveness probe: no signal is delivered, only
// existence and permission are checked.
func pidAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	return unix.Kill(pid, 0) == nil
}

// Stop reads the server PID from name's descriptor, sends SIGTERM, polls
// for exit up to timeout (clamped to MinStopTimeout), escalates to SIGKILL
// if the deadline passes, and always sweeps the endpoint tree afterward.
//
// Stop returns true if the server was found running (and is now stopped),
// false if the endpoint was already gone or had no live server — matching
// spec §8's "Cleanup" testable property: a crash followed by Stop removes
// the tree and reports "was running, stopped" via this boolean.
func Stop(name string, timeout time.Duration) (bool, error) {
	if timeout < MinStopTimeout {
		timeout = MinStopTimeout
	}

	dir, err := Expand(name)
	if err != nil {
		return false, err
	}

	desc, err := ReadDescriptor(dir)
	if err != nil {
		// No descriptor to read; nothing was running, but still sweep
		// any dangling rendezvous/data FIFOs.
		_ = RemoveAll(dir)
		return false, nil
	}

	wasAlive := pidAlive(desc.ServerPID)
	if !wasAlive {
		_ = RemoveAll(dir)
		return false, nil
	}

	if err := unix.Kill(desc.ServerPID, unix.SIGTERM); err != nil {
		pkg.LogWarn(pkg.ComponentEndpoint, "SIGTERM failed", "pid", desc.ServerPID, "err", err)
	}

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if !pidAlive(desc.ServerPID) {
			_ = RemoveAll(dir)
			return true, nil
		}
		time.Sleep(pollInterval)
	}

	if pidAlive(desc.ServerPID) {
		pkg.LogWarn(pkg.ComponentEndpoint, "graceful stop timed out, escalating to SIGKILL",
			"pid", desc.ServerPID)
		_ = unix.Kill(desc.ServerPID, unix.SIGKILL)
		deadline = time.Now().Add(timeout)
		for time.Now().Before(deadline) && pidAlive(desc.ServerPID) {
			time.Sleep(pollInterval)
		}
	}

	_ = RemoveAll(dir)
	return true, nil
}
