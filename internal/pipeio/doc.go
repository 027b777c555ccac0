// Package pipeio provides the low-level named-pipe transport shared by the
// server and client engines.
//
// It owns every direct syscall the fabric makes against a FIFO: creation,
// non-blocking open with bounded retry, kernel buffer capacity control,
// queued-byte queries for back-pressure decisions, and a cancellable
// blocking reader built from epoll and eventfd.
//
// # Cancellable reads
//
// A server's rendezvous/control reader and a client's data reader both
// block in Read on a FIFO that may never produce data again (server
// restarted, client detached). [CancelReader] equips each with a wakeup
// primitive: closing the reader or calling Cancel writes to a private
// eventfd that the same epoll instance is watching, so the blocked Read
// returns within one scheduler tick instead of hanging until the peer
// process exits, built on golang.org/x/sys/unix's typed epoll_create1/
// eventfd2 wrappers instead of raw syscall numbers.
//
// # Capacity control
//
// SetCapacity wraps fcntl(F_SETPIPE_SZ)/fcntl(F_GETPIPE_SZ). Per spec,
// some kernels report 0 from F_SETPIPE_SZ on certain failure paths rather
// than -1/errno, so SetCapacity always re-queries with F_GETPIPE_SZ after
// a seemingly-successful set rather than trusting the call's return value.
package pipeio
