package pipeio

import (
	"os"
)

// Fits reports whether a record of recordLen bytes can be written to f
// without blocking, given capacity is the pipe's total kernel buffer size.
// This is the back-pressure pre-check of spec §4.3: "query bytes currently
// queued in the kernel FIFO, and only issue the write if the full record
// fits in the remaining capacity."
func Fits(f *os.File, capacity, recordLen int) (bool, error) {
	queued, err := QueuedBytes(f)
	if err != nil {
		return false, err
	}
	return queued+recordLen <= capacity, nil
}

// WriteNonblock writes data to f, which must be open O_NONBLOCK. A short
// write (n < len(data)) is reported as-is to the caller, which per spec
// §4.3 treats any partial write as back-pressure for that client, not as
// an error to disconnect over.
func WriteNonblock(f *os.File, data []byte) (int, error) {
	return f.Write(data)
}
