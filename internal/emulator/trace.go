// trace.go - trace stream control and firmware-image snapshot I/O

/*
trace.go covers two host-facing conveniences: toggling the CPU's
instruction trace stream at runtime (the CPU always owns the trace
buffer itself; this just flips its switches), and loading a firmware
image directly from an open file descriptor via pread so a very large
combined CODE+metadata image can be sliced without reading the whole
file into memory first.
*/

package emulator

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// SetTrace enables or disables the instruction trace stream. out is
// ignored when enabled is false.
func (e *Emulator) SetTrace(enabled bool, out traceWriter) {
	e.cpu.Trace = enabled
	if enabled {
		e.cpu.TraceOut = out
	}
}

// traceWriter is the io.Writer subset the CPU's trace stream needs;
// declared locally so this file doesn't need to import io just for
// the parameter type on SetTrace's second argument.
type traceWriter interface {
	Write(p []byte) (n int, err error)
}

// LoadFirmwareSlice reads length bytes at the given file offset from
// fd and returns them, for hosts that keep a combined firmware+metadata
// blob on disk and only want the CODE region. It does not install the
// bytes; pass them to LoadFirmware for that.
func LoadFirmwareSlice(fd int, offset int64, length int) ([]byte, error) {
	buf := make([]byte, length)
	n, err := unix.Pread(fd, buf, offset)
	if err != nil {
		return nil, fmt.Errorf("emulator: pread firmware slice: %w", err)
	}
	if n != length {
		return nil, fmt.Errorf("emulator: short read loading firmware slice: got %d of %d bytes", n, length)
	}
	return buf, nil
}
