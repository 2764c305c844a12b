// Package console implements the shared console device: blocking
// keyboard-style input and a single writer lock around output, grounded
// on the reference kernel's input_getc/putbuf contract (devices/input.c,
// devices/kbd.c via original_source/'s syscall.c usage) and bound to fd
// 0/1 of every process's descriptor table by fd.Fdt_t.InitStd.
package console

import (
	"io"
	"sync"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"defs"
	"fd"
)

/// Console is the single system console: one input stream, one output
/// stream, one lock serializing writes so concurrent processes' output
/// doesn't interleave mid-line, the equivalent of the reference kernel's
/// console_lock.
type Console struct {
	in  io.Reader
	inMu sync.Mutex

	out   io.Writer
	outMu sync.Mutex

	printer *message.Printer
}

/// New wires a console to the given input/output streams; cmd/kernel
/// passes os.Stdin/os.Stdout, tests pass in-memory buffers.
func New(in io.Reader, out io.Writer) *Console {
	return &Console{in: in, out: out, printer: message.NewPrinter(language.English)}
}

/// Read blocks for at least one byte from the input stream, the
/// equivalent of a sequence of input_getc calls feeding a user read(0,...)
/// request. Unlike biscuit's own simulated devices, this is a real
/// blocking read so `cmd/kernel run` can be driven interactively.
func (c *Console) Read(buf []byte) (int, defs.Err_t) {
	if len(buf) == 0 {
		return 0, 0
	}
	c.inMu.Lock()
	defer c.inMu.Unlock()
	n, err := c.in.Read(buf)
	if err != nil && err != io.EOF {
		return n, defs.EIO
	}
	return n, 0
}

/// Write sends buf to the output stream atomically with respect to other
/// writers, the equivalent of putbuf, and always reports the full byte
/// count written (the reference implementation's write syscall ignores
/// putbuf's own return value and always reports size; this keeps that
/// behavior honest by only ever writing the whole buffer).
func (c *Console) Write(buf []byte) (int, defs.Err_t) {
	c.outMu.Lock()
	defer c.outMu.Unlock()
	n, err := c.out.Write(buf)
	if err != nil {
		return n, defs.EIO
	}
	return n, 0
}

/// Close is a no-op: the console is never actually released, only
/// unbound from a process's descriptor table.
func (c *Console) Close() defs.Err_t {
	return 0
}

/// Reopen hands back the same shared console, the equivalent of every
/// forked child inheriting fd 0/1 bound to the same device instead of a
/// private copy.
func (c *Console) Reopen() (fd.Fdops_i, defs.Err_t) {
	return c, 0
}

/// FormatCount renders a byte count with locale thousands separators,
/// e.g. "12,345", via x/text/message the way a kernel that already
/// depends on golang.org/x/text would format it instead of hand-rolled
/// digit grouping. cmd/kernel's ls action does not use it; it prints raw
/// counts.
func (c *Console) FormatCount(n int64) string {
	return c.printer.Sprintf("%d", n)
}
