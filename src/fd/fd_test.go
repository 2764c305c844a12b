package fd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"defs"
)

type fakeOps struct {
	closed   bool
	reopened int
}

func (f *fakeOps) Read(buf []byte) (int, defs.Err_t)  { return 0, 0 }
func (f *fakeOps) Write(buf []byte) (int, defs.Err_t) { return len(buf), 0 }
func (f *fakeOps) Close() defs.Err_t {
	f.closed = true
	return 0
}
func (f *fakeOps) Reopen() (Fdops_i, defs.Err_t) {
	f.reopened++
	return f, 0
}

func TestInitStdBindsConsoleToStdinStdout(t *testing.T) {
	var t1 Fdt_t
	console := &fakeOps{}
	t1.InitStd(console)

	in, err := t1.Get(STDIN_FILENO)
	require.Equal(t, defs.Err_t(0), err)
	assert.Same(t, console, in.Fops)

	out, err := t1.Get(STDOUT_FILENO)
	require.Equal(t, defs.Err_t(0), err)
	assert.Same(t, console, out.Fops)
}

func TestAllocSkipsReservedSlotsAndReusesFreed(t *testing.T) {
	var t1 Fdt_t
	t1.InitStd(&fakeOps{})

	fdn, err := t1.Alloc(&fakeOps{})
	require.Equal(t, defs.Err_t(0), err)
	assert.Equal(t, 2, fdn)

	require.Equal(t, defs.Err_t(0), t1.Close(fdn))

	fdn2, err := t1.Alloc(&fakeOps{})
	require.Equal(t, defs.Err_t(0), err)
	assert.Equal(t, 2, fdn2, "Alloc must reuse the lowest free slot")
}

func TestAllocReturnsEMFILEWhenTableIsFull(t *testing.T) {
	var t1 Fdt_t
	t1.InitStd(&fakeOps{})
	for i := 2; i < NFDS; i++ {
		_, err := t1.Alloc(&fakeOps{})
		require.Equal(t, defs.Err_t(0), err)
	}
	_, err := t1.Alloc(&fakeOps{})
	assert.Equal(t, defs.EMFILE, err)
}

func TestGetRejectsOutOfRangeAndUnboundDescriptors(t *testing.T) {
	var t1 Fdt_t
	_, err := t1.Get(-1)
	assert.Equal(t, defs.EBADF, err)
	_, err = t1.Get(NFDS)
	assert.Equal(t, defs.EBADF, err)
	_, err = t1.Get(5)
	assert.Equal(t, defs.EBADF, err)
}

func TestCloseRunsBackingCloseAndFreesSlot(t *testing.T) {
	var t1 Fdt_t
	ops := &fakeOps{}
	fdn, _ := t1.Alloc(ops)
	require.Equal(t, defs.Err_t(0), t1.Close(fdn))
	assert.True(t, ops.closed)
	_, err := t1.Get(fdn)
	assert.Equal(t, defs.EBADF, err)
}

func TestCloseStdinStdoutIsANoop(t *testing.T) {
	var t1 Fdt_t
	console := &fakeOps{}
	t1.InitStd(console)

	require.Equal(t, defs.Err_t(0), t1.Close(STDIN_FILENO))
	require.Equal(t, defs.Err_t(0), t1.Close(STDOUT_FILENO))
	assert.False(t, console.closed, "closing stdin/stdout must not close the console")

	in, err := t1.Get(STDIN_FILENO)
	require.Equal(t, defs.Err_t(0), err)
	assert.Same(t, console, in.Fops, "the slot must remain bound after the no-op close")

	out, err := t1.Get(STDOUT_FILENO)
	require.Equal(t, defs.Err_t(0), err)
	assert.Same(t, console, out.Fops)
}

func TestClosePanicPanicsOnFailure(t *testing.T) {
	var t1 Fdt_t
	assert.Panics(t, func() { Close_panic(&t1, 2) })
}

func TestCopyReopensEveryDescriptor(t *testing.T) {
	var t1 Fdt_t
	console := &fakeOps{}
	t1.InitStd(console)
	extra := &fakeOps{}
	fdn, _ := t1.Alloc(extra)

	t2, err := t1.Copy()
	require.Equal(t, defs.Err_t(0), err)

	stdin, _ := t2.Get(STDIN_FILENO)
	assert.Same(t, console, stdin.Fops, "Reopen on the console returns itself")
	assert.Equal(t, 2, console.reopened, "both stdin and stdout reopen the console")

	got, _ := t2.Get(fdn)
	assert.Same(t, extra, got.Fops)
}

func TestCloseAllClosesEveryOpenDescriptor(t *testing.T) {
	var t1 Fdt_t
	a, b := &fakeOps{}, &fakeOps{}
	t1.Alloc(a)
	t1.Alloc(b)
	t1.CloseAll()
	assert.True(t, a.closed)
	assert.True(t, b.closed)
	_, err := t1.Get(2)
	assert.Equal(t, defs.EBADF, err)
}
