package fs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"defs"
)

func TestCreateRejectsDuplicateAndEmptyName(t *testing.T) {
	f := New()
	require.Equal(t, defs.Err_t(0), f.Create("a", 0))
	assert.Equal(t, defs.EEXIST, f.Create("a", 0))
	assert.Equal(t, defs.EINVAL, f.Create("", 0))
}

func TestOpenMissingFileFails(t *testing.T) {
	f := New()
	_, err := f.Open("nope")
	assert.Equal(t, defs.ENOENT, err)
}

func TestWriteReadRoundTripAdvancesPosition(t *testing.T) {
	f := New()
	require.Equal(t, defs.Err_t(0), f.Create("a", 0))
	h, err := f.Open("a")
	require.Equal(t, defs.Err_t(0), err)

	n, err := h.Write([]byte("hello"))
	require.Equal(t, defs.Err_t(0), err)
	assert.Equal(t, 5, n)
	assert.Equal(t, int64(5), h.Tell())

	h.Seek(0)
	buf := make([]byte, 5)
	n, err = h.Read(buf)
	require.Equal(t, defs.Err_t(0), err)
	assert.Equal(t, "hello", string(buf[:n]))
}

func TestWriteAtExtendsFileAndReadAtDoesNotMovePosition(t *testing.T) {
	f := New()
	f.Create("a", 0)
	h, _ := f.Open("a")

	n, err := h.WriteAt([]byte("xyz"), 10)
	require.Equal(t, defs.Err_t(0), err)
	assert.Equal(t, 3, n)
	assert.Equal(t, int64(0), h.Tell(), "WriteAt must not move the handle's own position")
	assert.Equal(t, int64(13), h.Length())

	buf := make([]byte, 3)
	n, err = h.ReadAt(buf, 10)
	require.Equal(t, defs.Err_t(0), err)
	assert.Equal(t, "xyz", string(buf[:n]))
}

func TestDenyWriteBlocksWritesFromAnyHandleOnTheSameInode(t *testing.T) {
	f := New()
	f.Create("a", 0)
	h1, _ := f.Open("a")
	h2 := h1.Reopen()

	h1.DenyWrite()
	_, err := h2.Write([]byte("no"))
	assert.Equal(t, defs.EPERM, err, "deny-write is whole-inode, not per-handle")

	h1.AllowWrite()
	_, err = h2.Write([]byte("ok"))
	assert.Equal(t, defs.Err_t(0), err)
}

func TestRemoveWhileOpenKeepsInodeAliveUntilLastClose(t *testing.T) {
	f := New()
	f.Create("a", 4)
	h, _ := f.Open("a")

	require.Equal(t, defs.Err_t(0), f.Remove("a"))
	_, err := f.Open("a")
	assert.Equal(t, defs.ENOENT, err, "removed name must no longer resolve")

	// the still-open handle keeps working until closed.
	assert.Equal(t, int64(4), h.Length())
	h.Close()
}

func TestListAndSizeReflectNamespace(t *testing.T) {
	f := New()
	f.Create("a", 3)
	f.Create("b", 7)

	names := f.List()
	assert.ElementsMatch(t, []string{"a", "b"}, names)

	sz, err := f.Size("b")
	require.Equal(t, defs.Err_t(0), err)
	assert.Equal(t, int64(7), sz)

	_, err = f.Size("missing")
	assert.Equal(t, defs.ENOENT, err)
}

func TestAsFdopsSatisfiesFdopsContract(t *testing.T) {
	f := New()
	f.Create("a", 0)
	h, _ := f.Open("a")
	fo := h.AsFdops()

	n, err := fo.Write([]byte("hi"))
	require.Equal(t, defs.Err_t(0), err)
	assert.Equal(t, 2, n)

	reopened, err := fo.Reopen()
	require.Equal(t, defs.Err_t(0), err)
	assert.NotNil(t, reopened)

	assert.Equal(t, defs.Err_t(0), fo.Close())
}
