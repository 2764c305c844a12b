package spt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"defs"
	"mem"
	"pgtbl"
)

func newTestSpt() (*Spt_t, *mem.Physmem_t) {
	pgtbl.Init()
	pm := mem.NewPhysmem(64, 64)
	p4 := pgtbl.Create(pm)
	return New(p4, pm), pm
}

type fakeFile struct {
	data []byte
}

func (f *fakeFile) ReadAt(buf []byte, ofs int64) (int, defs.Err_t) {
	if ofs >= int64(len(f.data)) {
		return 0, 0
	}
	n := copy(buf, f.data[ofs:])
	return n, 0
}

func (f *fakeFile) WriteAt(buf []byte, ofs int64) (int, defs.Err_t) {
	need := ofs + int64(len(buf))
	if need > int64(len(f.data)) {
		grown := make([]byte, need)
		copy(grown, f.data)
		f.data = grown
	}
	n := copy(f.data[ofs:], buf)
	return n, 0
}

func (f *fakeFile) Length() int64 {
	return int64(len(f.data))
}

func TestAnonPageLazilyResolvesOnFault(t *testing.T) {
	s, _ := newTestSpt()
	const va = uintptr(0x1000)
	require.True(t, s.AllocAnonPage(va, true))

	page := s.FindPage(va)
	require.NotNil(t, page)
	assert.Equal(t, KindUninit, page.Kind)

	require.True(t, s.ClaimPage(va))
	assert.Equal(t, KindAnon, page.Kind)
	assert.NotZero(t, page.Frame)
}

func TestFilePageLoadsBytesOnClaim(t *testing.T) {
	s, _ := newTestSpt()
	f := &fakeFile{data: []byte("hello world")}
	const va = uintptr(0x2000)
	require.True(t, s.AllocFilePage(va, true, f, 0, 5, mem.PGSIZE-5))

	require.True(t, s.ClaimPage(va))
	kpage := s.KPage(va)
	require.NotNil(t, kpage)
	assert.Equal(t, "hello", string(kpage[:5]))
	assert.Equal(t, byte(0), kpage[5])
}

func TestHandleFaultRejectsKernelHalfAndWildPointers(t *testing.T) {
	s, _ := newTestSpt()
	assert.Equal(t, defs.EFAULT, s.HandleFault(pgtbl.KERN_BASE, 0, false))
	assert.Equal(t, defs.EFAULT, s.HandleFault(0x10, 0x7fffffff0000, false))
}

func TestHandleFaultGrowsStackNearRsp(t *testing.T) {
	s, _ := newTestSpt()
	growVa := pgtbl.USER_STACK - uintptr(2*mem.PGSIZE)
	rsp := growVa + 4
	assert.Equal(t, defs.Err_t(0), s.HandleFault(growVa, rsp, false))
	assert.NotNil(t, s.FindPage(growVa))
}

func TestDestroyPageWritesBackDirtyFilePage(t *testing.T) {
	s, _ := newTestSpt()
	f := &fakeFile{data: make([]byte, 16)}
	const va = uintptr(0x3000)
	require.True(t, s.AllocFilePage(va, true, f, 0, 10, mem.PGSIZE-10))
	require.True(t, s.ClaimPage(va))

	kpage := s.KPage(va)
	kpage[0] = 0x99
	s.pml4.SetDirty(va, true)

	s.Kill()
	assert.Equal(t, byte(0x99), f.data[0], "a dirty writable file page must be written back on teardown")
}

func TestMmapThenMunmapTearsDownEveryPage(t *testing.T) {
	s, _ := newTestSpt()
	f := &fakeFile{data: []byte("0123456789abcdef")}

	const addr = pgtbl.USER_STACK - uintptr(0x100000)
	got, err := s.Mmap(addr, len(f.data), true, f, 0)
	require.Equal(t, defs.Err_t(0), err)
	assert.Equal(t, addr, got)
	require.NotNil(t, s.FindPage(addr))

	assert.Equal(t, defs.Err_t(0), s.Munmap(addr))
	assert.Nil(t, s.FindPage(addr))
}

func TestMmapRejectsMisalignedOffset(t *testing.T) {
	s, _ := newTestSpt()
	f := &fakeFile{data: []byte("0123456789abcdef")}
	const addr = pgtbl.USER_STACK - uintptr(0x100000)

	_, err := s.Mmap(addr, len(f.data), true, f, 1)
	assert.Equal(t, defs.EINVAL, err)
}

func TestMmapRejectsEmptyFile(t *testing.T) {
	s, _ := newTestSpt()
	f := &fakeFile{}
	const addr = pgtbl.USER_STACK - uintptr(0x100000)

	_, err := s.Mmap(addr, mem.PGSIZE, true, f, 0)
	assert.Equal(t, defs.EINVAL, err)
}

func TestCopyDuplicatesResolvedPagesIntoFreshFrames(t *testing.T) {
	s, pm := newTestSpt()
	p4 := pgtbl.Create(pm)
	dst := New(p4, pm)

	const va = uintptr(0x4000)
	require.True(t, s.AllocAnonPage(va, true))
	require.True(t, s.ClaimPage(va))
	s.KPage(va)[0] = 0x55

	require.True(t, s.Copy(dst))
	childKpage := dst.KPage(va)
	require.NotNil(t, childKpage)
	assert.Equal(t, byte(0x55), childKpage[0])

	childPage := dst.FindPage(va)
	srcPage := s.FindPage(va)
	assert.NotEqual(t, srcPage.Frame, childPage.Frame, "Copy must give the child its own frame, not share the parent's")
}
