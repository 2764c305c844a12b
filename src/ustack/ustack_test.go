package ustack

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mem"
	"pgtbl"
	"spt"
)

func newTestSpt() *spt.Spt_t {
	pgtbl.Init()
	pm := mem.NewPhysmem(16, 16)
	p4 := pgtbl.Create(pm)
	return spt.New(p4, pm)
}

func TestBuildAlignsRspTo16Bytes(t *testing.T) {
	table := newTestSpt()
	built, err := Build(table, []string{"prog", "one", "two"})
	require.Equal(t, 0, int(err))
	assert.Equal(t, uintptr(0), built.Rsp%16, "rsp must be 16-byte aligned for the callee's prologue")
	assert.Equal(t, 3, built.Argc)
}

func TestBuildLaysOutArgvAsNullTerminatedPointerArray(t *testing.T) {
	table := newTestSpt()
	built, err := Build(table, []string{"a", "bb"})
	require.Equal(t, 0, int(err))

	stackPageVa := pgtbl.USER_STACK - uintptr(mem.PGSIZE)
	kpage := table.KPage(stackPageVa)
	require.NotNil(t, kpage)

	off := built.Argv - stackPageVa
	ptr0 := binary.LittleEndian.Uint64(kpage[off : off+8])
	ptr1 := binary.LittleEndian.Uint64(kpage[off+8 : off+16])
	sentinel := binary.LittleEndian.Uint64(kpage[off+16 : off+24])

	assert.NotZero(t, ptr0)
	assert.NotZero(t, ptr1)
	assert.Zero(t, sentinel, "argv array must be NULL-terminated")
}

func TestBuildWritesArgStringsNullTerminated(t *testing.T) {
	table := newTestSpt()
	built, err := Build(table, []string{"hello"})
	require.Equal(t, 0, int(err))

	stackPageVa := pgtbl.USER_STACK - uintptr(mem.PGSIZE)
	kpage := table.KPage(stackPageVa)
	off := built.Argv - stackPageVa
	strAddr := uintptr(binary.LittleEndian.Uint64(kpage[off : off+8]))

	strOff := strAddr - stackPageVa
	assert.Equal(t, "hello", string(kpage[strOff:strOff+5]))
	assert.Equal(t, byte(0), kpage[strOff+5])
}
