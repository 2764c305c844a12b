package pgtbl

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mem"
)

func newTestPm() *mem.Physmem_t {
	return mem.NewPhysmem(64, 64)
}

func TestCreateSharesKernelHalf(t *testing.T) {
	Init()
	pm := newTestPm()
	a := Create(pm)
	b := Create(pm)
	require.NotNil(t, a)
	require.NotNil(t, b)
	assert.Same(t, a.root.children[511], b.root.children[511], "kernel-half root entries must be shared across address spaces")
}

func TestSetPageThenGetPageRoundTrips(t *testing.T) {
	Init()
	pm := newTestPm()
	p := Create(pm)

	pa, ok := pm.GetPage(mem.PAL_USER)
	require.True(t, ok)

	const va = uintptr(0x1000)
	assert.True(t, p.SetPage(va, pa, true))

	kpage := p.GetPage(va)
	require.NotNil(t, kpage)
	kpage[0] = 0x42
	assert.Equal(t, uint8(0x42), pm.Dmap(pa)[0])

	frame, ok := p.Frame(va)
	assert.True(t, ok)
	assert.Equal(t, pa, frame)
	assert.True(t, p.IsWritable(va))
}

func TestSetPageRejectsDoubleMap(t *testing.T) {
	Init()
	pm := newTestPm()
	p := Create(pm)

	pa1, _ := pm.GetPage(mem.PAL_USER)
	pa2, _ := pm.GetPage(mem.PAL_USER)
	const va = uintptr(0x2000)

	assert.True(t, p.SetPage(va, pa1, true))
	assert.False(t, p.SetPage(va, pa2, true), "mapping an already-mapped va must fail")
}

func TestClearPageDropsMappingNotFrame(t *testing.T) {
	Init()
	pm := newTestPm()
	p := Create(pm)

	pa, _ := pm.GetPage(mem.PAL_USER)
	const va = uintptr(0x3000)
	require.True(t, p.SetPage(va, pa, true))

	p.ClearPage(va)
	assert.Nil(t, p.GetPage(va))
	// the frame itself is still live; Dmap must not panic.
	assert.NotNil(t, pm.Dmap(pa))
}

func TestDirtyAndAccessedBits(t *testing.T) {
	Init()
	pm := newTestPm()
	p := Create(pm)

	pa, _ := pm.GetPage(mem.PAL_USER)
	const va = uintptr(0x4000)
	require.True(t, p.SetPage(va, pa, true))

	assert.False(t, p.IsDirty(va))
	p.SetDirty(va, true)
	assert.True(t, p.IsDirty(va))

	assert.False(t, p.IsAccessed(va))
	p.SetAccessed(va, true)
	assert.True(t, p.IsAccessed(va))
}

func TestForEachVisitsEveryMappedLeaf(t *testing.T) {
	Init()
	pm := newTestPm()
	p := Create(pm)

	vas := []uintptr{0x1000, 0x2000, 0x400000, 0x800000000}
	for _, va := range vas {
		pa, ok := pm.GetPage(mem.PAL_USER)
		require.True(t, ok)
		require.True(t, p.SetPage(va, pa, false))
	}

	seen := map[uintptr]bool{}
	p.ForEach(func(va uintptr, frame mem.Pa_t, writable bool, aux interface{}) bool {
		seen[va] = true
		return true
	}, nil)

	for _, va := range vas {
		assert.True(t, seen[va], "ForEach must visit va %#x", va)
	}
}

func TestDestroyFreesUserFramesOnly(t *testing.T) {
	Init()
	pm := newTestPm()
	p := Create(pm)

	before := pm.UserPagesFree()
	pa, _ := pm.GetPage(mem.PAL_USER)
	require.True(t, p.SetPage(0x1000, pa, true))
	assert.Equal(t, before-1, pm.UserPagesFree())

	p.Destroy()
	assert.Equal(t, before, pm.UserPagesFree(), "Destroy must return every user-half frame")
}
