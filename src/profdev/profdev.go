// Package profdev builds the content of the D_PROF device id from
// defs: a snapshot of the live frame table (spt.Snapshot) as a pprof
// heap-style profile that `go tool pprof` can read. No device node serves
// it; cmd/kernel's cat action reads only filesystem files. Grounded on
// biscuit's own D_PROF/D_STAT device pair in biscuit/src/defs and the
// accounting those devices expose; biscuit itself has no pprof
// integration, so the profile shape here follows
// github.com/google/pprof/profile's own documented heap-profile
// convention (two sample types, "inuse_objects"/"inuse_space").
package profdev

import (
	"bytes"

	"github.com/google/pprof/profile"

	"mem"
	"spt"
)

/// Snapshot builds a pprof Profile of every physical frame currently
/// owned by a virtual page, one sample per frame, one location per
/// distinct virtual address (so pprof's "top" view groups by mapping
/// site). The profile is valueless beyond counts; this kernel has no
/// symbol table to attach, so Location.Line is left empty, the virtual
/// address is carried in Location.Address and the backing physical frame
/// in the sample's "frame" label.
func Snapshot() *profile.Profile {
	entries := spt.Snapshot()

	p := &profile.Profile{
		SampleType: []*profile.ValueType{
			{Type: "inuse_objects", Unit: "count"},
			{Type: "inuse_space", Unit: "bytes"},
		},
		PeriodType: &profile.ValueType{Type: "space", Unit: "bytes"},
		Period:     1,
	}

	locByVa := make(map[uintptr]*profile.Location)
	var nextID uint64 = 1

	for _, e := range entries {
		loc, ok := locByVa[e.Va]
		if !ok {
			loc = &profile.Location{ID: nextID, Address: uint64(e.Va)}
			nextID++
			locByVa[e.Va] = loc
			p.Location = append(p.Location, loc)
		}
		p.Sample = append(p.Sample, &profile.Sample{
			Location: []*profile.Location{loc},
			Value:    []int64{1, int64(mem.PGSIZE)},
			Label:    map[string][]string{"frame": {frameLabel(e.Frame)}},
		})
	}
	return p
}

func frameLabel(pa mem.Pa_t) string {
	return profileHex(uint64(pa))
}

func profileHex(v uint64) string {
	const hexdigits = "0123456789abcdef"
	if v == 0 {
		return "0x0"
	}
	var buf [18]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = hexdigits[v&0xf]
		v >>= 4
	}
	i--
	buf[i] = 'x'
	i--
	buf[i] = '0'
	return string(buf[i:])
}

/// Write serializes Snapshot's result in pprof's gzip-wrapped protobuf
/// format.
func Write() ([]byte, error) {
	var buf bytes.Buffer
	if err := Snapshot().Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
