// Package limits tracks system-wide resource ceilings, grounded on
// biscuit/src/limits's Sysatomic_t/Syslimit_t. That original struct also
// bounded vnodes, futexes, ARP entries, routes, TCP segments and block
// pages for subsystems this kernel does not have (no filesystem journal,
// no networking); those fields are dropped rather than carried dead, and
// only the ceiling proc.go actually enforces — the live process count —
// survives.
package limits

import "sync/atomic"

/// Sysatomic_t is a numeric limit that can be atomically taken and given
/// back, the equivalent of biscuit/src/limits's type of the same name.
type Sysatomic_t int64

/// Taken tries to decrement the limit by n, the equivalent of
/// Sysatomic_t.Taken. It returns false and leaves the limit unchanged if
/// doing so would drive it negative.
func (s *Sysatomic_t) Taken(n int64) bool {
	if n < 0 {
		panic("too mighty")
	}
	if atomic.AddInt64((*int64)(s), -n) >= 0 {
		return true
	}
	atomic.AddInt64((*int64)(s), n)
	return false
}

/// Given increases the limit by n, the equivalent of Sysatomic_t.Given.
func (s *Sysatomic_t) Given(n int64) {
	if n < 0 {
		panic("too mighty")
	}
	atomic.AddInt64((*int64)(s), n)
}

/// Take is Taken(1), the common case of acquiring one unit.
func (s *Sysatomic_t) Take() bool { return s.Taken(1) }

/// Give is Given(1), the common case of releasing one unit.
func (s *Sysatomic_t) Give() { s.Given(1) }

/// Syslimit_t is the set of system-wide ceilings this kernel enforces.
type Syslimit_t struct {
	// Sysprocs bounds the number of live processes, matching the
	// teacher's proclock-protected Sysprocs field; CreateInitd and Fork
	// both take one unit and Proc_t.Exit gives it back.
	Sysprocs Sysatomic_t
}

/// Syslimit holds the process-wide configured limits, the equivalent of
/// biscuit/src/limits's package-level Syslimit variable.
var Syslimit = MkSysLimit()

/// MkSysLimit returns the default limit set, the equivalent of
/// biscuit/src/limits's MkSysLimit.
func MkSysLimit() *Syslimit_t {
	return &Syslimit_t{Sysprocs: 1e4}
}
