// Package oommsg carries out-of-memory notifications from an allocation
// failure to whatever is watching for one, grounded on
// biscuit/src/oommsg. That kernel has a dedicated reclaim daemon
// that answers on OomCh and replies on Resume once it has freed pages;
// this kernel has no reclaim daemon, so proc.go only sends a best-effort,
// non-blocking notification on OomCh when process creation fails because
// the live-process limit is exhausted — a diagnostic hook, not a blocking
// handshake.
package oommsg

/// OomCh is notified when the kernel runs out of memory, the equivalent
/// of biscuit/src/oommsg's OomCh.
var OomCh chan Oommsg_t = make(chan Oommsg_t, 1)

/// Oommsg_t is sent on OomCh when memory is exhausted, the equivalent of
/// biscuit/src/oommsg's Oommsg_t. Need reports how many pages were wanted;
/// Resume is left nil here since nothing replies to unblock the sender.
type Oommsg_t struct {
	Need   int
	Resume chan bool
}

/// Notify posts a non-blocking out-of-memory notice for need pages. A
/// full channel (nobody listening) is not an error: the notice is
/// diagnostic, not load-bearing.
func Notify(need int) {
	select {
	case OomCh <- Oommsg_t{Need: need}:
	default:
	}
}
