package limits

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTakenGivenRoundTrip(t *testing.T) {
	var s Sysatomic_t = 3
	assert.True(t, s.Taken(2))
	assert.Equal(t, Sysatomic_t(1), s)
	s.Given(2)
	assert.Equal(t, Sysatomic_t(3), s)
}

func TestTakenFailsWithoutMutatingOnExhaustion(t *testing.T) {
	var s Sysatomic_t = 1
	assert.False(t, s.Taken(2), "taking more than available must fail")
	assert.Equal(t, Sysatomic_t(1), s, "a failed Taken must not change the limit")
}

func TestTakeGiveAreSingleUnitShorthands(t *testing.T) {
	var s Sysatomic_t = 1
	assert.True(t, s.Take())
	assert.False(t, s.Take(), "limit is exhausted after the first Take")
	s.Give()
	assert.True(t, s.Take())
}

func TestTakenPanicsOnNegativeAmount(t *testing.T) {
	var s Sysatomic_t = 5
	assert.Panics(t, func() { s.Taken(-1) })
}

func TestMkSysLimitDefaultsSysprocs(t *testing.T) {
	l := MkSysLimit()
	assert.Equal(t, Sysatomic_t(1e4), l.Sysprocs)
}
