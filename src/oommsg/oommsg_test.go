package oommsg

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func drain() {
	for {
		select {
		case <-OomCh:
		default:
			return
		}
	}
}

func TestNotifyDeliversNeed(t *testing.T) {
	drain()
	defer drain()
	Notify(7)
	select {
	case msg := <-OomCh:
		assert.Equal(t, 7, msg.Need)
	default:
		require.Fail(t, "expected a message on OomCh")
	}
}

func TestNotifyIsNonBlockingWhenChannelIsFull(t *testing.T) {
	drain()
	defer drain()
	Notify(1)
	assert.NotPanics(t, func() { Notify(2) }, "Notify must not block or panic when nobody is listening")
}
