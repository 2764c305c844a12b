package stat

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWmodeWsizeRoundTrip(t *testing.T) {
	var st Stat_t
	st.Wmode(S_IFREG)
	st.Wsize(4096)
	assert.Equal(t, uint(S_IFREG), st.Mode())
	assert.Equal(t, uint(4096), st.Size())
}

func TestModeBitsAreDistinct(t *testing.T) {
	assert.NotEqual(t, S_IFREG, S_IFDEV)
}
