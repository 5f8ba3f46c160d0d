package pools

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBytePoolTiers(t *testing.T) {
	bp := New()

	tests := []struct {
		size    int
		wantCap int
	}{
		{1, 512},
		{512, 512},
		{513, 2048},
		{2048, 2048},
		{8000, 8192},
		{32768, 32768},
	}

	for _, tt := range tests {
		buf := bp.Get(tt.size)
		assert.Len(t, buf, 0)
		assert.Equal(t, tt.wantCap, cap(buf), "size %d", tt.size)
		bp.Put(buf)
	}

	st := bp.Stats()
	assert.Equal(t, uint64(len(tests)), st.Gets)
	assert.Equal(t, uint64(len(tests)), st.Puts)
	assert.Zero(t, st.Misses)
}

func TestBytePoolOversized(t *testing.T) {
	bp := NewWithSizes([]int{64})

	buf := bp.Get(100)
	assert.Equal(t, 100, cap(buf))
	bp.Put(buf)

	assert.Equal(t, uint64(2), bp.Stats().Misses)
}

func TestBytePoolReturnsEmptyBuffer(t *testing.T) {
	bp := NewWithSizes([]int{64})

	buf := bp.Get(10)
	buf = append(buf, "dirty"...)
	bp.Put(buf)

	assert.Len(t, bp.Get(10), 0)
}

func TestBytePoolGrownBufferDropped(t *testing.T) {
	bp := NewWithSizes([]int{8})

	buf := bp.Get(8)
	buf = append(buf, make([]byte, 20)...)
	bp.Put(buf)

	st := bp.Stats()
	assert.Zero(t, st.Puts)
	assert.Equal(t, uint64(1), st.Misses)
}
