package pool

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/liangfflia/objectpool/pool/collections"
)

func TestPooledObjectAllocateDeallocate(t *testing.T) {
	p := NewPooledObject(42)
	assert.Equal(t, Idle, p.GetState())

	assert.True(t, p.Allocate())
	assert.Equal(t, Allocated, p.GetState())

	assert.False(t, p.Allocate()) // already allocated

	assert.True(t, p.Deallocate())
	assert.Equal(t, Idle, p.GetState())

	assert.False(t, p.Deallocate()) // already idle
}

func TestPooledObjectInvalidateBlocksFurtherUse(t *testing.T) {
	p := NewPooledObject(1)
	p.Invalidate()
	assert.Equal(t, Invalid, p.GetState())
	assert.False(t, p.Allocate())
	assert.False(t, p.Deallocate())
}

func TestPooledObjectEvictionTestRoundTrip(t *testing.T) {
	p := NewPooledObject(1)
	idle := collections.NewDeque(16)

	assert.True(t, p.StartEvictionTest())
	assert.Equal(t, EvictionTest, p.GetState())
	assert.False(t, p.StartEvictionTest()) // already under test

	assert.True(t, p.EndEvictionTest(idle))
	assert.Equal(t, Idle, p.GetState())
	assert.Equal(t, 1, idle.Size())
}

// A concurrent Allocate during an eviction test wins the entry outright;
// the evictor's later EndEvictionTest must then see it has already
// moved on and must not touch the idle set.
func TestPooledObjectAllocateDuringEvictionTestWins(t *testing.T) {
	p := NewPooledObject(1)
	idle := collections.NewDeque(16)

	require := assert.New(t)
	require.True(p.StartEvictionTest())
	require.True(p.Allocate())
	require.Equal(Allocated, p.GetState())

	require.False(p.EndEvictionTest(idle))
	require.Equal(0, idle.Size())
}

func TestPooledObjectGetIdleTimeMillis(t *testing.T) {
	p := NewPooledObject(1)
	assert.GreaterOrEqual(t, p.GetIdleTimeMillis(), int64(0))
}
