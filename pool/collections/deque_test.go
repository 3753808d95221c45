package collections

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDequeLifoOrder(t *testing.T) {
	d := NewDeque(math.MaxInt32)
	d.AddFirst(1)
	d.AddFirst(2)
	d.AddFirst(3)
	assert.Equal(t, 3, d.PollFirst())
	assert.Equal(t, 2, d.PollFirst())
	assert.Equal(t, 1, d.PollFirst())
	assert.Nil(t, d.PollFirst())
}

func TestDequeFifoOrder(t *testing.T) {
	d := NewDeque(math.MaxInt32)
	d.AddLast(1)
	d.AddLast(2)
	d.AddLast(3)
	assert.Equal(t, 1, d.PollFirst())
	assert.Equal(t, 2, d.PollFirst())
	assert.Equal(t, 3, d.PollFirst())
}

func TestDequeCapacity(t *testing.T) {
	d := NewDeque(2)
	require.True(t, d.AddFirst(1))
	require.True(t, d.AddFirst(2))
	assert.False(t, d.AddFirst(3))
	assert.Equal(t, 2, d.Size())
}

func TestDequeRemoveFirstOccurrence(t *testing.T) {
	d := NewDeque(math.MaxInt32)
	d.AddLast(1)
	d.AddLast(2)
	d.AddLast(3)
	assert.True(t, d.RemoveFirstOccurrence(2))
	assert.False(t, d.RemoveFirstOccurrence(2))
	assert.Equal(t, 2, d.Size())
	assert.Equal(t, 1, d.PollFirst())
	assert.Equal(t, 3, d.PollFirst())
}

func TestDequeTakeFirstBlocksUntilAdd(t *testing.T) {
	d := NewDeque(math.MaxInt32)
	result := make(chan interface{}, 1)
	go func() {
		v, err := d.TakeFirst()
		require.NoError(t, err)
		result <- v
	}()
	time.Sleep(20 * time.Millisecond)
	d.AddFirst(42)
	select {
	case v := <-result:
		assert.Equal(t, 42, v)
	case <-time.After(time.Second):
		t.Fatal("TakeFirst never returned")
	}
}

func TestDequePollFirstWithTimeoutExpires(t *testing.T) {
	d := NewDeque(math.MaxInt32)
	start := time.Now()
	v, err := d.PollFirstWithTimeout(30 * time.Millisecond)
	require.NoError(t, err)
	assert.Nil(t, v)
	assert.True(t, time.Since(start) >= 30*time.Millisecond)
}

func TestDequeInterruptTakeWaiters(t *testing.T) {
	d := NewDeque(math.MaxInt32)
	errCh := make(chan error, 1)
	go func() {
		_, err := d.TakeFirst()
		errCh <- err
	}()
	time.Sleep(20 * time.Millisecond)
	d.InterruptTakeWaiters()
	select {
	case err := <-errCh:
		assert.Error(t, err)
	case <-time.After(time.Second):
		t.Fatal("TakeFirst never returned after interrupt")
	}
}

func TestDequeIteratorSurvivesUnrelatedRemoval(t *testing.T) {
	d := NewDeque(math.MaxInt32)
	d.AddLast(1)
	d.AddLast(2)
	d.AddLast(3)
	it := d.Iterator()
	assert.True(t, it.HasNext())
	assert.Equal(t, 1, it.Next())
	// Remove an element the cursor has not reached yet; cursor should
	// still find the remaining elements.
	d.RemoveFirstOccurrence(2)
	assert.True(t, it.HasNext())
	assert.Equal(t, 3, it.Next())
	assert.False(t, it.HasNext())
}

func TestDequeDescendingIterator(t *testing.T) {
	d := NewDeque(math.MaxInt32)
	d.AddLast(1)
	d.AddLast(2)
	d.AddLast(3)
	it := d.DescendingIterator()
	var out []interface{}
	for it.HasNext() {
		out = append(out, it.Next())
	}
	assert.Equal(t, []interface{}{3, 2, 1}, out)
}
