package pool

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testFactory makes successive integers and records every callback it
// receives, mirroring the instrumented factories the teacher's own
// tests build to exercise BorrowObject/ReturnObject end to end.
type testFactory struct {
	mu sync.Mutex

	next int

	makeCount      int
	activateCount  int
	validateCount  int
	passivateCount int
	destroyCount   int

	makeErr      error
	activateErr  error
	validateFunc func(int) bool
	passivateErr error
	destroyErr   error
}

func newTestFactory() *testFactory {
	return &testFactory{validateFunc: func(int) bool { return true }}
}

func (f *testFactory) MakeObject() (*PooledObject, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.makeCount++
	if f.makeErr != nil {
		return nil, f.makeErr
	}
	v := f.next
	f.next++
	return NewPooledObject(v), nil
}

func (f *testFactory) ActivateObject(p *PooledObject) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.activateCount++
	return f.activateErr
}

func (f *testFactory) ValidateObject(p *PooledObject) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.validateCount++
	return f.validateFunc(p.Object.(int))
}

func (f *testFactory) PassivateObject(p *PooledObject) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.passivateCount++
	return f.passivateErr
}

func (f *testFactory) DestroyObject(p *PooledObject) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.destroyCount++
	return f.destroyErr
}

func (f *testFactory) counts() (make_, activate, validate, passivate, destroy int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.makeCount, f.activateCount, f.validateCount, f.passivateCount, f.destroyCount
}

func newConfig() *ObjectPoolConfig {
	c := NewDefaultPoolConfig()
	c.TimeBetweenEvictionRunsMillis = -1
	c.MinEvictableIdleTimeMillis = -1
	return c
}

// S1: basic LIFO borrow/return ordering.
func TestBorrowReturnLIFO(t *testing.T) {
	f := newTestFactory()
	cfg := newConfig()
	cfg.MaxTotal = 8
	cfg.Lifo = true
	p := NewObjectPool(f, cfg)
	defer p.Close()

	v0, err := p.BorrowObject()
	require.NoError(t, err)
	v1, err := p.BorrowObject()
	require.NoError(t, err)
	v2, err := p.BorrowObject()
	require.NoError(t, err)
	assert.Equal(t, 0, v0)
	assert.Equal(t, 1, v1)
	assert.Equal(t, 2, v2)

	require.NoError(t, p.ReturnObject(v2))
	got, err := p.BorrowObject()
	require.NoError(t, err)
	assert.Equal(t, v2, got)

	require.NoError(t, p.ReturnObject(v1))
	got, err = p.BorrowObject()
	require.NoError(t, err)
	assert.Equal(t, v1, got)

	require.NoError(t, p.ReturnObject(v0))
	require.NoError(t, p.ReturnObject(v2))
	got, err = p.BorrowObject()
	require.NoError(t, err)
	assert.Equal(t, v2, got)
}

// S2: FIFO variant of S1.
func TestBorrowReturnFIFO(t *testing.T) {
	f := newTestFactory()
	cfg := newConfig()
	cfg.MaxTotal = 8
	cfg.Lifo = false
	p := NewObjectPool(f, cfg)
	defer p.Close()

	v0, _ := p.BorrowObject()
	v1, _ := p.BorrowObject()
	v2, _ := p.BorrowObject()

	require.NoError(t, p.ReturnObject(v2))
	got, _ := p.BorrowObject()
	assert.Equal(t, v2, got)

	require.NoError(t, p.ReturnObject(v1))
	got, _ = p.BorrowObject()
	assert.Equal(t, v1, got)

	require.NoError(t, p.ReturnObject(v0))
	require.NoError(t, p.ReturnObject(v2))
	got, _ = p.BorrowObject()
	assert.Equal(t, v0, got)
}

// S3: FAIL exhaustion.
func TestFailExhaustion(t *testing.T) {
	f := newTestFactory()
	cfg := newConfig()
	cfg.MaxTotal = 1
	cfg.WhenExhausted = WhenExhaustedFail
	p := NewObjectPool(f, cfg)
	defer p.Close()

	v0, err := p.BorrowObject()
	require.NoError(t, err)

	_, err = p.BorrowObject()
	require.Error(t, err)
	assert.IsType(t, &PoolExhaustedErr{}, err)

	require.NoError(t, p.ReturnObject(v0))
	_, err = p.BorrowObject()
	require.NoError(t, err)
}

// S4: BLOCK with timeout, and a waiter woken by a timely return.
func TestBlockWithTimeout(t *testing.T) {
	f := newTestFactory()
	cfg := newConfig()
	cfg.MaxTotal = 1
	cfg.WhenExhausted = WhenExhaustedBlock
	cfg.MaxWaitMillis = 200
	p := NewObjectPool(f, cfg)
	defer p.Close()

	v0, err := p.BorrowObject()
	require.NoError(t, err)

	resultCh := make(chan interface{}, 1)
	errCh := make(chan error, 1)
	go func() {
		v, err := p.BorrowObject()
		resultCh <- v
		errCh <- err
	}()

	time.Sleep(50 * time.Millisecond)
	require.NoError(t, p.ReturnObject(v0))

	select {
	case v := <-resultCh:
		require.NoError(t, <-errCh)
		assert.Equal(t, v0, v)
	case <-time.After(time.Second):
		t.Fatal("blocked borrow never returned")
	}
}

func TestBlockTimesOutWithoutReturn(t *testing.T) {
	f := newTestFactory()
	cfg := newConfig()
	cfg.MaxTotal = 1
	cfg.WhenExhausted = WhenExhaustedBlock
	cfg.MaxWaitMillis = 80
	p := NewObjectPool(f, cfg)
	defer p.Close()

	_, err := p.BorrowObject()
	require.NoError(t, err)

	start := time.Now()
	_, err = p.BorrowObject()
	elapsed := time.Since(start)
	require.Error(t, err)
	assert.IsType(t, &PoolExhaustedErr{}, err)
	assert.True(t, elapsed >= 80*time.Millisecond)
}

// S5: eviction on age.
func TestEvictionOnAge(t *testing.T) {
	f := newTestFactory()
	cfg := newConfig()
	cfg.MaxTotal = -1
	cfg.MinEvictableIdleTimeMillis = 80
	cfg.TimeBetweenEvictionRunsMillis = 30
	cfg.NumTestsPerEvictionRun = -1
	p := NewObjectPool(f, cfg)
	defer p.Close()

	require.NoError(t, p.AddObject())
	require.NoError(t, p.AddObject())
	require.NoError(t, p.AddObject())
	require.Equal(t, 3, p.GetNumIdle())

	assert.Eventually(t, func() bool {
		return p.GetNumIdle() == 0
	}, time.Second, 10*time.Millisecond)

	_, _, _, _, destroy := f.counts()
	assert.Equal(t, 3, destroy)
}

// S7: invalidate.
func TestInvalidate(t *testing.T) {
	f := newTestFactory()
	cfg := newConfig()
	cfg.MaxTotal = 2
	p := NewObjectPool(f, cfg)
	defer p.Close()

	v, err := p.BorrowObject()
	require.NoError(t, err)
	require.NoError(t, p.InvalidateObject(v))

	_, _, _, _, destroy := f.counts()
	assert.Equal(t, 1, destroy)
	assert.Equal(t, 0, p.GetNumActive())

	v2, err := p.BorrowObject()
	require.NoError(t, err)
	assert.NotEqual(t, v, v2)
}

func TestGrowBypassesMaxTotal(t *testing.T) {
	f := newTestFactory()
	cfg := newConfig()
	cfg.MaxTotal = 1
	cfg.WhenExhausted = WhenExhaustedGrow
	p := NewObjectPool(f, cfg)
	defer p.Close()

	v0, err := p.BorrowObject()
	require.NoError(t, err)
	v1, err := p.BorrowObject()
	require.NoError(t, err)
	assert.NotEqual(t, v0, v1)
	assert.Equal(t, 2, p.GetNumActive())
}

func TestCloseDestroysIdleAndFailsBorrow(t *testing.T) {
	f := newTestFactory()
	cfg := newConfig()
	cfg.MaxTotal = 4
	p := NewObjectPool(f, cfg)

	require.NoError(t, p.AddObject())
	require.NoError(t, p.AddObject())
	p.Close()
	p.Close() // idempotent

	assert.Equal(t, 0, p.GetNumIdle())
	_, err := p.BorrowObject()
	require.Error(t, err)
	assert.IsType(t, &PoolClosedErr{}, err)
}

func TestNewlyCreatedFailsActivationTerminates(t *testing.T) {
	f := newTestFactory()
	f.activateErr = assert.AnError
	cfg := newConfig()
	cfg.MaxTotal = 1
	p := NewObjectPool(f, cfg)
	defer p.Close()

	_, err := p.BorrowObject()
	require.Error(t, err)
	assert.IsType(t, &NoValidObjectErr{}, err)
}

func TestTestOnBorrowRetriesPreexistingIdleEntry(t *testing.T) {
	f := newTestFactory()
	cfg := newConfig()
	cfg.MaxTotal = 5
	cfg.Lifo = false
	p := NewObjectPool(f, cfg)
	defer p.Close()

	require.NoError(t, p.AddObject()) // value 0, destined to fail validation
	require.NoError(t, p.AddObject()) // value 1, valid

	f.validateFunc = func(v int) bool { return v != 0 }
	cfg.TestOnBorrow = true

	v, err := p.BorrowObject()
	require.NoError(t, err)
	assert.Equal(t, 1, v)

	_, _, _, _, destroy := f.counts()
	assert.Equal(t, 1, destroy)
}
