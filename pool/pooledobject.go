package pool

import (
	"sync"
	"time"

	"github.com/liangfflia/objectpool/pool/collections"
)

// PooledObjectState is the state machine each Entry moves through (C1,
// spec §3 / §4.1's state diagram), extended with RETURNING and ABANDONED
// as transient/supplemental markers the teacher's abandoned-object
// tracking needs.
type PooledObjectState int

const (
	Idle PooledObjectState = iota
	Allocated
	EvictionTest
	Invalid
	Returning
	Abandoned
)

func (s PooledObjectState) String() string {
	switch s {
	case Idle:
		return "IDLE"
	case Allocated:
		return "ALLOCATED"
	case EvictionTest:
		return "EVICTION_TEST"
	case Invalid:
		return "INVALID"
	case Returning:
		return "RETURNING"
	case Abandoned:
		return "ABANDONED"
	default:
		return "UNKNOWN"
	}
}

func currentTimeMillis() int64 {
	return time.Now().UnixNano() / int64(time.Millisecond)
}

// PooledObject wraps one managed resource together with its lifecycle
// state and timestamps (C1).
type PooledObject struct {
	Object interface{}

	lock  sync.Mutex
	state PooledObjectState

	createTime       int64
	lastBorrowTime   int64
	lastReturnTime   int64
	lastIdleTime     int64
	logAbandoned     bool
}

// NewPooledObject wraps value, born IDLE, matching entries created
// through AddObject or a successful return.
func NewPooledObject(value interface{}) *PooledObject {
	now := currentTimeMillis()
	return &PooledObject{
		Object:         value,
		state:          Idle,
		createTime:     now,
		lastReturnTime: now,
		lastIdleTime:   now,
	}
}

func (p *PooledObject) GetState() PooledObjectState {
	p.lock.Lock()
	defer p.lock.Unlock()
	return p.state
}

// Allocate transitions IDLE -> ALLOCATED, or, if the entry was pulled
// out for an eviction test, lets that test's destroy decision own the
// entry and simply marks it allocated. Returns false if the entry is in
// any other state (already allocated, invalid, abandoned).
func (p *PooledObject) Allocate() bool {
	p.lock.Lock()
	defer p.lock.Unlock()
	switch p.state {
	case Idle, EvictionTest:
		p.state = Allocated
		p.lastBorrowTime = currentTimeMillis()
		p.logAbandoned = false
		return true
	default:
		return false
	}
}

// Deallocate transitions ALLOCATED/RETURNING -> IDLE. Returns false if
// the entry was not allocated (double return, or already invalidated).
func (p *PooledObject) Deallocate() bool {
	p.lock.Lock()
	defer p.lock.Unlock()
	switch p.state {
	case Allocated, Returning:
		p.state = Idle
		p.lastReturnTime = currentTimeMillis()
		p.lastIdleTime = p.lastReturnTime
		return true
	default:
		return false
	}
}

// Invalidate acquires the lock and marks the entry INVALID.
func (p *PooledObject) Invalidate() {
	p.lock.Lock()
	defer p.lock.Unlock()
	p.state = Invalid
}

// invalidate marks the entry INVALID; caller must already hold p.lock.
func (p *PooledObject) invalidate() {
	p.state = Invalid
}

// markReturning flags an in-flight return so abandoned-object sweeps do
// not race with it.
func (p *PooledObject) markReturning() {
	p.lock.Lock()
	defer p.lock.Unlock()
	if p.state == Allocated {
		p.state = Returning
	}
}

func (p *PooledObject) markAbandoned() {
	p.state = Abandoned
	p.logAbandoned = true
}

// StartEvictionTest transitions IDLE -> EVICTION_TEST so a concurrent
// borrow cannot observe the entry mid-validation; it is never reachable
// from the idle set while in this state (spec §4.1).
func (p *PooledObject) StartEvictionTest() bool {
	p.lock.Lock()
	defer p.lock.Unlock()
	if p.state == Idle {
		p.state = EvictionTest
		return true
	}
	return false
}

// EndEvictionTest completes an eviction test that decided not to evict:
// the entry returns to IDLE and is pushed back onto idleSet. Returns
// false if the entry was destroyed (or otherwise mutated) during the
// test, in which case the caller must not touch idleSet again for it.
func (p *PooledObject) EndEvictionTest(idleSet *collections.LinkedBlockingDeque) bool {
	p.lock.Lock()
	defer p.lock.Unlock()
	if p.state == EvictionTest {
		p.state = Idle
		p.lastIdleTime = currentTimeMillis()
		idleSet.AddLast(p)
		return true
	}
	return false
}

// GetLastUsedTime returns the most recent instant the entry stopped
// being active: its last return time, or its creation time if it has
// never been borrowed.
func (p *PooledObject) GetLastUsedTime() int64 {
	p.lock.Lock()
	defer p.lock.Unlock()
	if p.lastReturnTime > p.createTime {
		return p.lastReturnTime
	}
	return p.createTime
}

// GetIdleTimeMillis returns how long the entry has been sitting idle.
func (p *PooledObject) GetIdleTimeMillis() int64 {
	p.lock.Lock()
	defer p.lock.Unlock()
	return currentTimeMillis() - p.lastIdleTime
}

// GetActiveTimeMillis returns how long the entry has been allocated.
func (p *PooledObject) GetActiveTimeMillis() int64 {
	p.lock.Lock()
	defer p.lock.Unlock()
	rt := p.lastReturnTime
	bt := p.lastBorrowTime
	if rt > bt {
		return rt - bt
	}
	return currentTimeMillis() - bt
}

func (p *PooledObject) GetCreateTime() int64 {
	p.lock.Lock()
	defer p.lock.Unlock()
	return p.createTime
}
