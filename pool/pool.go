// Package pool implements the pooling core: ObjectPool (C3),
// KeyedObjectPool (C4), their shared entry type PooledObject (C1), the
// idle-set collections that back them (C2, in the collections
// subpackage), and the shared background evictor (C5).
package pool

import (
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/liangfflia/objectpool/pool/collections"
	"github.com/liangfflia/objectpool/pool/concurrent"
)

// ObjectPool is the single-key pool (C3): it enforces MaxTotal/MaxIdle/
// MaxWaitMillis, suspends and wakes borrowers, invokes factory
// callbacks, and exposes Borrow/Return/Invalidate/AddObject/Clear/Close.
type ObjectPool struct {
	AbandonedConfig *AbandonedConfig
	Config          *ObjectPoolConfig

	name   string
	logger zerolog.Logger

	closed    concurrent.AtomicBoolean
	evictLock sync.Mutex

	idleObjects *collections.LinkedBlockingDeque
	allObjects  *collections.SyncIdentityMap
	factory     Factory

	createCount                      concurrent.AtomicInteger
	destroyedCount                   concurrent.AtomicInteger
	destroyedByEvictorCount          concurrent.AtomicInteger
	destroyedByBorrowValidationCount concurrent.AtomicInteger

	evictionJob      *evictionJob
	evictionIterator collections.Iterator
}

// Option customizes an ObjectPool at construction time.
type Option func(*ObjectPool)

func WithLogger(l zerolog.Logger) Option {
	return func(p *ObjectPool) { p.logger = l }
}

func WithName(name string) Option {
	return func(p *ObjectPool) { p.name = name }
}

func WithAbandonedConfig(ac *AbandonedConfig) Option {
	return func(p *ObjectPool) { p.AbandonedConfig = ac }
}

// NewObjectPool constructs a pool around factory with the given config,
// starting its evictor (if evictPeriodMs > 0).
func NewObjectPool(factory Factory, config *ObjectPoolConfig, opts ...Option) *ObjectPool {
	p := &ObjectPool{
		factory:     factory,
		Config:      config,
		idleObjects: collections.NewDeque(math.MaxInt32),
		allObjects:  collections.NewSyncMap(),
		logger:      zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.StartEvictor()
	return p
}

// NewObjectPoolWithDefaultConfig wraps factory with NewDefaultPoolConfig.
func NewObjectPoolWithDefaultConfig(factory Factory) *ObjectPool {
	return NewObjectPool(factory, NewDefaultPoolConfig())
}

// Prefill calls AddObject count times, swallowing individual failures
// (useful for warming a pool at startup).
func Prefill(p *ObjectPool, count int) {
	for i := 0; i < count; i++ {
		_ = p.AddObject()
	}
}

func tryPooled(v interface{}) *PooledObject {
	if v == nil {
		return nil
	}
	obj, _ := v.(*PooledObject)
	return obj
}

// AddObject creates an entry, passivates it, and places it in the idle
// set — used to pre-load a pool (spec §4.1 addIdle).
func (p *ObjectPool) AddObject() error {
	if p.IsClosed() {
		return NewPoolClosedErr("pool not open")
	}
	obj, err := p.create()
	if err != nil {
		return err
	}
	if obj == nil {
		return NewPoolExhaustedErr("pool at capacity")
	}
	p.addIdleObject(obj)
	return nil
}

func (p *ObjectPool) addIdleObject(obj *PooledObject) {
	if obj == nil {
		return
	}
	if err := p.factory.PassivateObject(obj); err != nil {
		p.logger.Debug().Err(err).Msg("passivate failed while adding idle object")
		p.destroy(obj)
		return
	}
	if p.Config.Lifo {
		p.idleObjects.AddFirst(obj)
	} else {
		p.idleObjects.AddLast(obj)
	}
}

// GetNumIdle returns the exact count of idle entries.
func (p *ObjectPool) GetNumIdle() int {
	return p.idleObjects.Size()
}

// GetNumActive returns the exact count of allocated entries: every
// entry this pool has created minus those currently idle.
func (p *ObjectPool) GetNumActive() int {
	return p.allObjects.Size() - p.idleObjects.Size()
}

func (p *ObjectPool) GetDestroyedCount() int                   { return int(p.destroyedCount.Get()) }
func (p *ObjectPool) GetDestroyedByEvictorCount() int          { return int(p.destroyedByEvictorCount.Get()) }
func (p *ObjectPool) GetDestroyedByBorrowValidationCount() int { return int(p.destroyedByBorrowValidationCount.Get()) }
func (p *ObjectPool) GetCreatedCount() int                     { return int(p.createCount.Get()) }

func (p *ObjectPool) IsClosed() bool {
	return p.closed.Get()
}

// create attempts to build a new entry, gating on MaxTotal. A nil,
// nil result means the pool is at capacity (the caller should fall
// through to the exhaustion policy); a non-nil error means the factory
// itself failed and must be surfaced (spec §4.1 step 3, §7).
func (p *ObjectPool) create() (*PooledObject, error) {
	maxTotal := p.Config.MaxTotal
	newCount := p.createCount.IncrementAndGet()
	if maxTotal > -1 && int(newCount) > maxTotal {
		p.createCount.DecrementAndGet()
		return nil, nil
	}
	return p.finishCreate()
}

// createForce bypasses MaxTotal entirely — used by the GROW exhaustion
// policy (spec §4.1 step 4).
func (p *ObjectPool) createForce() (*PooledObject, error) {
	p.createCount.IncrementAndGet()
	return p.finishCreate()
}

func (p *ObjectPool) finishCreate() (*PooledObject, error) {
	obj, err := p.factory.MakeObject()
	if err != nil {
		p.createCount.DecrementAndGet()
		return nil, WrapFactoryErr(err, "factory MakeObject failed")
	}
	if obj == nil {
		p.createCount.DecrementAndGet()
		return nil, NewFactoryReturnedNothingErr("factory MakeObject returned no object")
	}
	p.allObjects.Put(obj.Object, obj)
	return obj, nil
}

func (p *ObjectPool) destroy(toDestroy *PooledObject) {
	p.doDestroy(toDestroy, false)
}

func (p *ObjectPool) doDestroy(toDestroy *PooledObject, inLock bool) {
	if inLock {
		toDestroy.invalidate()
	} else {
		toDestroy.Invalidate()
	}
	p.idleObjects.RemoveFirstOccurrence(toDestroy)
	p.allObjects.Remove(toDestroy.Object)
	if err := p.factory.DestroyObject(toDestroy); err != nil {
		p.logger.Debug().Err(err).Msg("factory DestroyObject failed, swallowed")
	}
	p.destroyedCount.IncrementAndGet()
	p.createCount.DecrementAndGet()
}

// safeValidate guards against a panicking factory.ValidateObject: spec
// §6 documents validate as must-not-throw but requires the pool to
// treat a throw as invalid rather than propagate it.
func (p *ObjectPool) safeValidate(obj *PooledObject) (valid bool) {
	defer func() {
		if r := recover(); r != nil {
			valid = false
			p.logger.Debug().Interface("panic", r).Msg("factory ValidateObject panicked")
		}
	}()
	return p.factory.ValidateObject(obj)
}

func (p *ObjectPool) removeAbandoned(config *AbandonedConfig) {
	now := currentTimeMillis()
	timeout := now - int64(config.RemoveAbandonedTimeout)*1000
	var toRemove []*PooledObject
	for _, o := range p.allObjects.Values() {
		obj := o.(*PooledObject)
		if obj.GetState() == Allocated && obj.GetLastUsedTime() <= timeout {
			obj.markAbandoned()
			toRemove = append(toRemove, obj)
		}
	}
	for _, obj := range toRemove {
		_ = p.InvalidateObject(obj.Object)
	}
}

// BorrowObject obtains an instance from the pool, implementing the
// seven-step algorithm of spec §4.1.
func (p *ObjectPool) BorrowObject() (interface{}, error) {
	return p.borrowObject(p.Config.MaxWaitMillis)
}

func (p *ObjectPool) borrowObject(borrowMaxWaitMillis int64) (interface{}, error) {
	if p.IsClosed() {
		return nil, NewPoolClosedErr("pool not open")
	}
	if ac := p.AbandonedConfig; ac != nil && ac.RemoveAbandonedOnBorrow &&
		p.GetNumIdle() < 2 && p.GetNumActive() > p.Config.MaxTotal-3 {
		p.removeAbandoned(ac)
	}

	whenExhausted := p.Config.WhenExhausted
	waitStart := currentTimeMillis()

	var candidate *PooledObject
	for candidate == nil {
		create := false
		var err error

		switch whenExhausted {
		case WhenExhaustedGrow:
			candidate = tryPooled(p.idleObjects.PollFirst())
			if candidate == nil {
				candidate, err = p.createForce()
				if err != nil {
					return nil, err
				}
				create = candidate != nil
			}
			if candidate == nil {
				return nil, NewPoolExhaustedErr("factory failed to create object")
			}

		case WhenExhaustedBlock:
			candidate = tryPooled(p.idleObjects.PollFirst())
			if candidate == nil {
				candidate, err = p.create()
				if err != nil {
					return nil, err
				}
				create = candidate != nil
			}
			if candidate == nil {
				var obj interface{}
				var werr error
				if borrowMaxWaitMillis <= 0 {
					obj, werr = p.idleObjects.TakeFirst()
				} else {
					remaining := borrowMaxWaitMillis - (currentTimeMillis() - waitStart)
					if remaining <= 0 {
						return nil, NewPoolExhaustedErr("timeout waiting for idle object")
					}
					obj, werr = p.idleObjects.PollFirstWithTimeout(time.Duration(remaining) * time.Millisecond)
				}
				if werr != nil {
					if p.IsClosed() {
						return nil, NewPoolClosedErr("pool closed while waiting")
					}
					// Interruption is treated as a retry, not a distinct
					// failure (spec §5): loop back around.
					continue
				}
				candidate = tryPooled(obj)
				if candidate == nil {
					return nil, NewPoolExhaustedErr("timeout waiting for idle object")
				}
			}

		default: // WhenExhaustedFail
			candidate = tryPooled(p.idleObjects.PollFirst())
			if candidate == nil {
				candidate, err = p.create()
				if err != nil {
					return nil, err
				}
				create = candidate != nil
			}
			if candidate == nil {
				return nil, NewPoolExhaustedErr("pool exhausted")
			}
		}

		if !candidate.Allocate() {
			// Borrowed out from under us by a concurrent evictor/return
			// race; try again.
			candidate = nil
			continue
		}

		if err := p.factory.ActivateObject(candidate); err != nil {
			p.destroy(candidate)
			candidate = nil
			if create {
				return nil, NewNoValidObjectErr("unable to activate newly created object")
			}
			continue
		}

		if p.Config.TestOnBorrow || (create && p.Config.TestOnCreate) {
			if !p.safeValidate(candidate) {
				p.destroy(candidate)
				p.destroyedByBorrowValidationCount.IncrementAndGet()
				candidate = nil
				if create {
					return nil, NewNoValidObjectErr("unable to validate newly created object")
				}
				continue
			}
		}
	}

	return candidate.Object, nil
}

// ReturnObject releases object back to the pool (spec §4.1 return).
func (p *ObjectPool) ReturnObject(object interface{}) error {
	if object == nil {
		return NewIllegalStatusErr("object is nil")
	}
	obj := tryPooled(p.allObjects.Get(object))
	if obj == nil {
		if p.AbandonedConfig != nil {
			return nil // already reclaimed as abandoned
		}
		return NewIllegalStatusErr("returned object not currently part of this pool")
	}

	if obj.GetState() != Allocated {
		return NewIllegalStatusErr("object has already been returned to this pool or is invalid")
	}
	obj.markReturning()

	if p.Config.TestOnReturn {
		if !p.safeValidate(obj) {
			p.destroy(obj)
			p.ensureIdle(1, false)
			return nil
		}
	}

	if err := p.factory.PassivateObject(obj); err != nil {
		p.logger.Debug().Err(err).Msg("passivate failed on return, destroying")
		p.destroy(obj)
		p.ensureIdle(1, false)
		return nil
	}

	if !obj.Deallocate() {
		return NewIllegalStatusErr("object has already been returned to this pool or is invalid")
	}

	maxIdle := p.Config.MaxIdle
	if p.IsClosed() || (maxIdle > -1 && p.idleObjects.Size() >= maxIdle) {
		p.destroy(obj)
	} else {
		if p.Config.Lifo {
			p.idleObjects.AddFirst(obj)
		} else {
			p.idleObjects.AddLast(obj)
		}
		if p.IsClosed() {
			p.Clear()
		}
	}
	return nil
}

// InvalidateObject always destroys object and surfaces destroy's own
// error (spec §4.1/§7 — the one operation whose destroy failure
// propagates).
func (p *ObjectPool) InvalidateObject(object interface{}) error {
	obj := tryPooled(p.allObjects.Get(object))
	if obj == nil {
		if p.AbandonedConfig != nil {
			return nil
		}
		return NewIllegalStatusErr("invalidated object not currently part of this pool")
	}
	var destroyErr error
	if obj.GetState() != Invalid {
		obj.Invalidate()
		p.idleObjects.RemoveFirstOccurrence(obj)
		p.allObjects.Remove(obj.Object)
		destroyErr = p.factory.DestroyObject(obj)
		p.destroyedCount.IncrementAndGet()
		p.createCount.DecrementAndGet()
	}
	p.ensureIdle(1, false)
	if destroyErr != nil {
		return WrapFactoryErr(destroyErr, "factory DestroyObject failed")
	}
	return nil
}

// Clear destroys every idle entry. Always safe; swallows destroy
// errors.
func (p *ObjectPool) Clear() {
	for {
		obj := tryPooled(p.idleObjects.PollFirst())
		if obj == nil {
			return
		}
		p.destroy(obj)
	}
}

// Close transitions the pool to closed, destroys idle entries, stops
// the evictor, and releases blocked borrowers. Idempotent.
func (p *ObjectPool) Close() {
	if !p.closed.CompareAndSet(false, true) {
		return
	}

	p.stopEvictor()
	p.Clear()
	p.idleObjects.InterruptTakeWaiters()
}

// StartEvictor (re)starts the evictor with the current
// TimeBetweenEvictionRunsMillis, used after a config change.
func (p *ObjectPool) StartEvictor() {
	p.evictLock.Lock()
	defer p.evictLock.Unlock()
	if p.evictionJob != nil {
		sharedEvictor.Unregister(p.evictionJob)
		p.evictionJob = nil
		p.evictionIterator = nil
	}
	period := p.Config.TimeBetweenEvictionRunsMillis
	if period > 0 {
		p.evictionJob = sharedEvictor.Register(time.Duration(period)*time.Millisecond, p.runEvictionTick)
	}
}

func (p *ObjectPool) stopEvictor() {
	p.evictLock.Lock()
	defer p.evictLock.Unlock()
	if p.evictionJob != nil {
		sharedEvictor.Unregister(p.evictionJob)
		p.evictionJob = nil
		p.evictionIterator = nil
	}
}

func (p *ObjectPool) runEvictionTick() {
	p.evict()
	p.ensureMinIdle()
}

func (p *ObjectPool) getEvictionPolicy() EvictionPolicy {
	policy := GetEvictionPolicy(p.Config.EvictionPolicyName)
	if policy == nil {
		policy = GetEvictionPolicy(DefaultEvictionPolicyName)
	}
	return policy
}

// getNumTests implements spec §4.3 step 1: a non-negative
// NumTestsPerEvictionRun is used verbatim (capped at idle size); a
// negative value n means "test about 1/|n| of the idle pool".
func (p *ObjectPool) getNumTests() int {
	n := p.Config.NumTestsPerEvictionRun
	idle := p.idleObjects.Size()
	if n >= 0 {
		if n < idle {
			return n
		}
		return idle
	}
	return int(math.Ceil(float64(idle) / math.Abs(float64(n))))
}

// evictionIteratorFor returns a fresh cursor over the idle set starting
// at the oldest end, walking toward the newest (the tail when Lifo, the
// head otherwise), so eviction always ages out the stalest entries first
// regardless of Lifo.
func (p *ObjectPool) evictionIteratorFor() collections.Iterator {
	if p.Config.Lifo {
		return p.idleObjects.DescendingIterator()
	}
	return p.idleObjects.Iterator()
}

func (p *ObjectPool) getMinIdle() int {
	maxIdle := p.Config.MaxIdle
	if p.Config.MinIdle > maxIdle && maxIdle >= 0 {
		return maxIdle
	}
	return p.Config.MinIdle
}

// evict runs one evictor tick (spec §4.3 steps 1-5).
func (p *ObjectPool) evict() {
	defer func() {
		if ac := p.AbandonedConfig; ac != nil && ac.RemoveAbandonedOnMaintenance {
			p.removeAbandoned(ac)
		}
	}()

	if p.idleObjects.Size() == 0 {
		return
	}

	p.evictLock.Lock()
	defer p.evictLock.Unlock()

	policy := p.getEvictionPolicy()
	evictionConfig := &EvictionConfig{
		IdleEvictTime:     p.Config.MinEvictableIdleTimeMillis,
		IdleSoftEvictTime: p.Config.SoftMinEvictableIdleTimeMillis,
		MinIdle:           p.Config.MinIdle,
	}
	testWhileIdle := p.Config.TestWhileIdle

	for i, n := 0, p.getNumTests(); i < n; i++ {
		if p.evictionIterator == nil || !p.evictionIterator.HasNext() {
			p.evictionIterator = p.evictionIteratorFor()
		}
		if !p.evictionIterator.HasNext() {
			return
		}

		underTest := tryPooled(p.evictionIterator.Next())
		if underTest == nil {
			i--
			p.evictionIterator = nil
			continue
		}
		if !underTest.StartEvictionTest() {
			// Borrowed out from under the evictor; don't charge this
			// against the tick's budget.
			i--
			continue
		}
		// Hold the entry out of the idle set for the duration of the
		// test (spec §4.1): EndEvictionTest below re-adds it if it
		// survives, so it must not still be linked in here too.
		p.idleObjects.RemoveFirstOccurrence(underTest)

		evict := policy.Evict(evictionConfig, underTest, p.idleObjects.Size())
		if !evict && testWhileIdle {
			if err := p.factory.ActivateObject(underTest); err != nil {
				evict = true
			} else if !p.safeValidate(underTest) {
				evict = true
			} else if err := p.factory.PassivateObject(underTest); err != nil {
				evict = true
			}
		}

		if evict {
			p.doDestroy(underTest, false)
			p.destroyedByEvictorCount.IncrementAndGet()
		} else {
			underTest.EndEvictionTest(p.idleObjects)
		}
	}
}

func (p *ObjectPool) ensureMinIdle() {
	p.ensureIdle(p.getMinIdle(), true)
}

// ensureIdle tops the idle set up to idleCount, used both to maintain
// MinIdle from the evictor and to backfill after a destroyed-on-return/
// destroyed-on-invalidate entry leaves the idle set momentarily thin.
func (p *ObjectPool) ensureIdle(idleCount int, always bool) {
	if idleCount < 1 || p.IsClosed() || (!always && !p.idleObjects.HasTakeWaiters()) {
		return
	}
	for p.idleObjects.Size() < idleCount {
		obj, err := p.create()
		if err != nil || obj == nil {
			// Can't create more; no reason to think the next attempt
			// will succeed either. Give up until the next tick.
			break
		}
		if p.Config.Lifo {
			p.idleObjects.AddFirst(obj)
		} else {
			p.idleObjects.AddLast(obj)
		}
	}
	if p.IsClosed() {
		p.Clear()
	}
}
