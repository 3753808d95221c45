package pool

import (
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/liangfflia/objectpool/pool/collections"
	"github.com/liangfflia/objectpool/pool/concurrent"
)

// keyState is one key's idle set plus its live active count (spec §4.2's
// "per-key active counter").
type keyState struct {
	idle   *collections.LinkedBlockingDeque
	active int
}

// empty reports whether this key has nothing left to track — no idle
// entries and no active borrows — at which point it should be dropped
// from the maps entirely (spec §9 design note 3: "this spec requires
// removal on transition to zero").
func (k *keyState) empty() bool {
	return k.active == 0 && k.idle.Size() == 0
}

// valueRecord maps a borrowed/idle value back to the key it was created
// under, so Return/Invalidate (which only receive the value) can find
// the right sub-pool.
type valueRecord struct {
	key interface{}
	obj *PooledObject
}

// KeyedObjectPool is the multiplexed pool (C4): one ObjectPool-shaped
// sub-pool per key, under a shared cross-key MaxTotalPool cap. Unlike
// ObjectPool (which follows the teacher's lock-free collections), this
// component uses the single-mutex-plus-condition-variable design spec §5
// describes directly, because MaxTotalPool bookkeeping is inherently
// cross-key and needs one place to make atomic "check-then-act"
// decisions (spec §9 design note: a per-key condition variable is an
// optimization, not a requirement — this pool takes the simpler,
// spec-literal option).
type KeyedObjectPool struct {
	AbandonedConfig *AbandonedConfig
	Config          *KeyedObjectPoolConfig
	factory         KeyedFactory
	logger          zerolog.Logger

	mu     sync.Mutex
	cond   *sync.Cond
	closed bool

	keys     map[interface{}]*keyState
	keyOrder []interface{}
	values   map[interface{}]*valueRecord

	totalActive int
	totalIdle   int

	createCount                      concurrent.AtomicInteger
	destroyedCount                   concurrent.AtomicInteger
	destroyedByEvictorCount          concurrent.AtomicInteger
	destroyedByBorrowValidationCount concurrent.AtomicInteger

	evictLock      sync.Mutex
	evictionJob    *evictionJob
	evictKeyIdx    int
	evictInnerIter collections.Iterator
	evictInnerKey  interface{}
}

// KeyedOption customizes a KeyedObjectPool at construction time.
type KeyedOption func(*KeyedObjectPool)

func WithKeyedLogger(l zerolog.Logger) KeyedOption {
	return func(p *KeyedObjectPool) { p.logger = l }
}

func WithKeyedAbandonedConfig(ac *AbandonedConfig) KeyedOption {
	return func(p *KeyedObjectPool) { p.AbandonedConfig = ac }
}

// NewKeyedObjectPool constructs a keyed pool around factory, starting
// its evictor (if evictPeriodMs > 0).
func NewKeyedObjectPool(factory KeyedFactory, config *KeyedObjectPoolConfig, opts ...KeyedOption) *KeyedObjectPool {
	kp := &KeyedObjectPool{
		factory: factory,
		Config:  config,
		keys:    make(map[interface{}]*keyState),
		values:  make(map[interface{}]*valueRecord),
		logger:  zerolog.Nop(),
	}
	kp.cond = sync.NewCond(&kp.mu)
	for _, opt := range opts {
		opt(kp)
	}
	kp.StartEvictor()
	return kp
}

func (kp *KeyedObjectPool) IsClosed() bool {
	kp.mu.Lock()
	defer kp.mu.Unlock()
	return kp.closed
}

func (kp *KeyedObjectPool) GetNumIdle(key interface{}) int {
	kp.mu.Lock()
	defer kp.mu.Unlock()
	if ks, ok := kp.keys[key]; ok {
		return ks.idle.Size()
	}
	return 0
}

func (kp *KeyedObjectPool) GetNumActive(key interface{}) int {
	kp.mu.Lock()
	defer kp.mu.Unlock()
	if ks, ok := kp.keys[key]; ok {
		return ks.active
	}
	return 0
}

func (kp *KeyedObjectPool) GetNumTotalIdle() int {
	kp.mu.Lock()
	defer kp.mu.Unlock()
	return kp.totalIdle
}

func (kp *KeyedObjectPool) GetNumTotalActive() int {
	kp.mu.Lock()
	defer kp.mu.Unlock()
	return kp.totalActive
}

func (kp *KeyedObjectPool) GetCreatedCount() int            { return int(kp.createCount.Get()) }
func (kp *KeyedObjectPool) GetDestroyedCount() int          { return int(kp.destroyedCount.Get()) }
func (kp *KeyedObjectPool) GetDestroyedByEvictorCount() int { return int(kp.destroyedByEvictorCount.Get()) }
func (kp *KeyedObjectPool) GetDestroyedByBorrowValidationCount() int {
	return int(kp.destroyedByBorrowValidationCount.Get())
}

// getOrCreateKeyStateLocked returns key's bookkeeping row, creating it
// (lazily, per spec §4.2) if this is the key's first appearance. Caller
// must hold kp.mu.
func (kp *KeyedObjectPool) getOrCreateKeyStateLocked(key interface{}) *keyState {
	ks, ok := kp.keys[key]
	if !ok {
		ks = &keyState{idle: collections.NewDeque(math.MaxInt32)}
		kp.keys[key] = ks
	}
	return ks
}

// registerKeyLocked appends key to the ordered key list used by the
// evictor's outer cursor, if not already present.
func (kp *KeyedObjectPool) registerKeyLocked(key interface{}) {
	for _, k := range kp.keyOrder {
		if k == key {
			return
		}
	}
	kp.keyOrder = append(kp.keyOrder, key)
}

// dropKeyIfEmptyLocked removes key's bookkeeping once both its idle set
// and active count have gone to zero (spec §9 design note 3).
func (kp *KeyedObjectPool) dropKeyIfEmptyLocked(key interface{}, ks *keyState) {
	if !ks.empty() {
		return
	}
	delete(kp.keys, key)
	for i, k := range kp.keyOrder {
		if k == key {
			kp.keyOrder = append(kp.keyOrder[:i], kp.keyOrder[i+1:]...)
			break
		}
	}
	if kp.evictInnerKey == key {
		kp.evictInnerKey = nil
		kp.evictInnerIter = nil
	}
}

// makeRoomLocked destroys the single globally oldest idle entry across
// all keys to free one slot under MaxTotalPool (spec §9 open question 1:
// destroy only enough oldest idle entries, never clear() every key).
// Returns the victim entry and its key so the caller can run
// factory.DestroyObject with the lock released; nil if no idle entry
// exists anywhere. Caller must hold kp.mu; bookkeeping (totalIdle, the
// key's idle deque) is updated before return.
func (kp *KeyedObjectPool) makeRoomLocked() (interface{}, *PooledObject) {
	var oldestKey interface{}
	var oldest *PooledObject
	var oldestTime int64 = math.MaxInt64
	for key, ks := range kp.keys {
		it := ks.idle.Iterator()
		for it.HasNext() {
			v := it.Next()
			obj, ok := v.(*PooledObject)
			if !ok || obj == nil {
				continue
			}
			t := obj.GetLastUsedTime()
			if t < oldestTime {
				oldestTime = t
				oldest = obj
				oldestKey = key
			}
		}
	}
	if oldest == nil {
		return nil, nil
	}
	ks := kp.keys[oldestKey]
	ks.idle.RemoveFirstOccurrence(oldest)
	kp.totalIdle--
	return oldestKey, oldest
}

func (kp *KeyedObjectPool) finalizeDestroyLocked(key interface{}, obj *PooledObject) {
	delete(kp.values, obj.Object)
	kp.destroyedCount.IncrementAndGet()
	kp.createCount.DecrementAndGet()
	if ks, ok := kp.keys[key]; ok {
		kp.dropKeyIfEmptyLocked(key, ks)
	}
}

func (kp *KeyedObjectPool) destroyUnlocked(key interface{}, obj *PooledObject) {
	obj.Invalidate()
	if err := kp.factory.DestroyObject(key, obj); err != nil {
		kp.logger.Debug().Err(err).Interface("key", key).Msg("factory DestroyObject failed, swallowed")
	}
	kp.mu.Lock()
	kp.finalizeDestroyLocked(key, obj)
	kp.cond.Broadcast()
	kp.mu.Unlock()
}

// removeAbandoned reclaims every entry that has been allocated for
// longer than config's timeout without being returned, the keyed
// counterpart of ObjectPool.removeAbandoned.
func (kp *KeyedObjectPool) removeAbandoned(config *AbandonedConfig) {
	now := currentTimeMillis()
	timeout := now - int64(config.RemoveAbandonedTimeout)*1000

	kp.mu.Lock()
	type candidate struct {
		key interface{}
		obj *PooledObject
	}
	var toReclaim []candidate
	for value, rec := range kp.values {
		if rec.obj.GetState() == Allocated && rec.obj.GetLastUsedTime() <= timeout {
			toReclaim = append(toReclaim, candidate{key: rec.key, obj: rec.obj})
		}
		_ = value
	}
	kp.mu.Unlock()

	for _, c := range toReclaim {
		c.obj.markAbandoned()
		_ = kp.Invalidate(c.key, c.obj.Object)
	}
}

func (kp *KeyedObjectPool) safeValidate(key interface{}, obj *PooledObject) (valid bool) {
	defer func() {
		if r := recover(); r != nil {
			valid = false
			kp.logger.Debug().Interface("panic", r).Msg("factory ValidateObject panicked")
		}
	}()
	return kp.factory.ValidateObject(key, obj)
}

// Borrow obtains an instance for key, implementing the keyed variant of
// spec §4.1's algorithm with the two additions from spec §4.2: the
// cross-key MaxTotalPool room-making step, and lazy per-key state.
func (kp *KeyedObjectPool) Borrow(key interface{}) (interface{}, error) {
	if ac := kp.AbandonedConfig; ac != nil && ac.RemoveAbandonedOnBorrow &&
		kp.GetNumTotalIdle() < 2 && kp.Config.MaxTotalPool > 0 && kp.GetNumTotalActive() > kp.Config.MaxTotalPool-3 {
		kp.removeAbandoned(ac)
	}

	waitStart := currentTimeMillis()

	for {
		kp.mu.Lock()
		if kp.closed {
			kp.mu.Unlock()
			return nil, NewPoolClosedErr("pool not open")
		}

		ks := kp.getOrCreateKeyStateLocked(key)
		if v := ks.idle.PollFirst(); v != nil {
			idleCandidate := v.(*PooledObject)
			kp.totalIdle--
			ks.active++
			kp.totalActive++
			kp.mu.Unlock()
			obj, ferr := kp.finishBorrow(key, ks, idleCandidate, false)
			if ferr != nil {
				return nil, ferr
			}
			if obj == nil {
				continue
			}
			return obj.Object, nil
		}

		globalFull := kp.Config.MaxTotalPool > 0 && kp.totalActive+kp.totalIdle >= kp.Config.MaxTotalPool
		var victimKey interface{}
		var victim *PooledObject
		if globalFull {
			victimKey, victim = kp.makeRoomLocked()
			if victim != nil {
				globalFull = kp.Config.MaxTotalPool > 0 && kp.totalActive+kp.totalIdle >= kp.Config.MaxTotalPool
			}
		}
		perKeyFull := kp.Config.MaxTotal > 0 && ks.active >= kp.Config.MaxTotal

		if !globalFull && !perKeyFull {
			ks.active++
			kp.totalActive++
			kp.keys[key] = ks
			kp.mu.Unlock()
			if victim != nil {
				kp.destroyUnlocked(victimKey, victim)
			}
			created, err := kp.makeObject(key)
			if err != nil {
				kp.rollbackReservation(key, ks)
				return nil, err
			}
			obj, ferr := kp.finishBorrow(key, ks, created, true)
			if ferr != nil {
				return nil, ferr
			}
			if obj == nil {
				continue
			}
			return obj.Object, nil
		}

		// Exhausted: victim (if any) is released either way, the slot
		// it freed just wasn't enough to satisfy this request.
		whenExhausted := kp.Config.WhenExhausted
		kp.mu.Unlock()
		if victim != nil {
			kp.destroyUnlocked(victimKey, victim)
		}

		switch whenExhausted {
		case WhenExhaustedFail:
			return nil, NewPoolExhaustedErr("pool exhausted")

		case WhenExhaustedGrow:
			kp.mu.Lock()
			ks.active++
			kp.totalActive++
			kp.keys[key] = ks
			kp.mu.Unlock()
			created, err := kp.makeObject(key)
			if err != nil {
				kp.rollbackReservation(key, ks)
				return nil, err
			}
			obj, ferr := kp.finishBorrow(key, ks, created, true)
			if ferr != nil {
				return nil, ferr
			}
			if obj == nil {
				continue
			}
			return obj.Object, nil

		case WhenExhaustedBlock:
			kp.mu.Lock()
			if kp.closed {
				kp.mu.Unlock()
				return nil, NewPoolClosedErr("pool closed while waiting")
			}
			if kp.Config.MaxWaitMillis <= 0 {
				kp.cond.Wait()
			} else {
				remaining := kp.Config.MaxWaitMillis - (currentTimeMillis() - waitStart)
				if remaining <= 0 {
					kp.mu.Unlock()
					return nil, NewPoolExhaustedErr("timeout waiting for capacity")
				}
				kp.condWaitTimeoutLocked(time.Duration(remaining) * time.Millisecond)
			}
			kp.mu.Unlock()
			continue
		}
	}
}

// condWaitTimeoutLocked waits on kp.cond for up to timeout. Caller must
// hold kp.mu; it is held again on return. Built on Broadcast-after-sleep
// since sync.Cond has no native timed wait.
func (kp *KeyedObjectPool) condWaitTimeoutLocked(timeout time.Duration) {
	timer := time.AfterFunc(timeout, func() {
		kp.mu.Lock()
		kp.cond.Broadcast()
		kp.mu.Unlock()
	})
	defer timer.Stop()
	kp.cond.Wait()
}

func (kp *KeyedObjectPool) makeObject(key interface{}) (*PooledObject, error) {
	kp.createCount.IncrementAndGet()
	obj, err := kp.factory.MakeObject(key)
	if err != nil {
		kp.createCount.DecrementAndGet()
		return nil, WrapFactoryErr(err, "factory MakeObject failed")
	}
	if obj == nil {
		kp.createCount.DecrementAndGet()
		return nil, NewFactoryReturnedNothingErr("factory MakeObject returned no object")
	}
	kp.mu.Lock()
	kp.values[obj.Object] = &valueRecord{key: key, obj: obj}
	kp.registerKeyLocked(key)
	kp.mu.Unlock()
	obj.Allocate()
	return obj, nil
}

// AddObject creates an entry for key, passivates it, and places it in
// the idle set — the keyed counterpart of ObjectPool.AddObject, used to
// pre-load a specific key.
func (kp *KeyedObjectPool) AddObject(key interface{}) error {
	if kp.IsClosed() {
		return NewPoolClosedErr("pool not open")
	}
	return kp.addIdleEntry(key)
}

// addIdleEntry creates one entry for key and deposits it directly into
// the idle set without ever counting toward active, used by both
// AddObject and the evictor's MinIdle top-up.
func (kp *KeyedObjectPool) addIdleEntry(key interface{}) error {
	obj, err := kp.makeObject(key)
	if err != nil {
		return err
	}
	if err := kp.factory.PassivateObject(key, obj); err != nil {
		kp.logger.Debug().Err(err).Interface("key", key).Msg("passivate failed while adding idle object")
		kp.destroyUnlocked(key, obj)
		return nil
	}
	obj.Deallocate()

	kp.mu.Lock()
	if kp.closed {
		kp.mu.Unlock()
		kp.destroyUnlocked(key, obj)
		return nil
	}
	ks := kp.getOrCreateKeyStateLocked(key)
	if kp.Config.Lifo {
		ks.idle.AddFirst(obj)
	} else {
		ks.idle.AddLast(obj)
	}
	kp.totalIdle++
	kp.cond.Broadcast()
	kp.mu.Unlock()
	return nil
}

func (kp *KeyedObjectPool) rollbackReservation(key interface{}, ks *keyState) {
	kp.mu.Lock()
	ks.active--
	kp.totalActive--
	kp.dropKeyIfEmptyLocked(key, ks)
	kp.cond.Broadcast()
	kp.mu.Unlock()
}

// finishBorrow runs activate/validate on candidate outside the lock. It
// returns (obj, nil) on success, (nil, nil) to signal "loop and try
// again" (a pre-existing idle entry failed and another may still work),
// or (nil, err) to terminate the borrow — the newly-created-terminates
// rule of spec §4.1 steps 5-6, selected via the create flag.
func (kp *KeyedObjectPool) finishBorrow(key interface{}, ks *keyState, candidate *PooledObject, create bool) (*PooledObject, error) {
	if !create {
		if !candidate.Allocate() {
			kp.rollbackReservation(key, ks)
			return nil, nil
		}
	}

	if err := kp.factory.ActivateObject(key, candidate); err != nil {
		kp.destroyUnlocked(key, candidate)
		kp.rollbackActiveOnly(key, ks)
		if create {
			return nil, NewNoValidObjectErr("unable to activate newly created object")
		}
		return nil, nil
	}
	if kp.Config.TestOnBorrow || (create && kp.Config.TestOnCreate) {
		if !kp.safeValidate(key, candidate) {
			kp.destroyUnlocked(key, candidate)
			kp.destroyedByBorrowValidationCount.IncrementAndGet()
			kp.rollbackActiveOnly(key, ks)
			if create {
				return nil, NewNoValidObjectErr("unable to validate newly created object")
			}
			return nil, nil
		}
	}
	return candidate, nil
}

// rollbackActiveOnly undoes the active-count reservation after
// destroyUnlocked has already removed the entry from bookkeeping.
func (kp *KeyedObjectPool) rollbackActiveOnly(key interface{}, ks *keyState) {
	kp.mu.Lock()
	ks.active--
	kp.totalActive--
	kp.dropKeyIfEmptyLocked(key, ks)
	kp.cond.Broadcast()
	kp.mu.Unlock()
}

// Return releases value, borrowed under key, back to the pool (spec
// §4.2 return).
func (kp *KeyedObjectPool) Return(key interface{}, value interface{}) error {
	kp.mu.Lock()
	rec, ok := kp.values[value]
	if !ok || rec.key != key {
		kp.mu.Unlock()
		if kp.AbandonedConfig != nil {
			return nil // already reclaimed as abandoned
		}
		return NewIllegalStatusErr("returned object not currently part of this pool")
	}
	obj := rec.obj
	ks := kp.keys[key]
	kp.mu.Unlock()

	if obj.GetState() != Allocated {
		return NewIllegalStatusErr("object has already been returned to this pool or is invalid")
	}
	obj.markReturning()

	if kp.Config.TestOnReturn {
		if !kp.safeValidate(key, obj) {
			kp.destroyUnlocked(key, obj)
			kp.mu.Lock()
			ks.active--
			kp.totalActive--
			kp.dropKeyIfEmptyLocked(key, ks)
			kp.cond.Broadcast()
			kp.mu.Unlock()
			return nil
		}
	}

	if err := kp.factory.PassivateObject(key, obj); err != nil {
		kp.logger.Debug().Err(err).Msg("passivate failed on return, destroying")
		kp.destroyUnlocked(key, obj)
		kp.mu.Lock()
		ks.active--
		kp.totalActive--
		kp.dropKeyIfEmptyLocked(key, ks)
		kp.cond.Broadcast()
		kp.mu.Unlock()
		return nil
	}

	if !obj.Deallocate() {
		return NewIllegalStatusErr("object has already been returned to this pool or is invalid")
	}

	kp.mu.Lock()
	ks.active--
	kp.totalActive--
	maxIdle := kp.Config.MaxIdle
	if kp.closed || (maxIdle > -1 && ks.idle.Size() >= maxIdle) {
		kp.mu.Unlock()
		kp.destroyUnlocked(key, obj)
		return nil
	}
	if kp.Config.Lifo {
		ks.idle.AddFirst(obj)
	} else {
		ks.idle.AddLast(obj)
	}
	kp.totalIdle++
	kp.cond.Broadcast()
	kp.mu.Unlock()
	return nil
}

// Invalidate always destroys value (surfacing the destroy error), and
// decrements the key's active/total counters.
func (kp *KeyedObjectPool) Invalidate(key interface{}, value interface{}) error {
	kp.mu.Lock()
	rec, ok := kp.values[value]
	if !ok || rec.key != key {
		kp.mu.Unlock()
		if kp.AbandonedConfig != nil {
			return nil // already reclaimed as abandoned
		}
		return NewIllegalStatusErr("invalidated object not currently part of this pool")
	}
	obj := rec.obj
	ks := kp.keys[key]
	wasActive := obj.GetState() == Allocated
	kp.mu.Unlock()

	obj.Invalidate()
	destroyErr := kp.factory.DestroyObject(key, obj)

	kp.mu.Lock()
	kp.finalizeDestroyLocked(key, obj)
	if wasActive {
		ks.active--
		kp.totalActive--
	} else {
		kp.totalIdle--
	}
	kp.dropKeyIfEmptyLocked(key, ks)
	kp.cond.Broadcast()
	kp.mu.Unlock()

	if destroyErr != nil {
		return WrapFactoryErr(destroyErr, "factory DestroyObject failed")
	}
	return nil
}

// Clear destroys every idle entry for every key.
func (kp *KeyedObjectPool) Clear() {
	for {
		kp.mu.Lock()
		var victimKey interface{}
		var victim *PooledObject
		for key, ks := range kp.keys {
			if v := ks.idle.PollFirst(); v != nil {
				victim = v.(*PooledObject)
				victimKey = key
				kp.totalIdle--
				break
			}
		}
		kp.mu.Unlock()
		if victim == nil {
			return
		}
		kp.destroyUnlocked(victimKey, victim)
	}
}

// ClearKey destroys every idle entry for a single key.
func (kp *KeyedObjectPool) ClearKey(key interface{}) {
	for {
		kp.mu.Lock()
		ks, ok := kp.keys[key]
		var victim *PooledObject
		if ok {
			if v := ks.idle.PollFirst(); v != nil {
				victim = v.(*PooledObject)
				kp.totalIdle--
			}
		}
		kp.mu.Unlock()
		if victim == nil {
			return
		}
		kp.destroyUnlocked(key, victim)
	}
}

// Close destroys every idle entry across every key, stops the evictor,
// and fails future Borrow calls. Idempotent.
func (kp *KeyedObjectPool) Close() {
	kp.mu.Lock()
	if kp.closed {
		kp.mu.Unlock()
		return
	}
	kp.closed = true
	kp.mu.Unlock()

	kp.stopEvictor()
	kp.Clear()

	kp.mu.Lock()
	kp.cond.Broadcast()
	kp.mu.Unlock()
}

// StartEvictor (re)starts the evictor with the current
// TimeBetweenEvictionRunsMillis, used after a config change.
func (kp *KeyedObjectPool) StartEvictor() {
	kp.evictLock.Lock()
	defer kp.evictLock.Unlock()
	if kp.evictionJob != nil {
		sharedEvictor.Unregister(kp.evictionJob)
		kp.evictionJob = nil
	}
	kp.mu.Lock()
	kp.evictKeyIdx = 0
	kp.evictInnerIter = nil
	kp.evictInnerKey = nil
	kp.mu.Unlock()
	period := kp.Config.TimeBetweenEvictionRunsMillis
	if period > 0 {
		kp.evictionJob = sharedEvictor.Register(time.Duration(period)*time.Millisecond, kp.runEvictionTick)
	}
}

func (kp *KeyedObjectPool) stopEvictor() {
	kp.evictLock.Lock()
	defer kp.evictLock.Unlock()
	if kp.evictionJob != nil {
		sharedEvictor.Unregister(kp.evictionJob)
		kp.evictionJob = nil
	}
}

func (kp *KeyedObjectPool) runEvictionTick() {
	kp.evict()
	kp.ensureMinIdle()
	if ac := kp.AbandonedConfig; ac != nil && ac.RemoveAbandonedOnMaintenance {
		kp.removeAbandoned(ac)
	}
}

func (kp *KeyedObjectPool) getEvictionPolicy() EvictionPolicy {
	policy := GetEvictionPolicy(kp.Config.EvictionPolicyName)
	if policy == nil {
		policy = GetEvictionPolicy(DefaultEvictionPolicyName)
	}
	return policy
}

// getNumTests implements the keyed variant of spec §4.3 step 1, sized
// against the total idle count across every key.
func (kp *KeyedObjectPool) getNumTests() int {
	n := kp.Config.NumTestsPerEvictionRun
	idle := kp.GetNumTotalIdle()
	if n >= 0 {
		if n < idle {
			return n
		}
		return idle
	}
	return int(math.Ceil(float64(idle) / math.Abs(float64(n))))
}

func (kp *KeyedObjectPool) evictionIteratorFor(ks *keyState) collections.Iterator {
	if kp.Config.Lifo {
		return ks.idle.DescendingIterator()
	}
	return ks.idle.Iterator()
}

// advanceOuterCursorLocked moves the outer key cursor (spec §4.3: "an
// outer cursor over the key list") to the next key that currently has
// idle entries, opening a fresh inner cursor over that key's idle set.
// Returns false once it has walked every key without finding one with
// idle entries. Caller must hold kp.mu.
func (kp *KeyedObjectPool) advanceOuterCursorLocked() bool {
	n := len(kp.keyOrder)
	for i := 0; i < n; i++ {
		if len(kp.keyOrder) == 0 {
			return false
		}
		if kp.evictKeyIdx >= len(kp.keyOrder) {
			kp.evictKeyIdx = 0
		}
		key := kp.keyOrder[kp.evictKeyIdx]
		kp.evictKeyIdx++
		ks, ok := kp.keys[key]
		if !ok || ks.idle.Size() == 0 {
			continue
		}
		kp.evictInnerKey = key
		kp.evictInnerIter = kp.evictionIteratorFor(ks)
		if kp.evictInnerIter.HasNext() {
			return true
		}
	}
	return false
}

// evict runs one evictor tick: the outer cursor walks the key list, the
// inner cursor walks each key's idle set, and each unit of the tick's
// budget either tests one idle entry or advances the outer cursor to
// the next key (spec §4.3).
func (kp *KeyedObjectPool) evict() {
	kp.evictLock.Lock()
	defer kp.evictLock.Unlock()

	policy := kp.getEvictionPolicy()
	evictionConfig := &EvictionConfig{
		IdleEvictTime:     kp.Config.MinEvictableIdleTimeMillis,
		IdleSoftEvictTime: kp.Config.SoftMinEvictableIdleTimeMillis,
		MinIdle:           kp.Config.MinIdle,
	}

	for i, n := 0, kp.getNumTests(); i < n; i++ {
		kp.mu.Lock()
		if kp.evictInnerIter == nil || !kp.evictInnerIter.HasNext() {
			if !kp.advanceOuterCursorLocked() {
				kp.mu.Unlock()
				return
			}
		}
		v := kp.evictInnerIter.Next()
		key := kp.evictInnerKey
		ks, ok := kp.keys[key]
		underTest, isPooled := v.(*PooledObject)
		if !ok || !isPooled || underTest == nil {
			kp.mu.Unlock()
			i--
			continue
		}
		if !underTest.StartEvictionTest() {
			// Borrowed out from under the evictor; don't charge this
			// against the tick's budget.
			kp.mu.Unlock()
			i--
			continue
		}
		// Hold the entry out of its key's idle set for the duration of
		// the test; it is re-added below if it survives.
		ks.idle.RemoveFirstOccurrence(underTest)
		kp.totalIdle--
		idleCountForKey := ks.idle.Size()
		kp.mu.Unlock()

		evictFlag := policy.Evict(evictionConfig, underTest, idleCountForKey)
		if !evictFlag && kp.Config.TestWhileIdle {
			if err := kp.factory.ActivateObject(key, underTest); err != nil {
				evictFlag = true
			} else if !kp.safeValidate(key, underTest) {
				evictFlag = true
			} else if err := kp.factory.PassivateObject(key, underTest); err != nil {
				evictFlag = true
			}
		}

		if evictFlag {
			underTest.Invalidate()
			if err := kp.factory.DestroyObject(key, underTest); err != nil {
				kp.logger.Debug().Err(err).Interface("key", key).Msg("factory DestroyObject failed, swallowed")
			}
			kp.mu.Lock()
			kp.finalizeDestroyLocked(key, underTest)
			kp.destroyedByEvictorCount.IncrementAndGet()
			kp.cond.Broadcast()
			kp.mu.Unlock()
			continue
		}

		kp.mu.Lock()
		if ks2, ok2 := kp.keys[key]; ok2 {
			if underTest.EndEvictionTest(ks2.idle) {
				kp.totalIdle++
			}
			kp.cond.Broadcast()
			kp.mu.Unlock()
			continue
		}
		kp.mu.Unlock()

		// The key's row vanished mid-test (a concurrent Clear/ClearKey);
		// there is nowhere left to put this entry back, so destroy it
		// rather than leak it.
		underTest.Invalidate()
		if err := kp.factory.DestroyObject(key, underTest); err != nil {
			kp.logger.Debug().Err(err).Interface("key", key).Msg("factory DestroyObject failed, swallowed")
		}
		kp.mu.Lock()
		delete(kp.values, underTest.Object)
		kp.destroyedCount.IncrementAndGet()
		kp.createCount.DecrementAndGet()
		kp.cond.Broadcast()
		kp.mu.Unlock()
	}
}

func (kp *KeyedObjectPool) getMinIdle() int {
	maxIdle := kp.Config.MaxIdle
	if kp.Config.MinIdle > maxIdle && maxIdle >= 0 {
		return maxIdle
	}
	return kp.Config.MinIdle
}

// ensureMinIdle tops every known key up to MinIdle, the keyed
// counterpart of ObjectPool.ensureMinIdle.
func (kp *KeyedObjectPool) ensureMinIdle() {
	minIdle := kp.getMinIdle()
	if minIdle < 1 {
		return
	}
	kp.mu.Lock()
	keys := append([]interface{}(nil), kp.keyOrder...)
	kp.mu.Unlock()
	for _, key := range keys {
		kp.ensureKeyMinIdleLocked(key, minIdle)
	}
}

func (kp *KeyedObjectPool) ensureKeyMinIdleLocked(key interface{}, minIdle int) {
	for {
		kp.mu.Lock()
		if kp.closed {
			kp.mu.Unlock()
			return
		}
		ks, ok := kp.keys[key]
		if !ok || ks.idle.Size() >= minIdle {
			kp.mu.Unlock()
			return
		}
		if kp.Config.MaxTotal > 0 && ks.active+ks.idle.Size() >= kp.Config.MaxTotal {
			kp.mu.Unlock()
			return
		}
		if kp.Config.MaxTotalPool > 0 && kp.totalActive+kp.totalIdle >= kp.Config.MaxTotalPool {
			kp.mu.Unlock()
			return
		}
		kp.mu.Unlock()

		if err := kp.addIdleEntry(key); err != nil {
			// Factory can't make more right now; no reason to think the
			// next attempt will fare better. Give up until next tick.
			return
		}
	}
}
