package pool

// Factory is the capability an ObjectPool consumes to create, prepare,
// check, and release the resources it manages (spec §6). It is modeled
// as a plain interface rather than the teacher's base-class hierarchy,
// per the "inheritance -> variants + capability" design note: a pool
// depends only on this shape, never on a concrete resource type.
type Factory interface {
	// MakeObject constructs a brand-new PooledObject wrapping a freshly
	// created resource.
	MakeObject() (*PooledObject, error)
	// ActivateObject prepares a pooled instance just before it is handed
	// to a borrower.
	ActivateObject(p *PooledObject) error
	// ValidateObject is a quick liveness check. It must not panic in the
	// documented contract; a panicking factory is still guarded against
	// by the pool at the call site (validate == false on recover).
	ValidateObject(p *PooledObject) bool
	// PassivateObject resets state before an entry returns to idle.
	PassivateObject(p *PooledObject) error
	// DestroyObject releases the underlying resource. Pool call sites
	// invoke this best-effort and mostly swallow its error (spec §7).
	DestroyObject(p *PooledObject) error
}

// KeyedFactory is the per-key counterpart consumed by KeyedObjectPool;
// every operation carries the opaque key it was borrowed/returned under.
type KeyedFactory interface {
	MakeObject(key interface{}) (*PooledObject, error)
	ActivateObject(key interface{}, p *PooledObject) error
	ValidateObject(key interface{}, p *PooledObject) bool
	PassivateObject(key interface{}, p *PooledObject) error
	DestroyObject(key interface{}, p *PooledObject) error
}

// BaseFactory is a minimal Factory that no-ops Activate/Passivate/
// Destroy and always validates true, matching spec §6's "minimal
// implementation" allowance. Embed it and override MakeObject (the one
// mandatory operation) to get a usable factory quickly.
type BaseFactory struct{}

func (BaseFactory) ActivateObject(*PooledObject) error  { return nil }
func (BaseFactory) ValidateObject(*PooledObject) bool   { return true }
func (BaseFactory) PassivateObject(*PooledObject) error { return nil }
func (BaseFactory) DestroyObject(*PooledObject) error   { return nil }

// BaseKeyedFactory is the keyed counterpart of BaseFactory.
type BaseKeyedFactory struct{}

func (BaseKeyedFactory) ActivateObject(interface{}, *PooledObject) error  { return nil }
func (BaseKeyedFactory) ValidateObject(interface{}, *PooledObject) bool  { return true }
func (BaseKeyedFactory) PassivateObject(interface{}, *PooledObject) error { return nil }
func (BaseKeyedFactory) DestroyObject(interface{}, *PooledObject) error  { return nil }
