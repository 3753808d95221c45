package pool

import "sync"

// EvictionConfig is the per-tick parameter bundle passed to an
// EvictionPolicy, ported from the teacher's EvictionConfig.
type EvictionConfig struct {
	IdleEvictTime     int64 // MinEvictableIdleTimeMillis
	IdleSoftEvictTime int64 // SoftMinEvictableIdleTimeMillis
	MinIdle           int
}

// EvictionPolicy decides whether a single idle entry under test should
// be evicted this tick (spec §4.3 step 3b).
type EvictionPolicy interface {
	Evict(config *EvictionConfig, underTest *PooledObject, idleCount int) bool
}

// DefaultEvictionPolicy evicts on age (MinEvictableIdleTimeMillis) and,
// once MinIdle would still be satisfied, also on the shorter
// SoftMinEvictableIdleTimeMillis — the same two-tier policy the teacher
// ports from Apache Commons Pool 2's DefaultEvictionPolicy.
type DefaultEvictionPolicy struct{}

func (DefaultEvictionPolicy) Evict(config *EvictionConfig, underTest *PooledObject, idleCount int) bool {
	if config.IdleEvictTime > 0 && underTest.GetIdleTimeMillis() > config.IdleEvictTime {
		return true
	}
	if config.IdleSoftEvictTime > 0 &&
		underTest.GetIdleTimeMillis() > config.IdleSoftEvictTime &&
		idleCount > config.MinIdle {
		return true
	}
	return false
}

var (
	evictionPolicyMu sync.RWMutex
	evictionPolicies = map[string]EvictionPolicy{
		DefaultEvictionPolicyName: DefaultEvictionPolicy{},
	}
)

// RegisterEvictionPolicy installs a named EvictionPolicy, letting a
// caller plug in a custom policy the way the teacher's
// GetEvictionPolicy(name) registry is designed to be extended.
func RegisterEvictionPolicy(name string, policy EvictionPolicy) {
	evictionPolicyMu.Lock()
	defer evictionPolicyMu.Unlock()
	evictionPolicies[name] = policy
}

// GetEvictionPolicy looks up a registered policy by name, or nil if
// unknown.
func GetEvictionPolicy(name string) EvictionPolicy {
	evictionPolicyMu.RLock()
	defer evictionPolicyMu.RUnlock()
	return evictionPolicies[name]
}
