package pool

// KeyedObjectPoolConfig is ObjectPoolConfig's keyed counterpart: MaxTotal
// here is interpreted per key, and MaxTotalPool additionally bounds the
// sum across all keys (spec §4.2).
type KeyedObjectPoolConfig struct {
	MaxTotal       int // per-key cap
	MaxTotalPool   int // cross-key cap, <=0 = unbounded
	MaxIdle        int
	MinIdle        int
	WhenExhausted  WhenExhaustedAction
	MaxWaitMillis  int64
	TestOnBorrow   bool
	TestOnReturn   bool
	TestOnCreate   bool
	TestWhileIdle  bool

	TimeBetweenEvictionRunsMillis  int64
	NumTestsPerEvictionRun         int
	MinEvictableIdleTimeMillis     int64
	SoftMinEvictableIdleTimeMillis int64
	EvictionPolicyName             string
	Lifo                           bool
}

func NewDefaultKeyedPoolConfig() *KeyedObjectPoolConfig {
	return &KeyedObjectPoolConfig{
		MaxTotal:                       -1,
		MaxTotalPool:                   -1,
		MaxIdle:                        8,
		MinIdle:                        0,
		WhenExhausted:                  WhenExhaustedBlock,
		MaxWaitMillis:                  -1,
		TimeBetweenEvictionRunsMillis:  -1,
		NumTestsPerEvictionRun:         3,
		MinEvictableIdleTimeMillis:     30 * 60 * 1000,
		SoftMinEvictableIdleTimeMillis: -1,
		EvictionPolicyName:             DefaultEvictionPolicyName,
		Lifo:                           true,
	}
}
