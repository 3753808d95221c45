package pool

// WhenExhaustedAction selects the behavior applied when a borrow finds
// the pool at maxActive capacity (spec §4.1).
type WhenExhaustedAction int

const (
	// WhenExhaustedFail fails the borrow immediately with PoolExhausted.
	WhenExhaustedFail WhenExhaustedAction = iota
	// WhenExhaustedBlock suspends the borrower until capacity frees up
	// or maxWaitMs elapses.
	WhenExhaustedBlock
	// WhenExhaustedGrow unconditionally creates a new entry, bypassing
	// maxActive. This is spec.md's addition over the teacher's plain
	// boolean BlockWhenExhausted.
	WhenExhaustedGrow
)

func (w WhenExhaustedAction) String() string {
	switch w {
	case WhenExhaustedFail:
		return "FAIL"
	case WhenExhaustedBlock:
		return "BLOCK"
	case WhenExhaustedGrow:
		return "GROW"
	default:
		return "UNKNOWN"
	}
}

// ParseWhenExhausted maps a config string onto a WhenExhaustedAction,
// failing with BadConfigErr on anything else (spec §7).
func ParseWhenExhausted(s string) (WhenExhaustedAction, error) {
	switch s {
	case "FAIL":
		return WhenExhaustedFail, nil
	case "BLOCK":
		return WhenExhaustedBlock, nil
	case "GROW":
		return WhenExhaustedGrow, nil
	default:
		return 0, NewBadConfigErr("unknown whenExhausted value: " + s)
	}
}

const DefaultEvictionPolicyName = "default"

// ObjectPoolConfig mirrors the teacher's ObjectPoolConfig, renamed
// fields to match spec §4.1's table and extended with WhenExhausted and
// NumTestsPerEvictionRun's negative-ratio semantics.
type ObjectPoolConfig struct {
	MaxTotal                       int
	MaxIdle                        int
	MinIdle                        int
	WhenExhausted                  WhenExhaustedAction
	MaxWaitMillis                  int64
	TestOnBorrow                   bool
	TestOnReturn                   bool
	TestOnCreate                   bool
	TestWhileIdle                  bool
	TimeBetweenEvictionRunsMillis  int64
	NumTestsPerEvictionRun         int
	MinEvictableIdleTimeMillis     int64
	SoftMinEvictableIdleTimeMillis int64
	EvictionPolicyName             string
	Lifo                           bool
}

// NewDefaultPoolConfig matches the teacher's conservative defaults:
// unbounded pool, BLOCK on exhaustion with no wait limit, no evictor.
func NewDefaultPoolConfig() *ObjectPoolConfig {
	return &ObjectPoolConfig{
		MaxTotal:                       -1,
		MaxIdle:                        8,
		MinIdle:                        0,
		WhenExhausted:                  WhenExhaustedBlock,
		MaxWaitMillis:                  -1,
		TestOnBorrow:                   false,
		TestOnReturn:                   false,
		TestOnCreate:                   false,
		TestWhileIdle:                  false,
		TimeBetweenEvictionRunsMillis:  -1,
		NumTestsPerEvictionRun:         3,
		MinEvictableIdleTimeMillis:     30 * 60 * 1000,
		SoftMinEvictableIdleTimeMillis: -1,
		EvictionPolicyName:             DefaultEvictionPolicyName,
		Lifo:                           true,
	}
}

// AbandonedConfig controls the teacher's abandoned-object detection:
// entries allocated for longer than RemoveAbandonedTimeout are treated
// as leaked and invalidated on the pool's behalf.
type AbandonedConfig struct {
	RemoveAbandonedOnBorrow      bool
	RemoveAbandonedOnMaintenance bool
	RemoveAbandonedTimeout       int // seconds
	LogAbandoned                 bool
}
