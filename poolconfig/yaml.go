// Package poolconfig loads pool.ObjectPoolConfig / pool.KeyedObjectPoolConfig
// from YAML, keeping file I/O and parsing out of the pool package itself.
package poolconfig

import (
	"os"

	"gopkg.in/yaml.v3"

	"github.com/liangfflia/objectpool/pool"
)

// FileConfig is the on-disk shape poolctl and other hosting programs
// read: a single-key pool section, a keyed-pool section, or both.
type FileConfig struct {
	Pool      *PoolSection      `yaml:"pool"`
	KeyedPool *KeyedPoolSection `yaml:"keyedPool"`
	Abandoned *AbandonedSection `yaml:"abandoned"`
}

// PoolSection mirrors pool.ObjectPoolConfig's tunables, with
// WhenExhausted and EvictionPolicyName spelled as strings so the file
// stays human-writable; ToObjectPoolConfig converts and validates them.
// The boolean fields are pointers so an omitted YAML key can be told
// apart from an explicit `false` — both unmarshal a plain bool to the
// same zero value, which would otherwise silently override defaults
// like Lifo's true.
type PoolSection struct {
	MaxTotal                       int    `yaml:"maxTotal"`
	MaxIdle                        int    `yaml:"maxIdle"`
	MinIdle                        int    `yaml:"minIdle"`
	WhenExhausted                  string `yaml:"whenExhausted"`
	MaxWaitMillis                  int64  `yaml:"maxWaitMillis"`
	TestOnBorrow                   *bool  `yaml:"testOnBorrow"`
	TestOnReturn                   *bool  `yaml:"testOnReturn"`
	TestOnCreate                   *bool  `yaml:"testOnCreate"`
	TestWhileIdle                  *bool  `yaml:"testWhileIdle"`
	TimeBetweenEvictionRunsMillis  int64  `yaml:"timeBetweenEvictionRunsMillis"`
	NumTestsPerEvictionRun         int    `yaml:"numTestsPerEvictionRun"`
	MinEvictableIdleTimeMillis     int64  `yaml:"minEvictableIdleTimeMillis"`
	SoftMinEvictableIdleTimeMillis int64  `yaml:"softMinEvictableIdleTimeMillis"`
	EvictionPolicyName             string `yaml:"evictionPolicyName"`
	Lifo                           *bool  `yaml:"lifo"`
}

// KeyedPoolSection is PoolSection's keyed counterpart, adding the
// cross-key MaxTotalPool cap.
type KeyedPoolSection struct {
	PoolSection  `yaml:",inline"`
	MaxTotalPool int `yaml:"maxTotalPool"`
}

// AbandonedSection mirrors pool.AbandonedConfig.
type AbandonedSection struct {
	RemoveAbandonedOnBorrow      bool `yaml:"removeAbandonedOnBorrow"`
	RemoveAbandonedOnMaintenance bool `yaml:"removeAbandonedOnMaintenance"`
	RemoveAbandonedTimeout       int  `yaml:"removeAbandonedTimeoutSeconds"`
	LogAbandoned                 bool `yaml:"logAbandoned"`
}

// LoadFile reads and parses path into a FileConfig without converting or
// validating its contents yet.
func LoadFile(path string) (*FileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var fc FileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, pool.NewBadConfigErr("invalid config YAML: " + err.Error())
	}
	return &fc, nil
}

// ToObjectPoolConfig converts and validates s into a pool.ObjectPoolConfig,
// starting from pool.NewDefaultPoolConfig() so unset fields keep sane
// defaults rather than zero values.
func ToObjectPoolConfig(s *PoolSection) (*pool.ObjectPoolConfig, error) {
	cfg := pool.NewDefaultPoolConfig()
	if s == nil {
		return cfg, nil
	}
	if s.MaxTotal != 0 {
		cfg.MaxTotal = s.MaxTotal
	}
	if s.MaxIdle != 0 {
		cfg.MaxIdle = s.MaxIdle
	}
	cfg.MinIdle = s.MinIdle
	if s.WhenExhausted != "" {
		action, err := pool.ParseWhenExhausted(s.WhenExhausted)
		if err != nil {
			return nil, err
		}
		cfg.WhenExhausted = action
	}
	if s.MaxWaitMillis != 0 {
		cfg.MaxWaitMillis = s.MaxWaitMillis
	}
	if s.TestOnBorrow != nil {
		cfg.TestOnBorrow = *s.TestOnBorrow
	}
	if s.TestOnReturn != nil {
		cfg.TestOnReturn = *s.TestOnReturn
	}
	if s.TestOnCreate != nil {
		cfg.TestOnCreate = *s.TestOnCreate
	}
	if s.TestWhileIdle != nil {
		cfg.TestWhileIdle = *s.TestWhileIdle
	}
	if s.TimeBetweenEvictionRunsMillis != 0 {
		cfg.TimeBetweenEvictionRunsMillis = s.TimeBetweenEvictionRunsMillis
	}
	if s.NumTestsPerEvictionRun != 0 {
		cfg.NumTestsPerEvictionRun = s.NumTestsPerEvictionRun
	}
	if s.MinEvictableIdleTimeMillis != 0 {
		cfg.MinEvictableIdleTimeMillis = s.MinEvictableIdleTimeMillis
	}
	if s.SoftMinEvictableIdleTimeMillis != 0 {
		cfg.SoftMinEvictableIdleTimeMillis = s.SoftMinEvictableIdleTimeMillis
	}
	if s.EvictionPolicyName != "" {
		if pool.GetEvictionPolicy(s.EvictionPolicyName) == nil {
			return nil, pool.NewBadConfigErr("unknown evictionPolicyName: " + s.EvictionPolicyName)
		}
		cfg.EvictionPolicyName = s.EvictionPolicyName
	}
	if s.Lifo != nil {
		cfg.Lifo = *s.Lifo
	}
	return cfg, nil
}

// ToKeyedObjectPoolConfig converts and validates s into a
// pool.KeyedObjectPoolConfig.
func ToKeyedObjectPoolConfig(s *KeyedPoolSection) (*pool.KeyedObjectPoolConfig, error) {
	cfg := pool.NewDefaultKeyedPoolConfig()
	if s == nil {
		return cfg, nil
	}
	base, err := ToObjectPoolConfig(&s.PoolSection)
	if err != nil {
		return nil, err
	}
	cfg.MaxTotal = base.MaxTotal
	cfg.MaxIdle = base.MaxIdle
	cfg.MinIdle = base.MinIdle
	cfg.WhenExhausted = base.WhenExhausted
	cfg.MaxWaitMillis = base.MaxWaitMillis
	cfg.TestOnBorrow = base.TestOnBorrow
	cfg.TestOnReturn = base.TestOnReturn
	cfg.TestOnCreate = base.TestOnCreate
	cfg.TestWhileIdle = base.TestWhileIdle
	cfg.TimeBetweenEvictionRunsMillis = base.TimeBetweenEvictionRunsMillis
	cfg.NumTestsPerEvictionRun = base.NumTestsPerEvictionRun
	cfg.MinEvictableIdleTimeMillis = base.MinEvictableIdleTimeMillis
	cfg.SoftMinEvictableIdleTimeMillis = base.SoftMinEvictableIdleTimeMillis
	cfg.EvictionPolicyName = base.EvictionPolicyName
	cfg.Lifo = base.Lifo
	if s.MaxTotalPool != 0 {
		cfg.MaxTotalPool = s.MaxTotalPool
	}
	return cfg, nil
}

// ToAbandonedConfig converts s, or returns nil if s is nil (meaning
// abandoned-object reclamation stays disabled).
func ToAbandonedConfig(s *AbandonedSection) *pool.AbandonedConfig {
	if s == nil {
		return nil
	}
	return &pool.AbandonedConfig{
		RemoveAbandonedOnBorrow:      s.RemoveAbandonedOnBorrow,
		RemoveAbandonedOnMaintenance: s.RemoveAbandonedOnMaintenance,
		RemoveAbandonedTimeout:       s.RemoveAbandonedTimeout,
		LogAbandoned:                 s.LogAbandoned,
	}
}
