package poolconfig

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/liangfflia/objectpool/pool"
)

func boolPtr(b bool) *bool { return &b }

func writeTempConfig(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "pool.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoadFileAndConvertObjectPoolConfig(t *testing.T) {
	path := writeTempConfig(t, `
pool:
  maxTotal: 16
  maxIdle: 4
  whenExhausted: GROW
  maxWaitMillis: 500
  testOnBorrow: true
`)
	fc, err := LoadFile(path)
	require.NoError(t, err)
	require.NotNil(t, fc.Pool)

	cfg, err := ToObjectPoolConfig(fc.Pool)
	require.NoError(t, err)
	assert.Equal(t, 16, cfg.MaxTotal)
	assert.Equal(t, 4, cfg.MaxIdle)
	assert.Equal(t, pool.WhenExhaustedGrow, cfg.WhenExhausted)
	assert.Equal(t, int64(500), cfg.MaxWaitMillis)
	assert.True(t, cfg.TestOnBorrow)
	// Untouched fields keep the documented defaults.
	assert.Equal(t, 0, cfg.MinIdle)
	assert.True(t, cfg.Lifo)
}

func TestToObjectPoolConfigLeavesLifoDefaultWhenOmitted(t *testing.T) {
	cfg, err := ToObjectPoolConfig(&PoolSection{MaxTotal: 4})
	require.NoError(t, err)
	assert.True(t, cfg.Lifo, "an omitted lifo key must keep the default, not fall back to false")
}

func TestToObjectPoolConfigHonorsExplicitLifoFalse(t *testing.T) {
	cfg, err := ToObjectPoolConfig(&PoolSection{Lifo: boolPtr(false)})
	require.NoError(t, err)
	assert.False(t, cfg.Lifo)
}

func TestToObjectPoolConfigRejectsUnknownWhenExhausted(t *testing.T) {
	_, err := ToObjectPoolConfig(&PoolSection{WhenExhausted: "SOMETHING"})
	require.Error(t, err)
	assert.IsType(t, &pool.BadConfigErr{}, err)
}

func TestToObjectPoolConfigRejectsUnknownEvictionPolicy(t *testing.T) {
	_, err := ToObjectPoolConfig(&PoolSection{EvictionPolicyName: "nope"})
	require.Error(t, err)
	assert.IsType(t, &pool.BadConfigErr{}, err)
}

func TestToKeyedObjectPoolConfigAppliesMaxTotalPool(t *testing.T) {
	cfg, err := ToKeyedObjectPoolConfig(&KeyedPoolSection{
		PoolSection:  PoolSection{MaxTotal: 2},
		MaxTotalPool: 10,
	})
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.MaxTotal)
	assert.Equal(t, 10, cfg.MaxTotalPool)
}

func TestLoadFileMissingReturnsError(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestToAbandonedConfigNilWhenSectionAbsent(t *testing.T) {
	assert.Nil(t, ToAbandonedConfig(nil))
}

func TestToAbandonedConfigCopiesFields(t *testing.T) {
	ac := ToAbandonedConfig(&AbandonedSection{
		RemoveAbandonedOnBorrow: true,
		RemoveAbandonedTimeout:  60,
	})
	require.NotNil(t, ac)
	assert.True(t, ac.RemoveAbandonedOnBorrow)
	assert.Equal(t, 60, ac.RemoveAbandonedTimeout)
}
