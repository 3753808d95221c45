package poolmetrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"

	"github.com/liangfflia/objectpool/pool"
)

type fakeFactory struct{ n int }

func (f *fakeFactory) MakeObject() (*pool.PooledObject, error) {
	f.n++
	return pool.NewPooledObject(f.n), nil
}
func (f *fakeFactory) ActivateObject(*pool.PooledObject) error  { return nil }
func (f *fakeFactory) ValidateObject(*pool.PooledObject) bool   { return true }
func (f *fakeFactory) PassivateObject(*pool.PooledObject) error { return nil }
func (f *fakeFactory) DestroyObject(*pool.PooledObject) error   { return nil }

func gaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, g.Write(&m))
	return m.GetGauge().GetValue()
}

func TestObjectPoolCollectorSampleReflectsPoolState(t *testing.T) {
	cfg := pool.NewDefaultPoolConfig()
	cfg.MaxTotal = 4
	cfg.TimeBetweenEvictionRunsMillis = -1
	p := pool.NewObjectPool(&fakeFactory{}, cfg)
	defer p.Close()

	require.NoError(t, p.AddObject())
	require.NoError(t, p.AddObject())
	v, err := p.BorrowObject()
	require.NoError(t, err)

	c := NewObjectPoolCollector("demo", p)
	reg := prometheus.NewRegistry()
	require.NoError(t, c.Register(reg))
	c.Sample()

	require.Equal(t, float64(1), gaugeValue(t, c.idle))
	require.Equal(t, float64(1), gaugeValue(t, c.active))

	require.NoError(t, p.ReturnObject(v))
}
