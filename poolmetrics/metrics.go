// Package poolmetrics exposes a pool.ObjectPool or pool.KeyedObjectPool's
// existing getters as Prometheus collectors. It never reaches into pool
// internals, only the public getter surface, so instrumenting a pool
// never changes its behavior.
package poolmetrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/liangfflia/objectpool/pool"
)

// ObjectPoolCollector polls an *pool.ObjectPool on an interval and
// republishes its counters/gauges as Prometheus metrics.
type ObjectPoolCollector struct {
	name string
	p    *pool.ObjectPool

	idle      prometheus.Gauge
	active    prometheus.Gauge
	created   prometheus.Counter
	destroyed prometheus.Counter
	evicted   prometheus.Counter
	invalid   prometheus.Counter

	lastCreated, lastDestroyed int
	lastEvicted, lastInvalid   int
}

// NewObjectPoolCollector builds a collector labeled by name. Call
// Register to attach it to a prometheus.Registerer, then Run in a
// goroutine to keep the gauges/counters current.
func NewObjectPoolCollector(name string, p *pool.ObjectPool) *ObjectPoolCollector {
	labels := prometheus.Labels{"pool": name}
	return &ObjectPoolCollector{
		name: name,
		p:    p,
		idle: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pool_idle_objects", Help: "Current idle entry count.", ConstLabels: labels,
		}),
		active: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pool_active_objects", Help: "Current allocated entry count.", ConstLabels: labels,
		}),
		created: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pool_created_total", Help: "Entries ever created.", ConstLabels: labels,
		}),
		destroyed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pool_destroyed_total", Help: "Entries ever destroyed.", ConstLabels: labels,
		}),
		evicted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pool_destroyed_by_evictor_total", Help: "Entries destroyed by the evictor.", ConstLabels: labels,
		}),
		invalid: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pool_destroyed_by_validation_total", Help: "Entries destroyed for failing validation on borrow.", ConstLabels: labels,
		}),
	}
}

// Register attaches every metric to reg.
func (c *ObjectPoolCollector) Register(reg prometheus.Registerer) error {
	for _, m := range []prometheus.Collector{c.idle, c.active, c.created, c.destroyed, c.evicted, c.invalid} {
		if err := reg.Register(m); err != nil {
			return err
		}
	}
	return nil
}

// Sample takes one reading of the pool's getters and updates the
// collectors. Counters only ever move forward, so Sample tracks the
// previous reading and adds the delta.
func (c *ObjectPoolCollector) Sample() {
	c.idle.Set(float64(c.p.GetNumIdle()))
	c.active.Set(float64(c.p.GetNumActive()))

	created := c.p.GetCreatedCount()
	c.created.Add(float64(created - c.lastCreated))
	c.lastCreated = created

	destroyed := c.p.GetDestroyedCount()
	c.destroyed.Add(float64(destroyed - c.lastDestroyed))
	c.lastDestroyed = destroyed

	evicted := c.p.GetDestroyedByEvictorCount()
	c.evicted.Add(float64(evicted - c.lastEvicted))
	c.lastEvicted = evicted

	invalid := c.p.GetDestroyedByBorrowValidationCount()
	c.invalid.Add(float64(invalid - c.lastInvalid))
	c.lastInvalid = invalid
}

// Run samples on every tick of interval until ctx is done.
func (c *ObjectPoolCollector) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Sample()
		}
	}
}

// BorrowWaitHistogram wraps BorrowObject so callers can observe wait
// latency without the pool package itself depending on Prometheus.
type BorrowWaitHistogram struct {
	hist prometheus.Histogram
}

// NewBorrowWaitHistogram builds the pool_borrow_wait_seconds histogram
// for name.
func NewBorrowWaitHistogram(name string) *BorrowWaitHistogram {
	return &BorrowWaitHistogram{
		hist: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:        "pool_borrow_wait_seconds",
			Help:        "Time BorrowObject spent waiting for an idle entry or a newly created one.",
			ConstLabels: prometheus.Labels{"pool": name},
			Buckets:     prometheus.DefBuckets,
		}),
	}
}

// Register attaches the histogram to reg.
func (h *BorrowWaitHistogram) Register(reg prometheus.Registerer) error {
	return reg.Register(h.hist)
}

// Observe wraps a BorrowObject call, recording how long it took.
func (h *BorrowWaitHistogram) Observe(borrow func() (interface{}, error)) (interface{}, error) {
	start := time.Now()
	v, err := borrow()
	h.hist.Observe(time.Since(start).Seconds())
	return v, err
}

// KeyedObjectPoolCollector is ObjectPoolCollector's counterpart for
// KeyedObjectPool, labeling idle/active gauges per key in addition to
// pool name.
type KeyedObjectPoolCollector struct {
	name string
	kp   *pool.KeyedObjectPool
	reg  prometheus.Registerer

	idle   *prometheus.GaugeVec
	active *prometheus.GaugeVec

	created, destroyed, evicted int
	createdCnt, destroyedCnt, evictedCnt prometheus.Counter
}

// NewKeyedObjectPoolCollector builds a collector labeled by name.
func NewKeyedObjectPoolCollector(name string, kp *pool.KeyedObjectPool) *KeyedObjectPoolCollector {
	labels := prometheus.Labels{"pool": name}
	return &KeyedObjectPoolCollector{
		name: name,
		kp:   kp,
		idle: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "pool_idle_objects", Help: "Current idle entry count per key.", ConstLabels: labels,
		}, []string{"key"}),
		active: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "pool_active_objects", Help: "Current allocated entry count per key.", ConstLabels: labels,
		}, []string{"key"}),
		createdCnt: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pool_created_total", Help: "Entries ever created.", ConstLabels: labels,
		}),
		destroyedCnt: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pool_destroyed_total", Help: "Entries ever destroyed.", ConstLabels: labels,
		}),
		evictedCnt: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pool_destroyed_by_evictor_total", Help: "Entries destroyed by the evictor.", ConstLabels: labels,
		}),
	}
}

// Register attaches every metric to reg.
func (c *KeyedObjectPoolCollector) Register(reg prometheus.Registerer) error {
	c.reg = reg
	for _, m := range []prometheus.Collector{c.idle, c.active, c.createdCnt, c.destroyedCnt, c.evictedCnt} {
		if err := reg.Register(m); err != nil {
			return err
		}
	}
	return nil
}

// Sample takes one reading for each key in keys plus the pool-wide
// counters; keys the caller does not pass are not sampled.
func (c *KeyedObjectPoolCollector) Sample(keys []string) {
	for _, key := range keys {
		c.idle.WithLabelValues(key).Set(float64(c.kp.GetNumIdle(key)))
		c.active.WithLabelValues(key).Set(float64(c.kp.GetNumActive(key)))
	}

	created := c.kp.GetCreatedCount()
	c.createdCnt.Add(float64(created - c.created))
	c.created = created

	destroyed := c.kp.GetDestroyedCount()
	c.destroyedCnt.Add(float64(destroyed - c.destroyed))
	c.destroyed = destroyed

	evicted := c.kp.GetDestroyedByEvictorCount()
	c.evictedCnt.Add(float64(evicted - c.evicted))
	c.evicted = evicted
}
