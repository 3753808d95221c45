package pool

import (
	"sync"
	"time"
)

// evictorResolution is the shared scheduler's tick granularity. Every
// registered pool's evictPeriodMs is checked against this clock rather
// than each pool owning its own OS timer, per the "global mutable
// singleton" design note (spec §9): one scheduling resource serves every
// live pool.
const evictorResolution = 25 * time.Millisecond

type evictionJob struct {
	period  time.Duration
	run     func()
	nextRun time.Time
}

// evictorService is the process-wide refcounted scheduler (C5). It
// starts its ticker goroutine on first Register and tears it down once
// the last pool Unregisters, rather than leaking a goroutine per pool.
type evictorService struct {
	mu     sync.Mutex
	jobs   map[*evictionJob]struct{}
	ticker *time.Ticker
	stopCh chan struct{}
}

var sharedEvictor = &evictorService{jobs: make(map[*evictionJob]struct{})}

// Register schedules run to be invoked roughly every period. Returns a
// handle to pass to Unregister.
func (s *evictorService) Register(period time.Duration, run func()) *evictionJob {
	job := &evictionJob{period: period, run: run, nextRun: time.Now().Add(period)}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job] = struct{}{}
	if s.ticker == nil {
		s.startLocked()
	}
	return job
}

// Unregister cancels a previously registered job. Idempotent.
func (s *evictorService) Unregister(job *evictionJob) {
	if job == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[job]; !ok {
		return
	}
	delete(s.jobs, job)
	if len(s.jobs) == 0 && s.ticker != nil {
		s.ticker.Stop()
		s.ticker = nil
		close(s.stopCh)
		s.stopCh = nil
	}
}

func (s *evictorService) startLocked() {
	s.ticker = time.NewTicker(evictorResolution)
	stopCh := make(chan struct{})
	s.stopCh = stopCh
	ticker := s.ticker
	go func() {
		for {
			select {
			case <-stopCh:
				return
			case now := <-ticker.C:
				s.tick(now)
			}
		}
	}()
}

func (s *evictorService) tick(now time.Time) {
	s.mu.Lock()
	var due []*evictionJob
	for job := range s.jobs {
		if !now.Before(job.nextRun) {
			job.nextRun = now.Add(job.period)
			due = append(due, job)
		}
	}
	s.mu.Unlock()
	for _, job := range due {
		job.run()
	}
}
