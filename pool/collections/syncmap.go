package collections

import "sync"

// SyncIdentityMap tracks every entry a pool currently owns (destroyed
// entries are removed), keyed by the resource value itself, so ReturnObject/InvalidateObject can map an
// opaque value back to its wrapping PooledObject.
type SyncIdentityMap struct {
	mu sync.RWMutex
	m  map[interface{}]interface{}
}

func NewSyncMap() *SyncIdentityMap {
	return &SyncIdentityMap{m: make(map[interface{}]interface{})}
}

func (s *SyncIdentityMap) Put(k, v interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[k] = v
}

func (s *SyncIdentityMap) Get(k interface{}) interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.m[k]
}

func (s *SyncIdentityMap) Remove(k interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.m, k)
}

func (s *SyncIdentityMap) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.m)
}

func (s *SyncIdentityMap) Values() []interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]interface{}, 0, len(s.m))
	for _, v := range s.m {
		out = append(out, v)
	}
	return out
}
