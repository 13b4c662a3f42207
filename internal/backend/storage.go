package backend

import (
	"sync"

	"github.com/born-ml/tfcore/internal/tensor"
)

// DataStorage maps DataIDs to backend specific payloads. Looking up an id
// the storage does not hold asks the DataMover to migrate it first, so a
// kernel can consume tensors created on any backend.
type DataStorage[T any] struct {
	mu      sync.RWMutex
	data    map[tensor.DataID]T
	backend KernelBackend
	mover   DataMover
}

// NewDataStorage creates storage for backend b.
func NewDataStorage[T any](b KernelBackend, mover DataMover) *DataStorage[T] {
	return &DataStorage[T]{
		data:    make(map[tensor.DataID]T),
		backend: b,
		mover:   mover,
	}
}

// Get returns the payload, migrating it from its owner if needed.
func (s *DataStorage[T]) Get(id tensor.DataID) (T, bool) {
	s.mu.RLock()
	v, ok := s.data[id]
	s.mu.RUnlock()
	if ok || s.mover == nil {
		return v, ok
	}

	s.mover.MoveData(s.backend, id)

	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok = s.data[id]
	return v, ok
}

// Peek returns the payload only when it is held locally.
func (s *DataStorage[T]) Peek(id tensor.DataID) (T, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[id]
	return v, ok
}

// Set stores the payload.
func (s *DataStorage[T]) Set(id tensor.DataID, v T) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[id] = v
}

// Has reports whether the id is held locally. It never migrates.
func (s *DataStorage[T]) Has(id tensor.DataID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.data[id]
	return ok
}

// Delete removes the payload.
func (s *DataStorage[T]) Delete(id tensor.DataID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data[id]; !ok {
		return false
	}
	delete(s.data, id)
	return true
}

// Update applies f to the stored payload in place.
func (s *DataStorage[T]) Update(id tensor.DataID, f func(*T)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.data[id]
	if !ok {
		return false
	}
	f(&v)
	s.data[id] = v
	return true
}

// NumDataIDs returns the number of stored payloads.
func (s *DataStorage[T]) NumDataIDs() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

// Range calls f for each stored payload.
func (s *DataStorage[T]) Range(f func(id tensor.DataID, v T)) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for id, v := range s.data {
		f(id, v)
	}
}
