package testutil

import (
	"context"
	"sort"
	"sync"

	ierr "github.com/flexprice/invoicer/internal/errors"
)

// FilterFunc is a generic filter function type
type FilterFunc[T any] func(ctx context.Context, item T) bool

// SortFunc is a generic sort function type
type SortFunc[T any] func(i, j T) bool

// CopyFunc returns an independent copy of an item so callers never alias
// what the store holds
type CopyFunc[T any] func(item T) T

// InMemoryStore implements a generic in-memory store
type InMemoryStore[T any] struct {
	mu    sync.RWMutex
	items map[string]T
	copy  CopyFunc[T]
}

// NewInMemoryStore creates a new InMemoryStore. copyFn may be nil for value types.
func NewInMemoryStore[T any](copyFn CopyFunc[T]) *InMemoryStore[T] {
	if copyFn == nil {
		copyFn = func(item T) T { return item }
	}
	return &InMemoryStore[T]{
		items: make(map[string]T),
		copy:  copyFn,
	}
}

// Create adds a new item to the store
func (s *InMemoryStore[T]) Create(ctx context.Context, id string, item T) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.items[id]; exists {
		return ierr.NewError("item already exists").
			WithHintf("An item with id %s already exists", id).
			Mark(ierr.ErrAlreadyExists)
	}

	s.items[id] = s.copy(item)
	return nil
}

// Get retrieves an item by ID
func (s *InMemoryStore[T]) Get(ctx context.Context, id string) (T, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if item, exists := s.items[id]; exists {
		return s.copy(item), nil
	}

	var zero T
	return zero, ierr.NewError("item not found").
		WithHintf("No item with id %s", id).
		Mark(ierr.ErrNotFound)
}

// List retrieves items based on filter
func (s *InMemoryStore[T]) List(ctx context.Context, filterFn FilterFunc[T], sortFn SortFunc[T]) []T {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []T
	for _, item := range s.items {
		if filterFn == nil || filterFn(ctx, item) {
			result = append(result, s.copy(item))
		}
	}

	if sortFn != nil {
		sort.Slice(result, func(i, j int) bool {
			return sortFn(result[i], result[j])
		})
	}
	return result
}

// Update updates an existing item
func (s *InMemoryStore[T]) Update(ctx context.Context, id string, item T) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.items[id]; !exists {
		return ierr.NewError("item not found").
			WithHintf("No item with id %s", id).
			Mark(ierr.ErrNotFound)
	}

	s.items[id] = s.copy(item)
	return nil
}

// Mutate applies fn to the stored item under the write lock
func (s *InMemoryStore[T]) Mutate(ctx context.Context, id string, fn func(item T) (T, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, exists := s.items[id]
	if !exists {
		return ierr.NewError("item not found").
			WithHintf("No item with id %s", id).
			Mark(ierr.ErrNotFound)
	}
	out, err := fn(s.copy(item))
	if err != nil {
		return err
	}
	s.items[id] = out
	return nil
}

// Delete removes an item from the store
func (s *InMemoryStore[T]) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.items[id]; !exists {
		return ierr.NewError("item not found").
			WithHintf("No item with id %s", id).
			Mark(ierr.ErrNotFound)
	}

	delete(s.items, id)
	return nil
}

// Clear removes all items from the store
func (s *InMemoryStore[T]) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = make(map[string]T)
}

// Snapshot captures the store content and returns a function restoring it
func (s *InMemoryStore[T]) Snapshot() func() {
	s.mu.RLock()
	saved := make(map[string]T, len(s.items))
	for id, item := range s.items {
		saved[id] = s.copy(item)
	}
	s.mu.RUnlock()

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.items = saved
	}
}
