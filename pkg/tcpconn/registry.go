package tcpconn

import (
	"fmt"
	"reflect"
	"sync"
)

// registry is a mutex guarded list used for listeners and live connections.
// The lock is only held to copy or mutate the list, never while calling out,
// so callbacks may re-enter the owning component.
type registry[T comparable] struct {
	mu    sync.Mutex
	items []T
}

// add appends item. It panics if item holds a value that cannot be compared,
// since remove would panic on it later.
func (r *registry[T]) add(item T) {
	if v := reflect.ValueOf(item); v.IsValid() && !v.Comparable() {
		panic(fmt.Sprintf("tcpconn: %T is not comparable; register a pointer", item))
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = append(r.items, item)
}

// remove drops the first occurrence of item and reports whether one was found.
func (r *registry[T]) remove(item T) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, it := range r.items {
		if it == item {
			r.items = append(r.items[:i:i], r.items[i+1:]...)
			return true
		}
	}
	return false
}

// snapshot returns a point-in-time copy safe to iterate without the lock.
func (r *registry[T]) snapshot() []T {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.items) == 0 {
		return nil
	}
	out := make([]T, len(r.items))
	copy(out, r.items)
	return out
}

// drain removes and returns every item.
func (r *registry[T]) drain() []T {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.items
	r.items = nil
	return out
}

func (r *registry[T]) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.items)
}
