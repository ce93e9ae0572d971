// Copyright (C) 2025 Michael J. Fromberger. All Rights Reserved.

// Package registry implements a concurrent table mapping class identifiers to
// resolvers that produce call targets.
//
// A Registry is populated at startup and may be mutated at run time. Lookups
// proceed concurrently with each other; mutations exclude all other access.
// Resolvers run outside the lock, so a slow resolver does not block
// registration.
package registry

import (
	"slices"
	"sync"

	"github.com/gamefleet/chainrpc/fault"
	"github.com/gamefleet/chainrpc/value"
)

// A Resolver produces the target for a class given a key value, for example
// an instance ID. A static target ignores its key.
type Resolver[T any] func(key value.Value) (T, error)

// Instance returns a Resolver that always produces target.
func Instance[T any](target T) Resolver[T] {
	return func(value.Value) (T, error) { return target, nil }
}

// Keyed returns a Resolver that converts its key to type K and passes it to
// lookup. A key of the wrong kind is reported as an error.
func Keyed[K, T any](lookup func(K) (T, error)) Resolver[T] {
	return func(key value.Value) (T, error) {
		k, err := value.As[K](key)
		if err != nil {
			var zero T
			return zero, err
		}
		return lookup(k)
	}
}

// A Registry maps class IDs to resolvers. A zero Registry is empty and ready
// for use. A Registry is safe for concurrent use by multiple goroutines.
type Registry[T any] struct {
	μ       sync.RWMutex
	classes map[string]Resolver[T]
}

// New constructs a new empty Registry.
func New[T any]() *Registry[T] { return new(Registry[T]) }

// Register adds a resolver for classID. It reports a
// *fault.DuplicateClassIDError if classID is already registered. It panics
// if r == nil.
func (r *Registry[T]) Register(classID string, res Resolver[T]) error {
	if res == nil {
		panic("registry: nil resolver")
	}
	r.μ.Lock()
	defer r.μ.Unlock()
	if _, ok := r.classes[classID]; ok {
		return &fault.DuplicateClassIDError{ClassID: classID}
	}
	if r.classes == nil {
		r.classes = make(map[string]Resolver[T])
	}
	r.classes[classID] = res
	return nil
}

// Unregister removes classID from r. It is not an error if classID is not
// registered. Calls already resolved through the removed entry are not
// affected.
func (r *Registry[T]) Unregister(classID string) {
	r.μ.Lock()
	defer r.μ.Unlock()
	delete(r.classes, classID)
}

// Resolve finds the resolver for classID and calls it with key. It reports a
// *fault.UnknownTargetError if classID is not registered, or if the resolver
// fails.
func (r *Registry[T]) Resolve(classID string, key value.Value) (T, error) {
	r.μ.RLock()
	res, ok := r.classes[classID]
	r.μ.RUnlock()

	var zero T
	if !ok {
		return zero, &fault.UnknownTargetError{ClassID: classID}
	}
	t, err := res(key)
	if err != nil {
		return zero, &fault.UnknownTargetError{ClassID: classID, Err: err}
	}
	return t, nil
}

// Has reports whether classID is registered in r.
func (r *Registry[T]) Has(classID string) bool {
	r.μ.RLock()
	defer r.μ.RUnlock()
	_, ok := r.classes[classID]
	return ok
}

// Len reports the number of classes registered in r.
func (r *Registry[T]) Len() int {
	r.μ.RLock()
	defer r.μ.RUnlock()
	return len(r.classes)
}

// ClassIDs returns the registered class IDs in lexicographic order.
func (r *Registry[T]) ClassIDs() []string {
	r.μ.RLock()
	defer r.μ.RUnlock()
	ids := make([]string, 0, len(r.classes))
	for id := range r.classes {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}
