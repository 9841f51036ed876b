// Package registry keeps named shared resources for a process or session.
//
// It replaces package level caches: whoever owns a Registry decides its
// lifetime and passes it to the components that need it.
package registry

import (
	"errors"
	"io"
	"sync"
)

var (
	ErrNotFound = errors.New("resource is not found")
	ErrDisposed = errors.New("registry is disposed")
)

type Registry[T any] struct {
	mx       *sync.Mutex
	db       map[string]T
	disposed bool
}

func New[T any]() *Registry[T] {
	return &Registry[T]{
		mx: &sync.Mutex{},
		db: make(map[string]T),
	}
}

// CreateOrGet returns the resource stored under name, creating it with
// create when absent. create runs under the registry lock.
func (r *Registry[T]) CreateOrGet(name string, create func() (T, error)) (T, error) {
	r.mx.Lock()
	defer r.mx.Unlock()

	var zero T
	if r.disposed {
		return zero, ErrDisposed
	}
	if res, ok := r.db[name]; ok {
		return res, nil
	}
	res, err := create()
	if err != nil {
		return zero, err
	}
	r.db[name] = res
	return res, nil
}

func (r *Registry[T]) Lookup(name string) (T, error) {
	r.mx.Lock()
	defer r.mx.Unlock()

	res, ok := r.db[name]
	if !ok {
		var zero T
		return zero, ErrNotFound
	}
	return res, nil
}

// Dispose removes the resource and closes it if it is an io.Closer.
func (r *Registry[T]) Dispose(name string) error {
	r.mx.Lock()
	res, ok := r.db[name]
	delete(r.db, name)
	r.mx.Unlock()

	if !ok {
		return ErrNotFound
	}
	return closeResource(res)
}

// DisposeAll empties the registry for good.
func (r *Registry[T]) DisposeAll() error {
	r.mx.Lock()
	db := r.db
	r.db = make(map[string]T)
	r.disposed = true
	r.mx.Unlock()

	var errs []error
	for _, res := range db {
		errs = append(errs, closeResource(res))
	}
	return errors.Join(errs...)
}

func closeResource(res any) error {
	if c, ok := res.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
