// Package selector composes derived views of a snapshot.
//
// A selector built here recomputes only when one of its inputs changed by
// ==, so inputs should be pointers or other cheap comparable handles into an
// immutable snapshot. Selectors are safe for concurrent use.
package selector

import "sync"

// Func derives a value of type R from a snapshot of type S.
type Func[S, R any] func(S) R

type memo[K comparable, R any] struct {
	mx    sync.Mutex
	valid bool
	key   K
	val   R
}

func (m *memo[K, R]) get(key K, compute func() R) R {
	m.mx.Lock()
	defer m.mx.Unlock()
	if m.valid && m.key == key {
		return m.val
	}
	m.val = compute()
	m.key = key
	m.valid = true
	return m.val
}

// New1 returns a selector that applies combine to the output of a.
func New1[S any, A comparable, R any](a func(S) A, combine func(A) R) Func[S, R] {
	m := &memo[A, R]{}
	return func(s S) R {
		va := a(s)
		return m.get(va, func() R { return combine(va) })
	}
}

type pair[A, B comparable] struct {
	a A
	b B
}

func New2[S any, A, B comparable, R any](a func(S) A, b func(S) B, combine func(A, B) R) Func[S, R] {
	m := &memo[pair[A, B], R]{}
	return func(s S) R {
		k := pair[A, B]{a(s), b(s)}
		return m.get(k, func() R { return combine(k.a, k.b) })
	}
}

type triple[A, B, C comparable] struct {
	a A
	b B
	c C
}

func New3[S any, A, B, C comparable, R any](
	a func(S) A,
	b func(S) B,
	c func(S) C,
	combine func(A, B, C) R,
) Func[S, R] {
	m := &memo[triple[A, B, C], R]{}
	return func(s S) R {
		k := triple[A, B, C]{a(s), b(s), c(s)}
		return m.get(k, func() R { return combine(k.a, k.b, k.c) })
	}
}
