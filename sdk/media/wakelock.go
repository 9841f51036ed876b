package media

import (
	"errors"
	"sync"
)

var ErrUnsupported = errors.New("wake lock is not supported")

// WakeLock keeps the host awake while a room is connected.
type WakeLock interface {
	Acquire() error
	Release() error
}

// NoWakeLock is for hosts without a screen; every call is unsupported.
type NoWakeLock struct{}

func (NoWakeLock) Acquire() error { return ErrUnsupported }
func (NoWakeLock) Release() error { return ErrUnsupported }

// ProcessWakeLock is a process level lock that tracks whether it is held.
// Hooks run on the first acquire and the matching release.
type ProcessWakeLock struct {
	mx        *sync.Mutex
	held      bool
	OnAcquire func() error
	OnRelease func() error
}

func NewProcessWakeLock() *ProcessWakeLock {
	return &ProcessWakeLock{mx: &sync.Mutex{}}
}

func (w *ProcessWakeLock) Acquire() error {
	w.mx.Lock()
	defer w.mx.Unlock()
	if w.held {
		return nil
	}
	if w.OnAcquire != nil {
		if err := w.OnAcquire(); err != nil {
			return err
		}
	}
	w.held = true
	return nil
}

func (w *ProcessWakeLock) Release() error {
	w.mx.Lock()
	defer w.mx.Unlock()
	if !w.held {
		return nil
	}
	w.held = false
	if w.OnRelease != nil {
		return w.OnRelease()
	}
	return nil
}

func (w *ProcessWakeLock) Held() bool {
	w.mx.Lock()
	defer w.mx.Unlock()
	return w.held
}
