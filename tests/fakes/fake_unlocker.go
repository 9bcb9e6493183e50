package fakes

import (
	"context"
	"sync"
)

// FakeUnlocker records unlock requests.
type FakeUnlocker struct {
	mu sync.Mutex

	// Err is returned by Unlock when set.
	Err error
	// OnUnlock runs on every successful Unlock, e.g. to clear a store's injected error.
	OnUnlock func()

	Calls int
}

// Unlock implements capability.Unlocker.
func (f *FakeUnlocker) Unlock(context.Context) error {
	f.mu.Lock()
	f.Calls++
	err, hook := f.Err, f.OnUnlock
	f.mu.Unlock()
	if err != nil {
		return err
	}
	if hook != nil {
		hook()
	}
	return nil
}
