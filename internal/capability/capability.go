// Package capability detects once per process whether an unlock prompt can be shown
// and hands out the matching Unlocker.
package capability

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/systmms/credroute/pkg/credential"
)

// Unlocker asks the user to unlock the modern store. It blocks until the prompt is
// answered.
type Unlocker interface {
	Unlock(ctx context.Context) error
}

// Noop is the Unlocker used when no unlock service exists. It always fails with
// ErrInteractionNotAllowed.
var Noop Unlocker = noopUnlocker{}

type noopUnlocker struct{}

func (noopUnlocker) Unlock(context.Context) error {
	return fmt.Errorf("%w: no unlock service available", credential.ErrInteractionNotAllowed)
}

// Probe runs its availability check at most once; later calls read the cached
// answer.
type Probe struct {
	once      sync.Once
	check     func() bool
	service   Unlocker
	available bool
}

// NewProbe returns a probe that offers service when check succeeds.
func NewProbe(check func() bool, service Unlocker) *Probe {
	return &Probe{check: check, service: service}
}

// Available reports whether the unlock service can be used.
func (p *Probe) Available() bool {
	p.once.Do(func() {
		p.available = p.service != nil && p.check != nil && p.check()
	})
	return p.available
}

// Unlocker returns the unlock service, or Noop when it is unavailable.
func (p *Probe) Unlocker() Unlocker {
	if p == nil || !p.Available() {
		return Noop
	}
	return p.service
}

// Interactive reports whether the session can display a prompt: a graphical display
// is present and the process is neither reached over SSH nor running in CI.
func Interactive(getenv func(string) string) bool {
	if getenv == nil {
		getenv = os.Getenv
	}
	if getenv("DISPLAY") == "" && getenv("WAYLAND_DISPLAY") == "" {
		return false
	}
	return getenv("SSH_TTY") == "" && getenv("CI") == ""
}
