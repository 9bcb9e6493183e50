package secure

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/awnumar/memguard"
)

// ErrDestroyed is returned when a destroyed payload is used.
var ErrDestroyed = errors.New("secure payload destroyed")

// Payload is a sealed secret. The zero value is not usable; build one with
// NewPayload or ReadPayload.
type Payload struct {
	mu        sync.RWMutex
	enclave   *memguard.Enclave
	size      int
	destroyed bool
}

// NewPayload seals data. The source slice is wiped.
func NewPayload(data []byte) *Payload {
	p := &Payload{size: len(data)}
	if len(data) > 0 {
		p.enclave = memguard.NewEnclave(data)
	}
	return p
}

// ReadPayload reads r to EOF and seals what it read, without one trailing
// newline so that `echo secret |` and here-strings store what was typed.
func ReadPayload(r io.Reader) (*Payload, error) {
	locked, err := memguard.NewBufferFromEntireReader(r)
	if err != nil {
		if locked != nil {
			locked.Destroy()
		}
		return nil, fmt.Errorf("reading payload: %w", err)
	}
	defer locked.Destroy()
	if locked.Size() == 0 {
		return NewPayload(nil), nil
	}

	b := locked.Bytes()
	n := len(b)
	switch {
	case bytes.HasSuffix(b, []byte("\r\n")):
		n -= 2
	case bytes.HasSuffix(b, []byte("\n")):
		n--
	}
	return NewPayload(append([]byte(nil), b[:n]...)), nil
}

// Size is the payload length in bytes.
func (p *Payload) Size() int {
	return p.size
}

// Use decrypts the payload for the duration of fn. The slice passed to fn is
// wiped when fn returns and must not be retained.
func (p *Payload) Use(fn func([]byte) error) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.destroyed {
		return ErrDestroyed
	}
	if p.enclave == nil {
		return fn([]byte{})
	}
	locked, err := p.enclave.Open()
	if err != nil {
		return fmt.Errorf("opening payload: %w", err)
	}
	defer locked.Destroy()
	return fn(locked.Bytes())
}

// Copy returns a plaintext copy for APIs that keep the bytes, such as an
// attribute map handed to the router.
func (p *Payload) Copy() ([]byte, error) {
	var out []byte
	err := p.Use(func(b []byte) error {
		out = append([]byte{}, b...)
		return nil
	})
	return out, err
}

// WriteTo writes the plaintext to w.
func (p *Payload) WriteTo(w io.Writer) (int64, error) {
	var n int
	err := p.Use(func(b []byte) error {
		var werr error
		n, werr = w.Write(b)
		return werr
	})
	return int64(n), err
}

// Destroy drops the enclave. It is idempotent; later calls to Use fail with
// ErrDestroyed.
func (p *Payload) Destroy() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.enclave = nil
	p.destroyed = true
}
