package testutil

import (
	"bytes"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/systmms/credroute/internal/logging"
)

// TestLogger captures the output of a real logging.Logger for assertions.
//
// Example usage:
//
//	logger := NewTestLogger(t, true)
//	r, _ := router.New(router.WithLogger(logger.Logger()), ...)
//	...
//	logger.AssertContains(t, "routed-legacy")
type TestLogger struct {
	mu     sync.Mutex
	buffer bytes.Buffer
	logger *logging.Logger
}

// NewTestLogger creates a colorless logger writing into memory.
func NewTestLogger(t *testing.T, debug bool) *TestLogger {
	t.Helper()

	l := &TestLogger{}
	l.logger = logging.NewWithWriter(lockedWriter{l}, debug, true)
	return l
}

type lockedWriter struct{ l *TestLogger }

func (w lockedWriter) Write(p []byte) (int, error) {
	w.l.mu.Lock()
	defer w.l.mu.Unlock()
	return w.l.buffer.Write(p)
}

// Logger returns the logger to hand to the code under test.
func (l *TestLogger) Logger() *logging.Logger {
	return l.logger
}

// GetOutput returns everything logged since creation or the last Clear.
func (l *TestLogger) GetOutput() string {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.buffer.String()
}

// Clear discards the captured output.
func (l *TestLogger) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.buffer.Reset()
}

// Lines returns the captured output split into non-empty lines.
func (l *TestLogger) Lines() []string {
	var out []string
	for _, line := range strings.Split(l.GetOutput(), "\n") {
		if line != "" {
			out = append(out, line)
		}
	}
	return out
}

// AssertContains asserts that the log output contains the specified substring.
func (l *TestLogger) AssertContains(t *testing.T, substr string) {
	t.Helper()

	assert.Contains(t, l.GetOutput(), substr, "Expected log output to contain %q", substr)
}

// AssertNotContains asserts that the log output does NOT contain the specified substring.
func (l *TestLogger) AssertNotContains(t *testing.T, substr string) {
	t.Helper()

	assert.NotContains(t, l.GetOutput(), substr, "Expected log output to NOT contain %q", substr)
}

// AssertRedacted asserts that a secret value never reached the log output.
func (l *TestLogger) AssertRedacted(t *testing.T, secretValue string) {
	t.Helper()

	assert.NotContains(t, l.GetOutput(), secretValue,
		"Secret value %q should be redacted, but appears in logs", secretValue)
}
