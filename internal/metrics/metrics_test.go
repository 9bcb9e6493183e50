package metrics_test

import (
	"bytes"
	"errors"
	"fmt"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/systmms/credroute/internal/metrics"
	"github.com/systmms/credroute/pkg/credential"
)

func TestResultLabel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err  error
		want string
	}{
		{nil, "ok"},
		{credential.ErrItemNotFound, "not_found"},
		{fmt.Errorf("wrapped: %w", credential.ErrDuplicateItem), "duplicate"},
		{&credential.Error{Op: "add", Backend: credential.BackendModern, Err: credential.ErrInteractionNotAllowed}, "interaction_not_allowed"},
		{errors.New("disk on fire"), "error"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, metrics.ResultLabel(tt.err), "%v", tt.err)
	}
}

// Counters live in the default registry, so these tests compare deltas.
func TestRecorder(t *testing.T) {
	metrics.Init()
	metrics.Init()

	var r metrics.Recorder
	ops := metrics.OperationsTotal().WithLabelValues("find", "modern", "not_found")
	before := testutil.ToFloat64(ops)
	r.Operation("find", credential.BackendModern, credential.ErrItemNotFound)
	assert.Equal(t, before+1, testutil.ToFloat64(ops))

	mig := metrics.MigrationsTotal().WithLabelValues("to_modern", "done")
	before = testutil.ToFloat64(mig)
	r.Migration("to_modern", "done")
	assert.Equal(t, before+1, testutil.ToFloat64(mig))

	hits := metrics.ParentCacheTotal().WithLabelValues("hit")
	before = testutil.ToFloat64(hits)
	r.ParentCache(true)
	assert.Equal(t, before+1, testutil.ToFloat64(hits))

	retries := metrics.UnlockRetriesTotal().WithLabelValues("ok")
	before = testutil.ToFloat64(retries)
	r.UnlockRetry(nil)
	assert.Equal(t, before+1, testutil.ToFloat64(retries))
}

func TestWriteSummary(t *testing.T) {
	metrics.Init()
	metrics.Recorder{}.Operation("delete", credential.BackendLegacy, nil)

	var buf bytes.Buffer
	require.NoError(t, metrics.WriteSummary(&buf))
	assert.Contains(t, buf.String(), `credroute_operations_total{backend="legacy",op="delete",result="ok"}`)
}
