// Package metrics records router activity as Prometheus counters.
package metrics

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/systmms/credroute/pkg/credential"
)

var (
	operationsTotal    *prometheus.CounterVec
	migrationsTotal    *prometheus.CounterVec
	unlockRetriesTotal *prometheus.CounterVec
	parentCacheTotal   *prometheus.CounterVec

	metricsOnce       sync.Once
	metricsRegistered atomic.Bool
)

// Init registers every counter with the default registry. Safe to call repeatedly.
func Init() {
	metricsOnce.Do(func() {
		operationsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "credroute_operations_total",
				Help: "Backend operations by operation, backend and result",
			},
			[]string{"op", "backend", "result"},
		)
		migrationsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "credroute_migrations_total",
				Help: "Per-item synchronization migrations by direction and final state",
			},
			[]string{"direction", "state"},
		)
		unlockRetriesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "credroute_unlock_retries_total",
				Help: "Unlock-and-retry cycles against the modern store",
			},
			[]string{"outcome"},
		)
		parentCacheTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "credroute_parent_cache_lookups_total",
				Help: "Issuer certificate cache lookups",
			},
			[]string{"result"},
		)
		metricsRegistered.Store(true)
	})
}

// Recorder records events. The zero value is ready; nothing is recorded until Init
// has run.
type Recorder struct{}

// Operation counts one backend call of op.
func (Recorder) Operation(op string, backend credential.Backend, err error) {
	if !metricsRegistered.Load() {
		return
	}
	operationsTotal.WithLabelValues(op, backend.String(), ResultLabel(err)).Inc()
}

// Migration counts one migrated item reaching state.
func (Recorder) Migration(direction, state string) {
	if !metricsRegistered.Load() {
		return
	}
	migrationsTotal.WithLabelValues(direction, state).Inc()
}

// UnlockRetry counts one unlock-and-retry cycle.
func (Recorder) UnlockRetry(err error) {
	if !metricsRegistered.Load() {
		return
	}
	unlockRetriesTotal.WithLabelValues(ResultLabel(err)).Inc()
}

// ParentCache counts one issuer cache lookup.
func (Recorder) ParentCache(hit bool) {
	if !metricsRegistered.Load() {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	parentCacheTotal.WithLabelValues(result).Inc()
}

var resultLabels = []struct {
	err   error
	label string
}{
	{credential.ErrItemNotFound, "not_found"},
	{credential.ErrDuplicateItem, "duplicate"},
	{credential.ErrInteractionNotAllowed, "interaction_not_allowed"},
	{credential.ErrAuthenticationRequired, "authentication_required"},
	{credential.ErrMissingEntitlement, "missing_entitlement"},
	{credential.ErrInvalidValue, "invalid_value"},
	{credential.ErrParameter, "parameter"},
}

// ResultLabel names the outcome of a call for the result label.
func ResultLabel(err error) string {
	if err == nil {
		return "ok"
	}
	for _, r := range resultLabels {
		if errors.Is(err, r.err) {
			return r.label
		}
	}
	return "error"
}

// WriteSummary writes every non-zero credroute counter as one "name{labels} value"
// line, sorted.
func WriteSummary(w io.Writer) error {
	families, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		return err
	}
	var lines []string
	for _, mf := range families {
		if !strings.HasPrefix(mf.GetName(), "credroute_") {
			continue
		}
		for _, m := range mf.GetMetric() {
			v := m.GetCounter().GetValue()
			if v == 0 {
				continue
			}
			var labels []string
			for _, lp := range m.GetLabel() {
				labels = append(labels, fmt.Sprintf("%s=%q", lp.GetName(), lp.GetValue()))
			}
			lines = append(lines, fmt.Sprintf("%s{%s} %g", mf.GetName(), strings.Join(labels, ","), v))
		}
	}
	sort.Strings(lines)
	for _, l := range lines {
		if _, err := fmt.Fprintln(w, l); err != nil {
			return err
		}
	}
	return nil
}

// OperationsTotal returns the operations counter for tests.
func OperationsTotal() *prometheus.CounterVec { return operationsTotal }

// MigrationsTotal returns the migrations counter for tests.
func MigrationsTotal() *prometheus.CounterVec { return migrationsTotal }

// UnlockRetriesTotal returns the unlock retry counter for tests.
func UnlockRetriesTotal() *prometheus.CounterVec { return unlockRetriesTotal }

// ParentCacheTotal returns the parent cache counter for tests.
func ParentCacheTotal() *prometheus.CounterVec { return parentCacheTotal }
