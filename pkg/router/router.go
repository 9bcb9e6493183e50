// Package router is the dual-backend credential query façade. A Router accepts
// attribute-map requests, decides which of the legacy and modern stores they target,
// runs them against each and merges the outcomes into one result.
package router

import (
	"context"
	"errors"
	"fmt"

	"github.com/systmms/credroute/internal/assemble"
	"github.com/systmms/credroute/internal/capability"
	"github.com/systmms/credroute/internal/certcache"
	"github.com/systmms/credroute/internal/clock"
	"github.com/systmms/credroute/internal/filter"
	"github.com/systmms/credroute/internal/logging"
	"github.com/systmms/credroute/internal/match"
	"github.com/systmms/credroute/internal/metrics"
	"github.com/systmms/credroute/internal/query"
	"github.com/systmms/credroute/pkg/credential"
)

// state is the position of one router operation.
type state int

const (
	stateInit state = iota
	stateRoutedLegacy
	stateRoutedModern
	stateMerged
	stateDone
)

func (s state) String() string {
	switch s {
	case stateInit:
		return "init"
	case stateRoutedLegacy:
		return "routed-legacy"
	case stateRoutedModern:
		return "routed-modern"
	case stateMerged:
		return "merged"
	case stateDone:
		return "done"
	}
	return "unknown"
}

// Router routes credential requests across a legacy and a modern store. It holds no
// lock across store calls; the only shared mutable state is the parent-certificate
// cache.
type Router struct {
	legacy   credential.LegacyStore
	modern   credential.ModernStore
	trust    credential.TrustEngine
	basic    credential.Policy
	clock    clock.Clock
	unlocker capability.Unlocker
	logger   *logging.Logger
	metrics  metrics.Recorder

	parentCacheSize int
	parents         *certcache.Cache
	pipeline        *filter.Pipeline
}

// Option configures a Router.
type Option func(*Router)

// WithLegacyStore sets the legacy store. Without one, every request is routed to the
// modern store.
func WithLegacyStore(s credential.LegacyStore) Option {
	return func(r *Router) { r.legacy = s }
}

// WithModernStore sets the modern store. Without one, every request is routed to the
// legacy store.
func WithModernStore(s credential.ModernStore) Option {
	return func(r *Router) { r.modern = s }
}

// WithTrustEngine sets the engine behind policy and trusted-only filters, and the
// policy trusted-only filtering evaluates against. Without an engine those filters
// reject every certificate.
func WithTrustEngine(engine credential.TrustEngine, basic credential.Policy) Option {
	return func(r *Router) {
		r.trust = engine
		r.basic = basic
	}
}

// WithClock sets the clock that resolves "valid now" filters.
func WithClock(c clock.Clock) Option {
	return func(r *Router) { r.clock = c }
}

// WithUnlocker sets the prompt used when the modern store reports it is locked.
func WithUnlocker(u capability.Unlocker) Option {
	return func(r *Router) { r.unlocker = u }
}

// WithLogger sets the logger that state transitions are traced to.
func WithLogger(l *logging.Logger) Option {
	return func(r *Router) { r.logger = l }
}

// WithParentCacheSize bounds the number of issuers the parent lookup remembers.
func WithParentCacheSize(n int) Option {
	return func(r *Router) { r.parentCacheSize = n }
}

// New creates a Router. At least one store is required.
func New(opts ...Option) (*Router, error) {
	r := &Router{}
	for _, opt := range opts {
		opt(r)
	}
	if r.legacy == nil && r.modern == nil {
		return nil, fmt.Errorf("%w: router needs a legacy or a modern store", credential.ErrParameter)
	}
	if r.clock == nil {
		r.clock = clock.System{}
	}
	if r.unlocker == nil {
		r.unlocker = capability.Noop
	}
	if r.logger == nil {
		r.logger = logging.Discard()
	}
	r.parents = certcache.New(r.parentCacheSize)
	r.pipeline = filter.New(r.trust, r.basic, r.clock)
	return r, nil
}

// call is the per-operation context: the backends a request reaches, each with the
// plan validated for it.
type call struct {
	op      query.Op
	targets query.Targets
	legacy  *routed
	modern  *routed
}

type routed struct {
	backend backend
	plan    *query.Plan
}

func (r *Router) trace(op query.Op, s state, format string, args ...interface{}) {
	if !r.logger.DebugEnabled() {
		return
	}
	r.logger.Debug("%s [%s] %s", op, s, fmt.Sprintf(format, args...))
}

func (r *Router) newModern(authUI credential.AuthUI) *modernBackend {
	return &modernBackend{
		store:    r.modern,
		unlocker: r.unlocker,
		authUI:   authUI,
		logger:   r.logger,
		metrics:  r.metrics,
	}
}

// route validates m for op, decides the targeted backends and builds one plan per
// backend. Validation errors abort before any store is touched.
func (r *Router) route(m credential.AttributeMap, op query.Op) (*call, error) {
	full, err := query.Validate(m, op)
	if err != nil {
		return nil, err
	}
	targets, err := query.Categorize(m)
	if err != nil {
		return nil, err
	}
	targets = targets.Only(r.legacy != nil, r.modern != nil)
	if !targets.Legacy && !targets.Modern {
		return nil, fmt.Errorf("%w: no configured store can serve this request", credential.ErrInvalidValue)
	}
	r.trace(op, stateInit, "class=%s legacy=%t modern=%t", full.Class, targets.Legacy, targets.Modern)

	c := &call{op: op, targets: targets}
	if targets.Legacy {
		p, err := query.Validate(m.Without(credential.ModernOnlyKeys...), op)
		if err != nil {
			return nil, err
		}
		c.legacy = &routed{backend: &legacyBackend{store: r.legacy}, plan: p}
	}
	if targets.Modern {
		p, err := query.Validate(m.Without(modernStripped...), op)
		if err != nil {
			return nil, err
		}
		c.modern = &routed{backend: r.newModern(p.AuthUI), plan: p}
	}
	return c, nil
}

// modernStripped lists the keys removed from a modern plan. Item lists stay: the
// modern backend resolves the entries it holds and skips the others.
var modernStripped = func() []string {
	var keys []string
	for _, k := range credential.LegacyOnlyKeys {
		if k != credential.UseItemList {
			keys = append(keys, k)
		}
	}
	return keys
}()

// wrap attaches the operation and backend to err.
func wrap(op string, b credential.Backend, err error) error {
	if err == nil {
		return nil
	}
	var ce *credential.Error
	if errors.As(err, &ce) {
		return err
	}
	return &credential.Error{Op: op, Backend: b, Err: err}
}

// Find returns the items matching q from every targeted store.
func (r *Router) Find(ctx context.Context, q credential.AttributeMap) (credential.Result, error) {
	c, err := r.route(q, query.OpFind)
	if err != nil {
		return nil, wrap("find", credential.BackendNone, err)
	}

	var legacyOut, modernOut outcome
	if c.legacy != nil {
		legacyOut = r.findIn(ctx, c.legacy)
		r.trace(c.op, stateRoutedLegacy, "err=%v", legacyOut.err)
	}
	if c.modern != nil {
		modernOut = r.findIn(ctx, c.modern)
		r.trace(c.op, stateRoutedModern, "err=%v", modernOut.err)
	}

	res, err := mergeFind(c.targets, modernOut, legacyOut)
	r.trace(c.op, stateMerged, "err=%v", err)
	r.trace(c.op, stateDone, "")
	return res, err
}

// findIn runs one backend's search through the filter pipeline into an assembler
// until the match limit is reached or the search is exhausted.
func (r *Router) findIn(ctx context.Context, rt *routed) outcome {
	b := rt.backend
	res, err := r.collect(ctx, rt.plan, b)
	r.metrics.Operation("find", b.Backend(), err)
	return outcome{result: res, err: wrap("find", b.Backend(), err)}
}

// Add stores a new item in exactly one store: the legacy store whenever the request
// allows it, the modern store otherwise. Without return flags the result is nil.
func (r *Router) Add(ctx context.Context, attrs credential.AttributeMap) (credential.Result, error) {
	c, err := r.route(attrs, query.OpAdd)
	if err != nil {
		return nil, wrap("add", credential.BackendNone, err)
	}

	rt, s := c.legacy, stateRoutedLegacy
	if rt == nil {
		rt, s = c.modern, stateRoutedModern
	}
	b := rt.backend
	cand, err := b.add(ctx, rt.plan)
	r.metrics.Operation("add", b.Backend(), err)
	r.trace(c.op, s, "err=%v", err)
	if err != nil {
		return nil, wrap("add", b.Backend(), err)
	}

	if rt.plan.Return.Count() == 0 {
		r.trace(c.op, stateDone, "")
		return nil, nil
	}
	asm := assemble.New(rt.plan, b)
	if err := asm.Add(ctx, cand); err != nil {
		return nil, wrap("add", b.Backend(), err)
	}
	r.trace(c.op, stateDone, "")
	return asm.Result()
}

// Update applies changes to every item q matches in every targeted store. Changing
// synchronizable moves items between the stores.
func (r *Router) Update(ctx context.Context, q, changes credential.AttributeMap) error {
	ch, err := query.ValidateChanges(changes)
	if err != nil {
		return wrap("update", credential.BackendNone, err)
	}
	c, err := r.route(q, query.OpUpdate)
	if err != nil {
		return wrap("update", credential.BackendNone, err)
	}
	if sync, ok := changes[credential.AttrSynchronizable].(bool); ok {
		err = r.syncUpdate(ctx, c, ch, sync)
		r.trace(c.op, stateDone, "err=%v", err)
		return err
	}

	var legacyErr, modernErr error
	if c.legacy != nil {
		legacyErr = r.updateIn(ctx, c.legacy, ch)
		r.trace(c.op, stateRoutedLegacy, "err=%v", legacyErr)
	}
	if c.modern != nil {
		modernErr = r.updateIn(ctx, c.modern, ch)
		r.trace(c.op, stateRoutedModern, "err=%v", modernErr)
	}
	err = mergeStatus(c.targets, modernErr, legacyErr)
	r.trace(c.op, stateMerged, "err=%v", err)
	r.trace(c.op, stateDone, "")
	return err
}

func (r *Router) updateIn(ctx context.Context, rt *routed, changes *query.Plan) error {
	b := rt.backend
	err := r.eachMatch(ctx, rt.plan, b, func(c *match.Candidate) error {
		return b.update(ctx, c, changes)
	})
	r.metrics.Operation("update", b.Backend(), err)
	return wrap("update", b.Backend(), err)
}

// Delete removes every item q matches in every targeted store.
func (r *Router) Delete(ctx context.Context, q credential.AttributeMap) error {
	c, err := r.route(q, query.OpDelete)
	if err != nil {
		return wrap("delete", credential.BackendNone, err)
	}

	var legacyErr, modernErr error
	if c.legacy != nil {
		legacyErr = r.deleteIn(ctx, c.legacy)
		r.trace(c.op, stateRoutedLegacy, "err=%v", legacyErr)
	}
	if c.modern != nil {
		modernErr = r.deleteIn(ctx, c.modern)
		r.trace(c.op, stateRoutedModern, "err=%v", modernErr)
	}
	err = mergeStatus(c.targets, modernErr, legacyErr)
	r.trace(c.op, stateMerged, "err=%v", err)
	r.trace(c.op, stateDone, "")
	return err
}

func (r *Router) deleteIn(ctx context.Context, rt *routed) error {
	b := rt.backend
	err := r.eachMatch(ctx, rt.plan, b, func(c *match.Candidate) error {
		return b.remove(ctx, c)
	})
	r.metrics.Operation("delete", b.Backend(), err)
	return wrap("delete", b.Backend(), err)
}
