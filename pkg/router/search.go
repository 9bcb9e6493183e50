package router

import (
	"context"

	"github.com/systmms/credroute/internal/assemble"
	"github.com/systmms/credroute/internal/match"
	"github.com/systmms/credroute/internal/query"
	"github.com/systmms/credroute/pkg/credential"
)

// collect runs b's search for p through the filter pipeline into an assembler,
// stopping once the match limit is reached.
func (r *Router) collect(ctx context.Context, p *query.Plan, b backend) (credential.Result, error) {
	cands, err := b.search(ctx, p)
	if err != nil {
		return nil, err
	}
	asm := assemble.New(p, b)
	for !asm.Full() {
		c, ok, err := r.nextAccepted(ctx, p, b, cands)
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		if err := asm.Add(ctx, c); err != nil {
			return nil, err
		}
	}
	return asm.Result()
}

func (r *Router) nextAccepted(ctx context.Context, p *query.Plan, b backend, cands candidates) (*match.Candidate, bool, error) {
	for {
		c, ok, err := cands.next(ctx)
		if err != nil || !ok {
			return nil, false, err
		}
		accept, err := r.pipeline.Accept(ctx, p, b, c)
		if err != nil {
			return nil, false, err
		}
		if accept {
			return c, true, nil
		}
	}
}

// matches returns every item of b that p matches, ignoring p's limit. The search is
// drained before the caller mutates anything.
func (r *Router) matches(ctx context.Context, p *query.Plan, b backend) ([]*match.Candidate, error) {
	all := *p
	all.Limit = query.MatchAll
	cands, err := b.search(ctx, &all)
	if err != nil {
		return nil, err
	}
	var out []*match.Candidate
	for {
		c, ok, err := r.nextAccepted(ctx, &all, b, cands)
		if err != nil {
			return nil, err
		}
		if !ok {
			return out, nil
		}
		out = append(out, c)
	}
}

// eachMatch applies fn to every item p matches in b. No match at all is
// ErrItemNotFound; otherwise the per-item statuses are aggregated.
func (r *Router) eachMatch(ctx context.Context, p *query.Plan, b backend, fn func(*match.Candidate) error) error {
	found, err := r.matches(ctx, p, b)
	if err != nil {
		return err
	}
	if len(found) == 0 {
		return credential.ErrItemNotFound
	}
	errs := make([]error, 0, len(found))
	for _, c := range found {
		errs = append(errs, fn(c))
	}
	return credential.Aggregate(errs...)
}
