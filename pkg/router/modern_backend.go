package router

import (
	"context"
	"errors"
	"fmt"

	"github.com/systmms/credroute/internal/capability"
	"github.com/systmms/credroute/internal/logging"
	"github.com/systmms/credroute/internal/match"
	"github.com/systmms/credroute/internal/metrics"
	"github.com/systmms/credroute/internal/query"
	"github.com/systmms/credroute/pkg/credential"
)

// modernBackend lives for one router call: it carries the caller's prompt policy
// and remembers whether the single unlock-and-retry has been spent.
type modernBackend struct {
	store    credential.ModernStore
	unlocker capability.Unlocker
	authUI   credential.AuthUI
	logger   *logging.Logger
	metrics  metrics.Recorder

	unlockTried bool
}

func (b *modernBackend) Backend() credential.Backend { return credential.BackendModern }

// call runs fn, and when the store reports it is locked and prompting is allowed,
// unlocks once and runs fn once more.
func (b *modernBackend) call(ctx context.Context, fn func() error) error {
	err := fn()
	if !errors.Is(err, credential.ErrInteractionNotAllowed) || !b.authUI.AllowsPrompt() || b.unlockTried {
		return err
	}
	b.unlockTried = true
	unlocker := b.unlocker
	if unlocker == nil {
		unlocker = capability.Noop
	}
	uerr := unlocker.Unlock(ctx)
	b.metrics.UnlockRetry(uerr)
	if uerr != nil {
		b.logger.Debug("modern store unlock failed: %v", uerr)
		return err
	}
	b.logger.Debug("modern store unlocked, retrying")
	return fn()
}

func (b *modernBackend) find(ctx context.Context, q credential.AttributeMap) ([]credential.AttributeMap, error) {
	var recs []credential.AttributeMap
	err := b.call(ctx, func() error {
		var err error
		recs, err = b.store.Find(ctx, q)
		return err
	})
	return recs, err
}

// storedClass maps a queried class onto the class the modern store holds.
func storedClass(c credential.ItemClass) credential.ItemClass {
	if c == credential.ClassIdentity {
		return credential.ClassCertificate
	}
	return c
}

// searchQuery translates p into a modern find. When in-memory filters may reject
// candidates, every match is fetched and the limit is applied after filtering.
func searchQuery(p *query.Plan) credential.AttributeMap {
	q := p.Attributes.Clone()
	q[credential.AttrClass] = storedClass(p.Class)
	q[credential.ReturnAttributes] = true
	q[credential.ReturnPersistentRef] = true
	if p.Class == credential.ClassCertificate || p.Class == credential.ClassIdentity {
		q[credential.ReturnData] = true
	}
	switch {
	case p.Filters.Any(), p.HasMatchList(), p.Class == credential.ClassIdentity, p.Limit == query.MatchAll:
		q[credential.MatchLimit] = credential.MatchLimitAll
	default:
		q[credential.MatchLimit] = p.Limit
	}
	return q
}

func itemQuery(class credential.ItemClass, token credential.PersistentRef) credential.AttributeMap {
	return credential.AttributeMap{
		credential.AttrClass:          storedClass(class),
		credential.ValuePersistentRef: token,
		credential.AttrSynchronizable: credential.SynchronizableAny,
	}
}

func (b *modernBackend) search(ctx context.Context, p *query.Plan) (candidates, error) {
	if p.HasExplicitItems() {
		return b.explicit(ctx, p)
	}
	recs, err := b.find(ctx, searchQuery(p))
	if err != nil {
		return nil, err
	}
	out := make([]*match.Candidate, 0, len(recs))
	for _, rec := range recs {
		c, err := candidateForRecord(rec)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return &sliceCandidates{items: out}, nil
}

func (b *modernBackend) explicit(ctx context.Context, p *query.Plan) (candidates, error) {
	var out []*match.Candidate
	lookup := func(class credential.ItemClass, tok credential.PersistentRef, h credential.Handle) error {
		q := itemQuery(class, tok)
		q[credential.ReturnAttributes] = true
		if class == credential.ClassCertificate || class == credential.ClassIdentity {
			q[credential.ReturnData] = true
		}
		recs, err := b.find(ctx, q)
		if errors.Is(err, credential.ErrItemNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		c, err := candidateForRecord(recs[0])
		if err != nil {
			return err
		}
		if h != nil {
			c.Ref = h
		}
		out = append(out, c)
		return nil
	}

	for _, h := range p.UseItems {
		tok, ok := modernToken(h)
		if !ok {
			continue
		}
		var keep credential.Handle
		if _, isID := h.(credential.IdentityHandle); isID {
			keep = h
		}
		if err := lookup(h.Class(), tok, keep); err != nil {
			return nil, err
		}
	}
	for _, tok := range p.UseTokens {
		class, ok := tok.Class()
		if !tok.IsModern() || !ok {
			continue
		}
		if err := lookup(class, tok, nil); err != nil {
			return nil, err
		}
	}
	return &sliceCandidates{items: out}, nil
}

func modernToken(h credential.Handle) (credential.PersistentRef, bool) {
	switch x := credential.Unwrap(h).(type) {
	case credential.ModernItemHandle:
		return x.Token, true
	case credential.CertificateHandle:
		return x.Modern, len(x.Modern) > 0
	case credential.KeyHandle:
		return x.Modern, len(x.Modern) > 0
	}
	return nil, false
}

// candidateForRecord wraps one find record. The record's own class is the resolved
// class.
func candidateForRecord(rec credential.AttributeMap) (*match.Candidate, error) {
	token, _ := rec[credential.ValuePersistentRef].(credential.PersistentRef)
	if token == nil {
		if b, ok := rec[credential.ValuePersistentRef].([]byte); ok {
			token = b
		}
	}
	if token == nil {
		return nil, fmt.Errorf("%w: modern record without persistent reference", credential.ErrBackendInternal)
	}
	var class credential.ItemClass
	switch v := rec[credential.AttrClass].(type) {
	case credential.ItemClass:
		class = v
	case string:
		class = credential.ItemClass(v)
	}

	c := &match.Candidate{
		Backend: credential.BackendModern,
		Class:   class,
		Token:   token,
		Attrs:   rec.Without(credential.ValuePersistentRef, credential.ValueData, credential.ValueRef),
	}
	if data, ok := rec[credential.ValueData]; ok {
		b, _ := credential.AsBytes(data)
		c.SetData(b)
	}

	switch class {
	case credential.ClassGenericPassword, credential.ClassInternetPassword:
		c.Ref = credential.ModernItemHandle{ItemClass: class, Token: token}
	case credential.ClassCertificate:
		c.Ref = credential.CertificateHandle{Modern: token}
	case credential.ClassKey:
		kc, _ := rec[credential.AttrKeyClass].(string)
		c.Ref = credential.KeyHandle{Modern: token, KeyClass: credential.KeyClass(kc)}
	default:
		return nil, fmt.Errorf("%w: modern record of unknown class %q", credential.ErrBackendInternal, class)
	}
	return c, nil
}

func (b *modernBackend) Attributes(ctx context.Context, c *match.Candidate) (credential.AttributeMap, error) {
	q := itemQuery(c.Class, c.Token)
	q[credential.ReturnAttributes] = true
	recs, err := b.find(ctx, q)
	if err != nil {
		return nil, err
	}
	return recs[0].Without(credential.ValuePersistentRef, credential.ValueData), nil
}

// Data fetches one item's payload with its own request, so bulk searches never
// carry password secrets.
func (b *modernBackend) Data(ctx context.Context, c *match.Candidate) ([]byte, error) {
	q := itemQuery(c.Class, c.Token)
	q[credential.ReturnData] = true
	recs, err := b.find(ctx, q)
	if err != nil {
		return nil, err
	}
	data, _ := credential.AsBytes(recs[0][credential.ValueData])
	return data, nil
}

func (b *modernBackend) PersistentRef(_ context.Context, c *match.Candidate) (credential.PersistentRef, error) {
	if c.Token == nil {
		return nil, fmt.Errorf("%w: modern candidate without persistent reference", credential.ErrBackendInternal)
	}
	return c.Token, nil
}

func (b *modernBackend) PairedKey(ctx context.Context, keyHash []byte) (*credential.KeyHandle, error) {
	recs, err := b.find(ctx, credential.AttributeMap{
		credential.AttrClass:            credential.ClassKey,
		credential.AttrKeyClass:         string(credential.KeyClassPrivate),
		credential.AttrApplicationLabel: keyHash,
		credential.AttrSynchronizable:   credential.SynchronizableAny,
		credential.MatchLimit:           1,
	})
	if err != nil {
		return nil, err
	}
	c, err := candidateForRecord(recs[0])
	if err != nil {
		return nil, err
	}
	key, ok := c.Ref.(credential.KeyHandle)
	if !ok {
		return nil, fmt.Errorf("%w: paired key is a %s", credential.ErrBackendInternal, c.Class)
	}
	return &key, nil
}

func (b *modernBackend) Resolve(ctx context.Context, token credential.PersistentRef) (credential.Handle, error) {
	class, ok := token.Class()
	if !token.IsModern() || !ok {
		return nil, fmt.Errorf("not a modern token: %w", credential.ErrItemNotFound)
	}
	recs, err := b.find(ctx, itemQuery(class, token))
	if err != nil {
		return nil, err
	}
	c, err := candidateForRecord(recs[0])
	if err != nil {
		return nil, err
	}
	return c.Ref, nil
}

func (b *modernBackend) add(ctx context.Context, p *query.Plan) (*match.Candidate, error) {
	attrs, data, err := addContent(p)
	if err != nil {
		return nil, err
	}
	attrs[credential.AttrClass] = p.Class
	if data != nil || p.HasPayload {
		attrs[credential.ValueData] = data
	}
	if p.AccessControl != nil {
		attrs[credential.AttrAccessControl] = p.AccessControl
	}

	var rec credential.AttributeMap
	err = b.call(ctx, func() error {
		var err error
		rec, err = b.store.Add(ctx, attrs)
		return err
	})
	if err != nil {
		return nil, err
	}
	return candidateForRecord(rec)
}

func (b *modernBackend) update(ctx context.Context, c *match.Candidate, changes *query.Plan) error {
	ch := changes.Attributes.Clone()
	if changes.HasPayload {
		ch[credential.ValueData] = changes.Payload
	}
	if changes.AccessControl != nil {
		ch[credential.AttrAccessControl] = changes.AccessControl
	}
	return b.call(ctx, func() error {
		return b.store.Update(ctx, itemQuery(c.Class, c.Token), ch)
	})
}

func (b *modernBackend) remove(ctx context.Context, c *match.Candidate) error {
	return b.call(ctx, func() error {
		return b.store.Delete(ctx, itemQuery(c.Class, c.Token))
	})
}
