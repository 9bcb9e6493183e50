package router

import (
	"context"
	"errors"
	"fmt"

	"github.com/systmms/credroute/internal/legacy"
	"github.com/systmms/credroute/internal/match"
	"github.com/systmms/credroute/internal/query"
	"github.com/systmms/credroute/internal/schema"
	"github.com/systmms/credroute/pkg/credential"
)

type legacyBackend struct {
	store credential.LegacyStore
}

func (b *legacyBackend) Backend() credential.Backend { return credential.BackendLegacy }

func (b *legacyBackend) search(ctx context.Context, p *query.Plan) (candidates, error) {
	if p.HasExplicitItems() {
		return b.explicit(ctx, p)
	}
	cur, err := legacy.NewCursor(b.store, p.Class, p.KeyClass, p.Attributes, p.SearchList)
	if err != nil {
		return nil, err
	}
	return &cursorCandidates{cur: cur}, nil
}

func (b *legacyBackend) explicit(ctx context.Context, p *query.Plan) (candidates, error) {
	var out []*match.Candidate
	for _, h := range p.UseItems {
		if ref, ok := legacyRef(h); ok {
			c := candidateForRef(ref)
			if id, isID := h.(credential.IdentityHandle); isID {
				c.Ref = id
			}
			out = append(out, c)
		}
	}
	for _, tok := range p.UseTokens {
		if !tok.IsLegacy() {
			continue
		}
		ref, err := b.store.ResolvePersistentReference(ctx, tok)
		if errors.Is(err, credential.ErrItemNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		c := candidateForRef(ref)
		c.Token = tok
		out = append(out, c)
	}
	return &sliceCandidates{items: out}, nil
}

type cursorCandidates struct {
	cur *legacy.Cursor
}

func (c *cursorCandidates) next(ctx context.Context) (*match.Candidate, bool, error) {
	ref, ok, err := c.cur.Next(ctx)
	if err != nil || !ok {
		return nil, false, err
	}
	return candidateForRef(ref), true, nil
}

// candidateForRef wraps a legacy item in the handle its record type calls for.
func candidateForRef(ref credential.LegacyItemRef) *match.Candidate {
	c := &match.Candidate{Backend: credential.BackendLegacy, Class: ref.Record.ItemClass()}
	r := ref
	switch ref.Record {
	case credential.RecordCertificate:
		c.Ref = credential.CertificateHandle{Legacy: &r}
	case credential.RecordPublicKey, credential.RecordPrivateKey, credential.RecordSymmetricKey:
		c.Ref = credential.KeyHandle{Legacy: &r, KeyClass: ref.Record.KeyClass()}
	default:
		c.Ref = credential.LegacyItemHandle{Ref: r}
	}
	return c
}

func legacyRef(h credential.Handle) (credential.LegacyItemRef, bool) {
	switch x := credential.Unwrap(h).(type) {
	case credential.LegacyItemHandle:
		return x.Ref, true
	case credential.CertificateHandle:
		if x.Legacy != nil {
			return *x.Legacy, true
		}
	case credential.KeyHandle:
		if x.Legacy != nil {
			return *x.Legacy, true
		}
	}
	return credential.LegacyItemRef{}, false
}

func (b *legacyBackend) refOf(c *match.Candidate) (credential.LegacyItemRef, error) {
	ref, ok := legacyRef(c.Ref)
	if !ok {
		return ref, fmt.Errorf("%w: %s is not a legacy item", credential.ErrParameter, c.Ref.Kind())
	}
	return ref, nil
}

// Attributes decodes every stored attribute. Legacy items are never synchronizable.
func (b *legacyBackend) Attributes(ctx context.Context, c *match.Candidate) (credential.AttributeMap, error) {
	ref, err := b.refOf(c)
	if err != nil {
		return nil, err
	}
	native, _, err := b.store.CopyAttributesAndData(ctx, ref, nil, false)
	if err != nil {
		return nil, err
	}
	attrs, err := schema.DecodeAll(ref.Record, native)
	if err != nil {
		return nil, err
	}
	attrs[credential.AttrClass] = ref.Record.ItemClass()
	attrs[credential.AttrSynchronizable] = false
	return attrs, nil
}

func (b *legacyBackend) Data(ctx context.Context, c *match.Candidate) ([]byte, error) {
	ref, err := b.refOf(c)
	if err != nil {
		return nil, err
	}
	_, data, err := b.store.CopyAttributesAndData(ctx, ref, []credential.Tag{}, true)
	return data, err
}

func (b *legacyBackend) PersistentRef(ctx context.Context, c *match.Candidate) (credential.PersistentRef, error) {
	ref, err := b.refOf(c)
	if err != nil {
		return nil, err
	}
	return b.store.CopyPersistentReference(ctx, ref)
}

func (b *legacyBackend) PairedKey(ctx context.Context, keyHash []byte) (*credential.KeyHandle, error) {
	cur, err := legacy.NewCursor(b.store, credential.ClassKey, credential.KeyClassPrivate,
		credential.AttributeMap{credential.AttrApplicationLabel: keyHash}, nil)
	if err != nil {
		return nil, err
	}
	ref, ok, err := cur.Next(ctx)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("legacy private key: %w", credential.ErrItemNotFound)
	}
	key := candidateForRef(ref).Ref.(credential.KeyHandle)
	return &key, nil
}

func (b *legacyBackend) Resolve(ctx context.Context, token credential.PersistentRef) (credential.Handle, error) {
	if !token.IsLegacy() {
		return nil, fmt.Errorf("not a legacy token: %w", credential.ErrItemNotFound)
	}
	ref, err := b.store.ResolvePersistentReference(ctx, token)
	if err != nil {
		return nil, err
	}
	return candidateForRef(ref).Ref, nil
}

func (b *legacyBackend) add(ctx context.Context, p *query.Plan) (*match.Candidate, error) {
	rt, err := credential.RecordTypeFor(p.Class, p.KeyClass)
	if err != nil {
		return nil, err
	}
	attrs, data, err := addContent(p)
	if err != nil {
		return nil, err
	}
	content, err := legacy.BuildContent(rt, attrs)
	if err != nil {
		return nil, err
	}
	ref, err := b.store.CreateFromContent(ctx, rt, content, data, p.Keychain, p.LegacyAccess)
	if err != nil {
		return nil, err
	}
	return candidateForRef(ref), nil
}

func (b *legacyBackend) update(ctx context.Context, c *match.Candidate, changes *query.Plan) error {
	ref, err := b.refOf(c)
	if err != nil {
		return err
	}
	content, err := legacy.BuildFilter(ref.Record, changes.Attributes)
	if err != nil {
		return err
	}
	var data []byte
	if changes.HasPayload {
		data = changes.Payload
		if data == nil {
			data = []byte{}
		}
	}
	return b.store.ModifyContent(ctx, ref, content, data)
}

func (b *legacyBackend) remove(ctx context.Context, c *match.Candidate) error {
	ref, err := b.refOf(c)
	if err != nil {
		return err
	}
	return b.store.Delete(ctx, ref)
}
