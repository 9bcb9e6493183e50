// Package credential defines the shared vocabulary of credroute: the attribute map
// callers describe items with, the item classes, the handle sum type, stable tokens,
// result shapes, the error taxonomy, and the collaborator interfaces for the two
// backing stores and the trust engine.
//
// # Architecture Overview
//
// credroute sits between callers and two independently evolved credential stores:
//
//	┌─────────────────────────────────────────────────────────────┐
//	│                  Callers / CLI (cmd/credroute)              │
//	└─────────────────────────┬───────────────────────────────────┘
//	                          │ AttributeMap
//	┌─────────────────────────▼───────────────────────────────────┐
//	│              Router (pkg/router)                            │
//	│   validate → categorize → per-backend search → filter →    │
//	│   assemble → merge            (+ sync migration on update)  │
//	└───────────────┬─────────────────────────────┬───────────────┘
//	                │                             │
//	┌───────────────▼──────────────┐ ┌────────────▼────────────────┐
//	│ LegacyStore                  │ │ ModernStore                 │
//	│ fixed schema, tagged attrs   │ │ free-form attribute maps    │
//	└──────────────────────────────┘ └─────────────────────────────┘
//
// # Attribute Maps
//
// An AttributeMap mixes control keys (class, return_*, match_*, use_*, value_*) with
// item attributes (account, service, label, ...). Control keys are listed in keys.go;
// everything else is treated as an item attribute. Integer values of any Go integer
// type are accepted and normalized to int.
//
// # Handles
//
// Items are referenced through Handle, a closed set of concrete types:
//
//   - LegacyItemHandle: a password item held by the legacy store
//   - ModernItemHandle: a password item held by the modern store
//   - CertificateHandle: a certificate, stored in either backend or floating
//   - KeyHandle: a key, stored in either backend or floating
//   - IdentityHandle: a certificate paired with its private key
//
// Code that dispatches on a handle uses an exhaustive type switch.
//
// # Error Handling
//
// Operations return errors wrapping the sentinels in errors.go. Use errors.Is:
//
//	res, err := r.Find(ctx, credential.AttributeMap{
//	    credential.AttrClass:   credential.ClassGenericPassword,
//	    credential.AttrService: "example.com",
//	})
//	if errors.Is(err, credential.ErrItemNotFound) {
//	    // nothing matched in any targeted backend
//	}
package credential
