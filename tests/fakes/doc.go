// Package fakes provides in-memory test doubles for the stores and services the
// router talks to.
//
// Fakes are manually implemented (not generated) to provide precise control
// over test behavior: every fake can be seeded, counts its calls, and can be
// told to fail.
//
// Usage:
//
//	legacy := fakes.NewFakeLegacyStore()
//	legacy.Seed(credential.RecordGenericPassword, attrs, []byte("s3cr3t"))
//	r, _ := router.New(router.WithLegacyStore(legacy))
//	// Exercise the router...
package fakes
