// Package inmemoryvars provides an in-memory implementation of the
// varstore.Var interface.
//
// # Purpose
//
// Variables here carry geometry and bookkeeping only; there is no element
// storage. That is enough for the engine, the outer driver and tests to
// exercise halo sizing, bounds checks and dirty/valid-step tracking without
// a real storage layer.
//
// # Concurrency Model
//
// Geometry is immutable after New. Bookkeeping fields are guarded by a
// per-variable mutex, so concurrent outer workers may mark the same
// variable.
package inmemoryvars
