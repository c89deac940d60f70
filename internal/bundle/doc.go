// Package bundle implements computational units ("bundles") and the
// micro-block evaluator.
//
// A bundle is a named group of point-update equations sharing a validity
// condition. It owns the bounding boxes approximating its valid region, its
// input and output variables, and the nano-block evaluator that applies its
// equations to one tile. A scratch bundle produces per-thread temporaries
// consumed by other bundles in the same micro-block; it also carries the
// write halos that decide how far its span grows.
//
// CalcMicroBlock is the entry point used by the outer blocking driver: it
// trims the micro-block to each of the bundle's boxes, evaluates every
// required scratch bundle on a halo-expanded span and then the bundle
// itself, and finally marks the bundle's outputs for halo exchange.
//
// Precondition violations (temporal blocking at micro-block level, spans
// exceeding scratch storage, mismatched dimension counts) panic with an
// error wrapping ErrPrecondition. They indicate a bug in the caller, not a
// condition to recover from.
package bundle
