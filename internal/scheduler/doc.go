// Package scheduler runs the nano-block tiling loop of one unit on the inner
// worker threads of a micro-block.
//
// Two policies exist. Dynamic scheduling hands each tile to whichever worker
// is free. Slab binding gives every worker the whole loop and lets it
// evaluate only the slabs it owns, where ownership is the pure function
// SlabOwner of the slab's start index. The binding keeps a slab on the same
// worker across the successive units of a micro-block, so its data stays in
// that worker's cache.
package scheduler
