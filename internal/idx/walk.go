package idx

// Walk visits every tile of s in lexicographic order, outermost dim first.
//
// In each dim the first tile runs from Begin to the stride boundary measured
// from the aligned-down begin; later tiles start on that grid. All tiles are
// clipped to [Begin, End). A dim with End < Begin (a backward step) is
// visited as a single tile. Walk stops at the first error returned by fn.
func Walk(s ScanIndices, fn func(NanoRange) error) error {
	n := s.NumDims()
	r := NanoRange{Start: NewIndices(n), Stop: NewIndices(n)}
	return walkDim(s, 0, &r, fn)
}

func walkDim(s ScanIndices, d int, r *NanoRange, fn func(NanoRange) error) error {
	if d == s.NumDims() {
		return fn(NanoRange{Start: r.Start.Clone(), Stop: r.Stop.Clone()})
	}

	b, e := s.Begin[d], s.End[d]
	if e < b {
		r.Start[d], r.Stop[d] = b, e
		return walkDim(s, d+1, r, fn)
	}

	stride := s.Stride[d]
	if stride < 1 {
		stride = e - b
	}
	align := s.Align[d]

	for start := b; start < e; {
		stop := start + stride
		if align > 1 {
			stop = RoundDownFlr(start-s.AlignOfs[d], align) + s.AlignOfs[d] + stride
			if stop <= start {
				stop = start + stride
			}
		}
		if stop > e {
			stop = e
		}
		r.Start[d], r.Stop[d] = start, stop
		if err := walkDim(s, d+1, r, fn); err != nil {
			return err
		}
		start = stop
	}
	return nil
}
