package cloud

// FilterLabeled returns a new cloud holding only the points of c whose label
// is non-zero, in their original relative order. The header is carried over
// unchanged. This is the single step between raw engine output and what the
// node calls a segmentation result.
func FilterLabeled(c Cloud) Cloud {
	out := Cloud{
		Header: c.Header,
		Points: make([]Point, 0, len(c.Points)),
	}
	for _, p := range c.Points {
		if p.Label == Unlabeled {
			continue
		}
		out.Points = append(out.Points, p)
	}
	return out
}
