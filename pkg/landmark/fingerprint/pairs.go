package fingerprint

// PeakPair links an anchor peak to a target peak later in the history.
type PeakPair struct {
	AnchorIndex int  // frame index of the anchor frame
	Anchor      Peak // peak in the anchor frame
	Target      Peak // peak in the target frame
	Distance    int  // age of the target frame, in retained frames
}

// PairFinder pairs the anchor frame of a PeakHistory with its target zone.
type PairFinder struct {
	Distance int // first history age inside the target zone
	Width    int // frequency width of the zone in bins, centered on the anchor
	Fanout   int // maximum pairs per anchor peak
}

// FindPairs appends the pairs of the history's oldest frame to dst.
//
// Targets are visited by increasing distance, then by increasing bin, and
// accepted greedily until Fanout pairs exist for the anchor peak. This is not
// a selection by pair salience.
func (pf PairFinder) FindPairs(h *PeakHistory, dst []PeakPair) []PeakPair {
	halfWidth := pf.Width / 2
	anchorIndex := h.OldestIndex()

	for _, anchor := range h.OldestPeaks() {
		count := 0
	zone:
		for distance := pf.Distance; distance < h.Len(); distance++ {
			for _, target := range h.Slot(distance).Peaks {
				if anchor.Index < target.Index-halfWidth || anchor.Index > target.Index+halfWidth {
					continue
				}
				dst = append(dst, PeakPair{
					AnchorIndex: anchorIndex,
					Anchor:      anchor,
					Target:      target,
					Distance:    distance,
				})
				count++
				if count >= pf.Fanout {
					break zone
				}
			}
		}
	}

	return dst
}
