package fingerprint

import "iter"

// FlushIndex marks history slots that do not belong to a real frame: the
// pre-seeded empty slots and the synthetic frames injected at stream end.
const FlushIndex = -1

// Slot is one frame's entry in a PeakHistory.
type Slot struct {
	FrameIndex int
	Peaks      []Peak
}

// PeakHistory is a fixed-size FIFO of per-frame peak lists spanning a whole
// target zone. It is always full: the oldest slot (age 0) is the anchor frame
// for pairing, and adding a frame recycles that slot's storage as the newest.
type PeakHistory struct {
	slots  []Slot
	cursor int // position of the oldest slot, also the next write position
}

// NewPeakHistory returns a history of length slots pre-seeded with empty
// FlushIndex entries whose peak storage holds maxPeaks peaks.
func NewPeakHistory(length, maxPeaks int) *PeakHistory {
	slots := make([]Slot, length)
	for i := range slots {
		slots[i] = Slot{
			FrameIndex: FlushIndex,
			Peaks:      make([]Peak, 0, maxPeaks),
		}
	}
	return &PeakHistory{slots: slots}
}

// Add stores peaks as the newest frame, evicting the oldest one.
// peaks is copied; the caller may reuse it.
func (h *PeakHistory) Add(frameIndex int, peaks []Peak) {
	s := &h.slots[h.cursor]
	s.FrameIndex = frameIndex
	s.Peaks = append(s.Peaks[:0], peaks...)
	h.cursor = (h.cursor + 1) % len(h.slots)
}

// Len is the capacity of the history.
func (h *PeakHistory) Len() int {
	return len(h.slots)
}

// Count is the number of resident slots. It always equals Len.
func (h *PeakHistory) Count() int {
	return len(h.slots)
}

// OldestIndex is the frame index of the anchor slot.
func (h *PeakHistory) OldestIndex() int {
	return h.slots[h.cursor].FrameIndex
}

// OldestPeaks are the peaks of the anchor slot.
func (h *PeakHistory) OldestPeaks() []Peak {
	return h.slots[h.cursor].Peaks
}

// Slot returns the slot at the given age, 0 being the oldest and Len()-1
// the newest. The returned peaks alias history storage.
func (h *PeakHistory) Slot(age int) Slot {
	return h.slots[(h.cursor+age)%len(h.slots)]
}

// Slots iterates from the oldest slot to the newest, yielding each slot's age.
func (h *PeakHistory) Slots() iter.Seq2[int, Slot] {
	return func(yield func(int, Slot) bool) {
		for age := range len(h.slots) {
			if !yield(age, h.Slot(age)) {
				return
			}
		}
	}
}
