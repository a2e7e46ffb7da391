package landmark

import "github.com/himanishpuri/landmark/pkg/landmark/fingerprint"

// Hash is a packed 24-bit peak pair, see fingerprint.EncodePair.
type Hash = fingerprint.Hash

// HashBatch holds the hashes generated for one anchor frame.
type HashBatch struct {
	TrackRef    string // caller supplied track reference
	AnchorIndex int    // frame index of the anchor frame
	TotalFrames int    // window count reported by the source
	Hashes      []Hash // owned by the receiver
}

// FrameEvent describes one retained frame for diagnostics. Spectrum and
// Residual are copies with the selected peak bins set to 0, so the peaks
// stand out when drawn. They are only valid during the FrameSink call.
type FrameEvent struct {
	TrackRef    string
	FrameIndex  int
	TotalFrames int
	Spectrum    []float64
	Residual    []float64
}

// Summary describes a finished run.
type Summary struct {
	TotalFrames    int // frames reported by the source
	RetainedFrames int // frames that passed the silence gate
	DroppedFrames  int // frames dropped as silent
	Batches        int // hash batches emitted
	Hashes         int // hashes emitted over all batches
}

// Collector is a Sink that keeps every batch in memory.
type Collector struct {
	Batches []HashBatch
}

func (c *Collector) Hashes(batch HashBatch) error {
	c.Batches = append(c.Batches, batch)
	return nil
}

// All returns the collected hashes in emission order.
func (c *Collector) All() []Hash {
	n := 0
	for _, b := range c.Batches {
		n += len(b.Hashes)
	}
	out := make([]Hash, 0, n)
	for _, b := range c.Batches {
		out = append(out, b.Hashes...)
	}
	return out
}
