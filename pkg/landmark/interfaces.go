package landmark

// SpectrumSource yields one log-magnitude spectrum per STFT hop, in time order.
type SpectrumSource interface {
	// HasNext reports whether another frame can be read.
	HasNext() bool
	// ReadFrame fills buf with the next frame's WindowSize/2 magnitudes.
	ReadFrame(buf []float64) error
	// WindowCount is the total number of frames the source will yield.
	WindowCount() int
}

// Sink receives hash batches as a run produces them. Returning an error stops
// the run and the error is passed back to the caller of Generate.
type Sink interface {
	Hashes(batch HashBatch) error
}

// FrameSink is implemented by sinks that also want per-frame diagnostics.
// Frame events are only built when the sink implements it.
type FrameSink interface {
	Frame(ev FrameEvent)
}

// SinkFunc adapts a function to a Sink.
type SinkFunc func(batch HashBatch) error

func (f SinkFunc) Hashes(batch HashBatch) error {
	return f(batch)
}

type Logger interface {
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
	Debugf(format string, args ...any)
}
