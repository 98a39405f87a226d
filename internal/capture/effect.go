package capture

// Effect is an instruction for the host, returned by Transition.
type Effect interface {
	effectName() string
}

// AcquireFeed asks the host to open the device feed and to report back with
// FeedReady or FeedFailed carrying Cycle.
type AcquireFeed struct{ Cycle uint64 }

// ReleaseFeed asks the host to close the device feed.
type ReleaseFeed struct{}

// Recognize asks the host to run recognition on Frame and to report back with
// RecognitionComplete or RecognitionFailed carrying Cycle.
type Recognize struct {
	Cycle  uint64
	Target Target
	Frame  []byte
}

// DiscardFrame tells the host that the current cycle is abandoned: its frame
// and any in-flight acquisition or recognition are no longer needed.
type DiscardFrame struct{}

// Deliver hands the confirmed text to the host.
type Deliver struct {
	Target Target
	Text   string
}

func (AcquireFeed) effectName() string  { return "acquire_feed" }
func (ReleaseFeed) effectName() string  { return "release_feed" }
func (Recognize) effectName() string    { return "recognize" }
func (DiscardFrame) effectName() string { return "discard_frame" }
func (Deliver) effectName() string      { return "deliver" }

// EffectName returns the log name of e.
func EffectName(e Effect) string {
	if e == nil {
		return "nil"
	}
	return e.effectName()
}
