package capture

// Event drives a Session. The set of events is closed.
type Event interface {
	eventName() string
}

// Start asks for the device feed.
type Start struct{}

// FeedReady reports that the feed requested in Cycle is live.
type FeedReady struct{ Cycle uint64 }

// FeedFailed reports that the feed requested in Cycle could not be acquired.
type FeedFailed struct {
	Cycle uint64
	Err   error
}

// Capture freezes Frame as the still image.
type Capture struct{ Frame []byte }

// BeginRecognition starts recognition of the captured frame.
type BeginRecognition struct{}

// RecognitionComplete delivers the text recognized for Cycle.
type RecognitionComplete struct {
	Cycle uint64
	Text  string
}

// RecognitionFailed delivers a recognition failure for Cycle.
type RecognitionFailed struct {
	Cycle uint64
	Err   error
}

// Confirm accepts the recognized text.
type Confirm struct{}

// Retake discards the photo and the recognized text and reopens the feed.
type Retake struct{}

// Cancel aborts the session.
type Cancel struct{}

func (Start) eventName() string               { return "start" }
func (FeedReady) eventName() string           { return "feed_ready" }
func (FeedFailed) eventName() string          { return "feed_failed" }
func (Capture) eventName() string             { return "capture" }
func (BeginRecognition) eventName() string    { return "begin_recognition" }
func (RecognitionComplete) eventName() string { return "recognition_complete" }
func (RecognitionFailed) eventName() string   { return "recognition_failed" }
func (Confirm) eventName() string             { return "confirm" }
func (Retake) eventName() string              { return "retake" }
func (Cancel) eventName() string              { return "cancel" }

// EventName returns the wire/log name of ev.
func EventName(ev Event) string {
	if ev == nil {
		return "nil"
	}
	return ev.eventName()
}
