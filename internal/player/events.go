package player

// EventKind identifies a playback status event.
type EventKind int

const (
	KindStarted EventKind = iota
	KindProgress
	KindWordBoundary
	KindCompleted
	KindCanceled
	KindFailed
)

func (k EventKind) String() string {
	switch k {
	case KindStarted:
		return "started"
	case KindProgress:
		return "progress"
	case KindWordBoundary:
		return "word_boundary"
	case KindCompleted:
		return "completed"
	case KindCanceled:
		return "canceled"
	case KindFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Event is delivered on the controller's dispatch channel for every playback
// state change. Bytes is the running total written to the sink this cycle;
// Word is set for KindWordBoundary, Detail for KindFailed and KindCanceled.
type Event struct {
	UtteranceID string
	Kind        EventKind
	Detail      string
	Word        string
	Bytes       int64
}
