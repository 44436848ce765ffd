package protocol

import "time"

// SpeakRequest asks the playback service to synthesize and play text.
type SpeakRequest struct {
	UtteranceID string `json:"utterance_id"`
	Text        string `json:"text"`
	Voice       string `json:"voice,omitempty"`
}

// StopRequest interrupts playback. With UtteranceID set it only stops that
// utterance; left empty it stops whatever is playing.
type StopRequest struct {
	UtteranceID string    `json:"utterance_id,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// PlaybackStatus is broadcast for every playback state change.
type PlaybackStatus struct {
	UtteranceID string    `json:"utterance_id"`
	State       string    `json:"state"`
	Detail      string    `json:"detail,omitempty"`
	Bytes       int64     `json:"bytes,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

const (
	SubjectSpeakRequest = "speak.request"
	SubjectSpeakStop    = "speak.stop"
	SubjectStatusPrefix = "speak.status"
)

// StatusSubject returns the per-state status subject, e.g. "speak.status.completed".
func StatusSubject(state string) string {
	return SubjectStatusPrefix + "." + state
}
