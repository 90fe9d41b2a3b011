package matching

import "time"

// Recorder receives pipeline measurements. internal/metrics provides the
// Prometheus implementation.
type Recorder interface {
	MatchRun(path string, duration time.Duration)
	Fallback(reason string)
	Explanation(outcome string)
	PersistFailures(count int)
}

type nopRecorder struct{}

func (nopRecorder) MatchRun(string, time.Duration) {}
func (nopRecorder) Fallback(string)                {}
func (nopRecorder) Explanation(string)             {}
func (nopRecorder) PersistFailures(int)            {}

const (
	PathAI       = "ai"
	PathFallback = "fallback"
	PathEmpty    = "empty"
	PathError    = "error"

	ExplanationOK     = "ok"
	ExplanationFailed = "failed"
	ExplanationEmpty  = "empty"
)
