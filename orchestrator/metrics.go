package orchestrator

import "time"

// MetricsRecorder receives run outcomes. Names are the script ids.
type MetricsRecorder interface {
	RecordDuration(name string, duration time.Duration)
	RecordError(name string)
	RecordSuccess(name string)
}

type noopMetrics struct{}

func (noopMetrics) RecordDuration(string, time.Duration) {}
func (noopMetrics) RecordError(string)                   {}
func (noopMetrics) RecordSuccess(string)                 {}
