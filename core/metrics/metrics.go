package metrics

import "time"

// CommandRecord represents one power command outcome to be recorded.
type CommandRecord struct {
	ComponentID  string
	PowerKW      float64
	Acknowledged bool
	Error        string
	Time         time.Time
}

// Sink records command outcomes for observability purposes.
type Sink interface {
	RecordCommands(records []CommandRecord) error
}

// ResolutionRecord captures one management recomputation.
type ResolutionRecord struct {
	Category  string
	Target    float64
	HasTarget bool
	Proposals int
	Time      time.Time
}

// ResolutionRecorder is implemented by sinks able to record power
// resolutions.
type ResolutionRecorder interface {
	RecordResolution(rec ResolutionRecord) error
}

// BlockedRecorder is implemented by sinks able to record the number of
// blocked components.
type BlockedRecorder interface {
	RecordBlockedComponents(category string, blocked int) error
}

// NopSink implements Sink with no-op methods.
type NopSink struct{}

func (NopSink) RecordCommands([]CommandRecord) error      { return nil }
func (NopSink) RecordResolution(ResolutionRecord) error   { return nil }
func (NopSink) RecordBlockedComponents(string, int) error { return nil }
