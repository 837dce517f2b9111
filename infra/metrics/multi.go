package metrics

import coremetrics "github.com/kilianp07/microgrid/core/metrics"

// MultiSink fans records out to multiple sinks.
type MultiSink struct {
	Sinks []coremetrics.Sink
}

// NewMultiSink creates a MultiSink with the provided sinks.
func NewMultiSink(sinks ...coremetrics.Sink) *MultiSink {
	return &MultiSink{Sinks: sinks}
}

// RecordCommands forwards the records to all sinks, returning the first
// error encountered.
func (m *MultiSink) RecordCommands(records []coremetrics.CommandRecord) error {
	for _, s := range m.Sinks {
		if err := s.RecordCommands(records); err != nil {
			return err
		}
	}
	return nil
}

// RecordResolution forwards resolution records to the sinks that accept them.
func (m *MultiSink) RecordResolution(rec coremetrics.ResolutionRecord) error {
	for _, s := range m.Sinks {
		if r, ok := s.(coremetrics.ResolutionRecorder); ok {
			if err := r.RecordResolution(rec); err != nil {
				return err
			}
		}
	}
	return nil
}

// RecordBlockedComponents forwards the blocked count to the sinks that
// accept it.
func (m *MultiSink) RecordBlockedComponents(category string, blocked int) error {
	for _, s := range m.Sinks {
		if r, ok := s.(coremetrics.BlockedRecorder); ok {
			if err := r.RecordBlockedComponents(category, blocked); err != nil {
				return err
			}
		}
	}
	return nil
}
