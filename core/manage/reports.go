package manage

import (
	"sync"

	"github.com/kilianp07/microgrid/core/model"
	"github.com/kilianp07/microgrid/internal/broadcast"
)

// ReportRegistry hands out one resend-latest broadcast channel per component
// group, so bounds subscribers always receive the latest report first. It is
// the only piece of management state shared outside the actor goroutine.
type ReportRegistry struct {
	mu       sync.Mutex
	channels map[string]*broadcast.Broadcast[model.Report]
}

// NewReportRegistry creates an empty registry.
func NewReportRegistry() *ReportRegistry {
	return &ReportRegistry{channels: make(map[string]*broadcast.Broadcast[model.Report])}
}

// Subscribe returns a receiver for the reports of the given component group.
func (r *ReportRegistry) Subscribe(ids []model.ComponentID) *broadcast.Receiver[model.Report] {
	return r.channel(groupKey(ids)).NewReceiver()
}

// publish sends the report on the group's channel.
func (r *ReportRegistry) publish(key string, report model.Report) {
	r.channel(key).Send(report)
}

func (r *ReportRegistry) channel(key string) *broadcast.Broadcast[model.Report] {
	r.mu.Lock()
	defer r.mu.Unlock()
	ch, ok := r.channels[key]
	if !ok {
		ch = broadcast.New[model.Report]("reports:"+key, broadcast.WithResendLatest())
		r.channels[key] = ch
	}
	return ch
}

// Close closes every group channel.
func (r *ReportRegistry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ch := range r.channels {
		ch.Close()
	}
	r.channels = make(map[string]*broadcast.Broadcast[model.Report])
}
