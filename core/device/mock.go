package device

import (
	"fmt"
	"sync"
	"time"
)

// Mock is a Client used in tests and simulations. Commands are recorded and
// acknowledged immediately unless the component is configured to fail or to
// withhold its ack.
type Mock struct {
	Commands map[string]float64
	FailIDs  map[string]bool
	NoAckIDs map[string]bool
	mu       sync.Mutex
	acks     map[string]bool
}

// NewMock creates a new Mock client.
func NewMock() *Mock {
	return &Mock{
		Commands: make(map[string]float64),
		FailIDs:  make(map[string]bool),
		NoAckIDs: make(map[string]bool),
		acks:     make(map[string]bool),
	}
}

// SendCommand records the command or returns an error if configured to fail.
func (m *Mock) SendCommand(componentID string, powerKW float64) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailIDs[componentID] {
		return "", fmt.Errorf("publish to %s failed", componentID)
	}
	m.Commands[componentID] = powerKW
	commandID := fmt.Sprintf("cmd-%s", componentID)
	m.acks[commandID] = !m.NoAckIDs[componentID]
	return commandID, nil
}

// WaitForAck returns the stored acknowledgment without waiting.
func (m *Mock) WaitForAck(commandID string, timeout time.Duration) (bool, error) {
	m.mu.Lock()
	ok, exists := m.acks[commandID]
	m.mu.Unlock()
	if !exists {
		return false, fmt.Errorf("unknown command %s", commandID)
	}
	return ok, nil
}

// Sent returns a copy of the recorded commands.
func (m *Mock) Sent() map[string]float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make(map[string]float64, len(m.Commands))
	for k, v := range m.Commands {
		cp[k] = v
	}
	return cp
}
