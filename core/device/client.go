package device

import "time"

// Client sends power commands to components and waits for their
// acknowledgments. Implementations live in infra; the core only depends on
// this interface.
type Client interface {
	// SendCommand sends a power setpoint in kW (passive sign convention) to
	// the given component and returns the command identifier used to track
	// the acknowledgment.
	SendCommand(componentID string, powerKW float64) (commandID string, err error)

	// WaitForAck waits for the acknowledgment of the given command or until
	// the timeout expires.
	WaitForAck(commandID string, timeout time.Duration) (bool, error)
}
