package scope

import "fmt"

// ConfigurationError reports a requested setting that cannot be legalized.
// Applying a settings update that produces one leaves the microscope in its
// prior state.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e ConfigurationError) Error() string {
	return fmt.Sprintf("scope: bad setting %s: %s", e.Field, e.Reason)
}

// ResourceExceededError reports a derived acquisition that would overrun a
// hard budget, for example the allocation ceiling or the maximum scan range.
type ResourceExceededError struct {
	Which string
	Need  int64
	Limit int64
}

func (e ResourceExceededError) Error() string {
	return fmt.Sprintf("scope: %s needs %d, limit %d", e.Which, e.Need, e.Limit)
}

// HardwareFault wraps a device error raised during an acquisition or apply.
// The owning task releases custody before reporting it, so a fault never
// wedges the instrument.
type HardwareFault struct {
	Device string
	Err    error
}

func (e HardwareFault) Error() string {
	return fmt.Sprintf("scope: %s fault: %v", e.Device, e.Err)
}

func (e HardwareFault) Unwrap() error { return e.Err }

// faultf wraps a device error as a HardwareFault, passing nil through.
func faultf(device string, err error) error {
	if err == nil {
		return nil
	}
	return HardwareFault{Device: device, Err: err}
}
