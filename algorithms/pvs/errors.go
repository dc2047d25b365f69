package pvs

import "fmt"

// Reasons reported by estimator initialization
const (
	ReasonUnsupportedFormat  = "unsupported spectral format"
	ReasonSlidingUnsupported = "sliding representation unsupported"
	ReasonAmpFreqRequired    = "AMP_FREQ required"
)

// ConfigError is returned when an estimator cannot be bound to a frame.
// It only ever occurs at initialization; compute calls never fail.
type ConfigError struct {
	Op     string
	Reason string
}

func (e *ConfigError) Error() string {
	if e.Op == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Reason)
}
