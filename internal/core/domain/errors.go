package domain

import (
	"errors"
	"fmt"
)

// =============================================================================
// Deployment Error Taxonomy
// =============================================================================

var (
	// ErrValidation is returned when a descriptor is missing a required field.
	// Raised before any side effect.
	ErrValidation = errors.New("validation error")

	// ErrExternalTool is returned when git, an image build, the install
	// subprocess or the pre-install hook fails.
	ErrExternalTool = errors.New("external tool error")

	// ErrPlatformUnavailable is returned when the platform API cannot be reached.
	ErrPlatformUnavailable = errors.New("platform unavailable")

	// ErrVerificationMismatch is returned when an install reported success but
	// the platform does not list the application.
	ErrVerificationMismatch = errors.New("verification mismatch")

	// ErrTimeout is returned when an install or hook exceeded its maximum duration.
	ErrTimeout = errors.New("timeout")
)

// PhaseError records the pipeline phase in which a run failed.
type PhaseError struct {
	AppID string
	Phase AppStatus
	Err   error
}

func (e *PhaseError) Error() string {
	return fmt.Sprintf("%s: %s failed: %v", e.AppID, e.Phase, e.Err)
}

func (e *PhaseError) Unwrap() error {
	return e.Err
}

// NewPhaseError creates a new PhaseError.
func NewPhaseError(appID string, phase AppStatus, err error) *PhaseError {
	return &PhaseError{AppID: appID, Phase: phase, Err: err}
}

// ErrorKind names the taxonomy entry an error belongs to, for logs and API output.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.Is(err, ErrVerificationMismatch):
		return "verification_mismatch"
	case errors.Is(err, ErrPlatformUnavailable):
		return "platform_unavailable"
	case errors.Is(err, ErrExternalTool):
		return "external_tool"
	default:
		return "internal"
	}
}
