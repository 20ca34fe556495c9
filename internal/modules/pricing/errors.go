// README: Pricing error taxonomy; callers match with errors.Is.
package pricing

import "errors"

var (
	// ErrInvalidInput rejects a request before any computation starts.
	ErrInvalidInput = errors.New("invalid fare request")
	// ErrConfigNotFound means no location or rate card exists for the request.
	ErrConfigNotFound = errors.New("pricing config not found")
	// ErrTierRangeExceeded means the distance tiers do not cover the trip.
	ErrTierRangeExceeded = errors.New("distance exceeds configured tiers")
	// ErrInvalidConfig is returned when loading a rate sheet that breaks an invariant.
	ErrInvalidConfig = errors.New("invalid pricing config")
)
