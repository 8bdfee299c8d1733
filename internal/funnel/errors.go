package funnel

import "errors"

var (
	// ErrSessionNotFound is returned when a session id is unknown or expired
	ErrSessionNotFound = errors.New("session not found")

	// ErrUnknownStep is returned when a session carries an unrecognized step
	ErrUnknownStep = errors.New("unknown wizard step")

	// ErrFirstStep is returned when navigating before the first step
	ErrFirstStep = errors.New("already at the first step")

	// ErrLastStep is returned when navigating past the last step
	ErrLastStep = errors.New("already at the last step")

	// ErrCalculationPending is returned when advancing out of the calculation
	// step before a result has arrived
	ErrCalculationPending = errors.New("calculation still pending")

	// ErrInvalidTransition is returned for a side-step jump that is not
	// permitted from the current step
	ErrInvalidTransition = errors.New("transition not permitted from current step")

	// ErrInvalidRegion is returned for an unrecognized region code
	ErrInvalidRegion = errors.New("unknown region")

	// ErrStaleSession is returned by Save when the stored session carries a
	// newer generation than the snapshot the write is based on
	ErrStaleSession = errors.New("session superseded by a newer generation")
)
