package services

import "errors"

// Sentinel errors for the settlement core. Handlers branch on these with
// errors.Is; every failure is terminal for the call that produced it and
// leaves state untouched.
var (
	// authorization failures
	ErrInvalidSignature    = errors.New("invalid signature")
	ErrUnknownPayer        = errors.New("unknown payer")
	ErrEmptyPayload        = errors.New("empty authorization payload")
	ErrProviderNotApproved = errors.New("provider not approved")

	// timing / window violations
	ErrTooEarly                 = errors.New("too early")
	ErrPeriodExpired            = errors.New("proving period expired")
	ErrAlreadyProven            = errors.New("already proven this period")
	ErrChallengeWindowViolation = errors.New("challenge epoch outside challenge window")
	ErrInsufficientChallenges   = errors.New("challenge count below minimum")
	ErrNotActive                = errors.New("proving not activated")
	ErrEmptyDataset             = errors.New("dataset has no content")

	// referential errors
	ErrDatasetNotFound = errors.New("dataset not found")
	ErrNotRegistered   = errors.New("dataset not registered with payments")
	ErrUnknownRail     = errors.New("unknown rail")

	// arithmetic guards
	ErrEmptyRange = errors.New("empty epoch range")
)
