package handlers

import (
	"errors"
	"net/http"

	"github.com/federated-storage/proofpay/internal/services"
)

// statusFor maps service sentinel errors onto HTTP status codes. Unknown
// errors are internal.
func statusFor(err error) int {
	switch {
	case errors.Is(err, services.ErrDatasetNotFound),
		errors.Is(err, services.ErrUnknownRail):
		return http.StatusNotFound
	case errors.Is(err, services.ErrInvalidSignature),
		errors.Is(err, services.ErrUnknownPayer):
		return http.StatusUnauthorized
	case errors.Is(err, services.ErrProviderNotApproved):
		return http.StatusForbidden
	case errors.Is(err, services.ErrAlreadyProven),
		errors.Is(err, services.ErrTooEarly),
		errors.Is(err, services.ErrPeriodExpired),
		errors.Is(err, services.ErrChallengeWindowViolation),
		errors.Is(err, services.ErrNotActive):
		return http.StatusConflict
	case errors.Is(err, services.ErrEmptyPayload),
		errors.Is(err, services.ErrInsufficientChallenges),
		errors.Is(err, services.ErrEmptyDataset),
		errors.Is(err, services.ErrNotRegistered),
		errors.Is(err, services.ErrEmptyRange):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
