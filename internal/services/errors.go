// Package services defines the business logic for birth profiles, chat
// sessions, predictions, feedback and location lookup.
// This file centralizes common service-level error values so that they can be
// consistently returned by service methods and checked by callers.
//
// These errors are intended for internal use by the service layer and translation
// into user-facing messages or HTTP status codes should be performed at the
// handler/controller layer.
package services

import "errors"

// Session and prediction errors.
var (
	// ErrSessionNotFound indicates that the session token is unknown or the
	// session has expired. The chat flow recovers from it by starting a new
	// session; only the session endpoints surface it.
	ErrSessionNotFound = errors.New("session not found")

	// ErrEmptyQuery is returned when a prediction request has a blank query.
	ErrEmptyQuery = errors.New("query is empty")

	// ErrQueryTooLong is returned when a query exceeds the configured rune limit.
	ErrQueryTooLong = errors.New("query too long")

	// ErrInvalidBirthData is returned when natal data fails validation.
	ErrInvalidBirthData = errors.New("invalid birth data")

	// ErrProfileUnavailable is returned when a profile seen for the first time
	// could not be fetched from the upstream API. There is nothing cached to
	// fall back to.
	ErrProfileUnavailable = errors.New("failed to fetch astrological data")

	// ErrOracleFailed is returned when the language model call fails or times
	// out. The user turn already persisted for the request is kept.
	ErrOracleFailed = errors.New("failed to get prediction")
)

// Feedback errors.
var (
	// ErrInvalidFeedback is returned when a feedback value is outside the
	// allowed set (currently -1 or 1).
	ErrInvalidFeedback = errors.New("feedback value must be -1 or 1")

	// ErrTurnNotFound indicates that the requested turn does not exist.
	ErrTurnNotFound = errors.New("turn not found")

	// ErrForbiddenFeedback is returned when the turn belongs to another
	// session or is not an assistant turn.
	ErrForbiddenFeedback = errors.New("cannot leave feedback on this turn")

	// ErrDuplicateFeedback is returned when the turn has already been rated.
	ErrDuplicateFeedback = errors.New("feedback already exists")
)

// Location errors.
var (
	// ErrEmptyCity is returned when a geo search has no city.
	ErrEmptyCity = errors.New("city is empty")

	// ErrSearchNotFound indicates an unknown or expired search token.
	ErrSearchNotFound = errors.New("search not found")

	// ErrLocationNotFound is returned when no stored search result matches
	// the selected name.
	ErrLocationNotFound = errors.New("selected location not found in recent search results")
)
