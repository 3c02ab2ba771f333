package models

import "errors"

var (
	// ErrTransport means a Generation Client call itself failed (network, quota, backend fault).
	ErrTransport = errors.New("generation backend request failed")
	// ErrMalformedResponse means the call succeeded but the payload has the wrong shape.
	ErrMalformedResponse = errors.New("generation backend returned a malformed response")
	// ErrInvalidEditTarget is a local precondition failure: there is no image to edit.
	ErrInvalidEditTarget = errors.New("invalid edit target")
	// ErrStorage covers durable save/load/clear failures.
	ErrStorage = errors.New("storage error")

	ErrInvalidTransition = errors.New("command not allowed in current state")
	ErrSessionNotFound   = errors.New("session not found")
	ErrInvalidInput      = errors.New("invalid input data")
	ErrNoActiveStory     = errors.New("no storybook in session")
	ErrInvalidShareLink  = errors.New("share link could not be decoded")
)
