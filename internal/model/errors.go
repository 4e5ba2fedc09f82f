package model

import "errors"

var (
	// ErrInvalidRule reports a malformed recurrence rule (unknown frequency,
	// negative interval or count, or a rule yielding too many instances).
	ErrInvalidRule = errors.New("invalid recurrence rule")

	// ErrInvalidRange reports an end that is not after its start.
	ErrInvalidRange = errors.New("end must be after start")

	// ErrNaiveTimestamp reports a floating (zone-less) timestamp passed
	// where a zone-aware one is required.
	ErrNaiveTimestamp = errors.New("naive timestamp where aware one is required")

	// ErrInvalidGridConfig reports a non-positive grid duration or interval.
	ErrInvalidGridConfig = errors.New("invalid timeslot grid config")

	ErrLocationNotFound = errors.New("location not found")
	ErrNotFound         = errors.New("not found")
	ErrValidation       = errors.New("validation failed")
)
