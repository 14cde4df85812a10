package models

import "errors"

// Custom errors
var (
	ErrNotFound          = errors.New("record not found")
	ErrEmptyStrategyCode = errors.New("strategy code must be a non-empty string")
	ErrEmptyStrategyHash = errors.New("strategy hash must be a non-empty string")
	ErrEmptyRunType      = errors.New("run type must be a non-empty string")
	ErrInvalidRunID      = errors.New("run id must be a positive integer")
	ErrInvalidRating     = errors.New("rating must be an integer between 1 and 5")
	ErrInvalidLimit      = errors.New("limit out of range")
)
