// Package advisor provides the client boundary to the AI strategy advisor.
package advisor

import "errors"

var (
	// ErrAdvisorUnavailable indicates the advisor endpoint is unreachable
	ErrAdvisorUnavailable = errors.New("advisor unavailable")

	// ErrEmptyPrompt indicates a blank prompt was submitted
	ErrEmptyPrompt = errors.New("prompt is empty")

	// ErrEmptyResponse indicates the advisor returned no usable text
	ErrEmptyResponse = errors.New("advisor returned empty response")

	// ErrInvalidResponse indicates the advisor response could not be decoded
	ErrInvalidResponse = errors.New("invalid advisor response")

	// ErrNoModels indicates the endpoint reported no installed models
	ErrNoModels = errors.New("no models available at advisor endpoint")
)
