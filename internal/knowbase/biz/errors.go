package biz

import "errors"

var (
	// ErrModelUnavailable indicates a transport-level failure calling the
	// language model.
	ErrModelUnavailable = errors.New("language model unavailable")

	// ErrModelOutputMalformed indicates the model reply failed schema
	// parsing.
	ErrModelOutputMalformed = errors.New("model output malformed")

	// ErrEmbeddingUnavailable indicates the embedding provider failed or
	// returned no vector.
	ErrEmbeddingUnavailable = errors.New("embedding provider unavailable")

	// ErrCitationResolutionFailed indicates a single citation could not be
	// resolved to a permalink and author.
	ErrCitationResolutionFailed = errors.New("citation resolution failed")
)
