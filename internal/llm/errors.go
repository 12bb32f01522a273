package llm

import "errors"

var (
	// ErrUnavailable indicates the model endpoint could not serve the request.
	ErrUnavailable = errors.New("llm endpoint unavailable")

	// ErrTimeout indicates the request exceeded its deadline.
	ErrTimeout = errors.New("llm request timed out")

	// ErrInvalidOutput indicates the response could not be parsed into the expected shape.
	ErrInvalidOutput = errors.New("invalid llm output format")

	// ErrDisabled is returned by a client built without an API key.
	ErrDisabled = errors.New("llm client disabled")
)
