package quota

import "errors"

var (
	// ErrUsageRepositoryRequired is returned when a usage repository is not provided.
	ErrUsageRepositoryRequired = errors.New("usage repository required")

	// ErrInvalidLimit is returned when a daily limit is not positive.
	ErrInvalidLimit = errors.New("daily limit must be positive")
)
