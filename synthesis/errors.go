package synthesis

import "errors"

// ErrGeneratorRequired is returned when a generator is not provided.
var ErrGeneratorRequired = errors.New("generator required")
