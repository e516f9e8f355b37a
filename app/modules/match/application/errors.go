package matchservice

import "errors"

// ErrMatchNotFound indicates the requested match does not exist.
var ErrMatchNotFound = errors.New("match not found")
