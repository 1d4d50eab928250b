package lock

import "errors"

// ErrLockTimeout is returned when a user's slot cannot be taken in time.
var ErrLockTimeout = errors.New("lock acquisition timeout")
