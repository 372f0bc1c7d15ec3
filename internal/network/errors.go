package network

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownUser is matched by every *UnknownUserError.
	ErrUnknownUser = errors.New("unknown user")
	// ErrUnknownPost reports a post id that is not in the network.
	ErrUnknownPost = errors.New("unknown post")
	// ErrDuplicatePost reports an explicit post id that is already taken.
	ErrDuplicatePost = errors.New("duplicate post id")
)

// UnknownUserError is returned when an operation names a user id that is not
// in the network.
type UnknownUserError struct {
	ID UserID
}

func (e *UnknownUserError) Error() string {
	return fmt.Sprintf("unknown user %q", e.ID)
}

// Is lets errors.Is(err, ErrUnknownUser) match.
func (e *UnknownUserError) Is(target error) bool {
	return target == ErrUnknownUser
}
