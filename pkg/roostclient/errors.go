package roostclient

import (
	"errors"
	"fmt"
)

var (
	ErrUsernameTaken = errors.New("username is already taken")
	ErrNotJoined     = errors.New("engine has not joined the server")
	ErrStarted       = errors.New("engine already started")
)

// ConnError is a failure of the connection to the server.
type ConnError struct {
	Op  string
	Err error
}

func (e *ConnError) Error() string {
	return fmt.Sprintf("roost connection: %s: %v", e.Op, e.Err)
}

func (e *ConnError) Unwrap() error {
	return e.Err
}
