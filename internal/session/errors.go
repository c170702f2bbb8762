package session

import "errors"

var ErrDuplicateUsername = errors.New("username already active at another address")
