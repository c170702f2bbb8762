package registry

import "errors"

// ErrNotPublished is the outcome of unpublishing a file the user does not publish.
var ErrNotPublished = errors.New("file is not published by this user")
