package shares

import "errors"

var (
	ErrShareNotFound  = errors.New("share not found")
	ErrBucketNotFound = errors.New("bucket not found")
	ErrNilDB          = errors.New("database connection is nil")
	ErrEmptyFilename  = errors.New("share filename is empty")
)
