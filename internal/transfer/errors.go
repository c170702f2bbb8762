package transfer

import "errors"

var (
	ErrInvalidFilename = errors.New("invalid filename")
	ErrEmptyTransfer   = errors.New("peer sent no data")
	ErrTooManyUploads  = errors.New("too many concurrent uploads")
)
