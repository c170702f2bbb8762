package peer

import "errors"

var (
	ErrNoResponse      = errors.New("no response from coordinator")
	ErrAuthRejected    = errors.New("authentication rejected")
	ErrRejected        = errors.New("request rejected by coordinator")
	ErrNotPublished    = errors.New("file is not published by this peer")
	ErrFileNotFound    = errors.New("file not found")
	ErrNoActivePeer    = errors.New("no active peer has this file")
	ErrInvalidFilename = errors.New("invalid filename")
	ErrUnexpectedReply = errors.New("unexpected reply")
)
