package protocol

import (
	"net"
	"strconv"
	"strings"
)

// MaxFilenameLength bounds filenames accepted by peers.
const MaxFilenameLength = 255

// ValidFilename reports whether name can be shared and served from a single
// directory: non-empty, bounded, free of path separators and line breaks,
// and without leading or trailing whitespace. The control grammar trims the
// argument, so such names would not survive the round trip unchanged.
func ValidFilename(name string) bool {
	if name == "" || len(name) > MaxFilenameLength {
		return false
	}
	if strings.TrimSpace(name) != name {
		return false
	}
	if name == "." || name == ".." {
		return false
	}
	return !strings.ContainsAny(name, "/\\\x00\r\n")
}

func joinHostPort(host string, port int) string {
	return net.JoinHostPort(host, strconv.Itoa(port))
}
