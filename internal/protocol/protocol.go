// Package protocol defines the PeerSync control-channel grammar: request
// tokens, reply strings and the classification of inbound datagrams.
package protocol

import (
	"errors"
	"strconv"
	"strings"
)

// MaxDatagramSize is the largest UDP payload a reply can occupy.
const MaxDatagramSize = 65507

// DefaultBufferSize is the request buffer of the reference coordinator.
const DefaultBufferSize = 1024

// Request tokens.
const (
	TokenAuth         = "auth"
	TokenHeartbeat    = "HBT"
	TokenDataEndpoint = "TCP"
	TokenListPeers    = "lap"
	TokenListFiles    = "lpf"
	TokenPublish      = "pub"
	TokenUnpublish    = "unp"
	TokenSearch       = "sch"
	TokenGet          = "get"
)

// Replies.
const (
	ReplyOK                = "OK"
	ReplyError             = "ERR"
	ReplyPublished         = "File published successfully"
	ReplyUnpublished       = "File unpublished successfully"
	ReplyUnpublishFailed   = "File unpublication failed"
	ReplyNoActivePeers     = "No active peers"
	ReplyNoPublishedFiles  = "No published files"
	ReplyNoFilesFound      = "No files found"
	ReplyFileNotFound      = "File not found"
	ReplyNoActivePeerHasIt = "No active peer has this file"
)

// ListSeparator joins usernames and filenames in list replies.
const ListSeparator = ", "

// Kind is the class of a control request.
type Kind int

const (
	KindUnknown Kind = iota
	KindAuth
	KindHeartbeat
	KindDataEndpoint
	KindListPeers
	KindListFiles
	KindPublish
	KindUnpublish
	KindSearch
	KindGet
)

var kindNames = map[Kind]string{
	KindUnknown:      "UNKNOWN",
	KindAuth:         "AUTH",
	KindHeartbeat:    "HBT",
	KindDataEndpoint: "TCP",
	KindListPeers:    "LAP",
	KindListFiles:    "LPF",
	KindPublish:      "PUB",
	KindUnpublish:    "UNP",
	KindSearch:       "SCH",
	KindGet:          "GET",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "Kind(" + strconv.Itoa(int(k)) + ")"
}

var kindByToken = map[string]Kind{
	TokenAuth:         KindAuth,
	TokenHeartbeat:    KindHeartbeat,
	TokenDataEndpoint: KindDataEndpoint,
	TokenListPeers:    KindListPeers,
	TokenListFiles:    KindListFiles,
	TokenPublish:      KindPublish,
	TokenUnpublish:    KindUnpublish,
	TokenSearch:       KindSearch,
	TokenGet:          KindGet,
}

// bare commands take no argument; anything after the token makes them unknown.
var bare = map[Kind]bool{
	KindHeartbeat: true,
	KindListPeers: true,
	KindListFiles: true,
}

// Request is a classified control datagram.
type Request struct {
	Kind Kind
	// Arg is everything after the first space, without surrounding whitespace.
	Arg string
}

// Parse classifies a raw datagram by its leading token. It never fails:
// unrecognised input yields KindUnknown.
func Parse(payload []byte) Request {
	msg := strings.TrimSpace(string(payload))
	token, arg, _ := strings.Cut(msg, " ")
	arg = strings.TrimSpace(arg)

	kind, ok := kindByToken[token]
	if !ok {
		return Request{Kind: KindUnknown, Arg: msg}
	}
	if bare[kind] && arg != "" {
		return Request{Kind: KindUnknown, Arg: msg}
	}
	return Request{Kind: kind, Arg: arg}
}

var (
	ErrMalformedAuth     = errors.New("malformed auth request")
	ErrMalformedEndpoint = errors.New("malformed data endpoint")
	ErrMissingArgument   = errors.New("missing argument")
)

// Credentials extracts "<username> <password>" from an auth argument.
func Credentials(arg string) (username, password string, err error) {
	fields := strings.Fields(arg)
	if len(fields) != 2 {
		return "", "", ErrMalformedAuth
	}
	return fields[0], fields[1], nil
}

// Endpoint extracts "<host> <port>" from a data endpoint report.
func Endpoint(arg string) (host string, port int, err error) {
	fields := strings.Fields(arg)
	if len(fields) != 2 {
		return "", 0, ErrMalformedEndpoint
	}
	port, err = strconv.Atoi(fields[1])
	if err != nil || port <= 0 || port > 65535 {
		return "", 0, ErrMalformedEndpoint
	}
	return fields[0], port, nil
}

// JoinList renders a list reply, or empty when there is nothing to list.
func JoinList(items []string) string {
	return strings.Join(items, ListSeparator)
}

// SplitList is the inverse of JoinList for a non-sentinel reply.
func SplitList(reply string) []string {
	if reply == "" {
		return nil
	}
	return strings.Split(reply, ListSeparator)
}

// Location is the reply to a successful get: where to fetch the file from.
type Location struct {
	Username string
	Host     string
	Port     int
}

func (l Location) String() string {
	return l.Username + " " + l.Host + " " + strconv.Itoa(l.Port)
}

// Addr is the host:port of the publisher's data channel.
func (l Location) Addr() string {
	return joinHostPort(l.Host, l.Port)
}

// ParseLocation parses "<username> <host> <port>".
func ParseLocation(reply string) (Location, error) {
	fields := strings.Fields(reply)
	if len(fields) != 3 {
		return Location{}, errors.New("malformed location: " + reply)
	}
	port, err := strconv.Atoi(fields[2])
	if err != nil || port <= 0 || port > 65535 {
		return Location{}, errors.New("malformed location port: " + reply)
	}
	return Location{Username: fields[0], Host: fields[1], Port: port}, nil
}
