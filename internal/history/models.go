package history

import "time"

// Direction tells whether this peer sent or received the file.
type Direction string

const (
	DirectionUpload   Direction = "upload"
	DirectionDownload Direction = "download"
)

// Status is the outcome of a transfer.
type Status string

const (
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusRejected  Status = "rejected"
)

// Transfer is one data-channel exchange as seen by this peer.
type Transfer struct {
	ID         string    `json:"id"`
	Direction  Direction `json:"direction"`
	Filename   string    `json:"filename"`
	Peer       string    `json:"peer,omitempty"`
	RemoteAddr string    `json:"remote_addr,omitempty"`
	Bytes      int64     `json:"bytes"`
	Status     Status    `json:"status"`
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// Filter narrows List results. Zero values match everything.
type Filter struct {
	Direction    *Direction `json:"direction,omitempty"`
	Status       *Status    `json:"status,omitempty"`
	FilenameLike string     `json:"filename_like,omitempty"`
	Limit        int        `json:"limit,omitempty"`
	Offset       int        `json:"offset,omitempty"`
}
