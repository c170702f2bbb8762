package transfer

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"peersync/internal/history"
	"peersync/internal/lib/logger/sl"
	"peersync/internal/protocol"
)

// Fetch requests filename from the responder at addr and copies the stream
// into w until the responder closes the connection.
func Fetch(ctx context.Context, addr, filename string, w io.Writer) (int64, error) {
	if !protocol.ValidFilename(filename) {
		return 0, fmt.Errorf("%w: %q", ErrInvalidFilename, filename)
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return 0, fmt.Errorf("dial %s: %w", addr, err)
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() {
		conn.Close()
	})
	defer stop()

	if _, err := conn.Write([]byte(filename)); err != nil {
		return 0, fmt.Errorf("send filename: %w", err)
	}
	if tc, ok := conn.(*net.TCPConn); ok {
		if err := tc.CloseWrite(); err != nil {
			return 0, fmt.Errorf("close write: %w", err)
		}
	}

	n, err := io.Copy(w, conn)
	if ctx.Err() != nil {
		return n, ctx.Err()
	}
	if err != nil {
		return n, fmt.Errorf("receive %s: %w", filename, err)
	}
	return n, nil
}

// Result describes a finished download.
type Result struct {
	Filename string
	From     string
	Bytes    int64
}

// Downloader saves fetched files into a directory. A partial download never
// replaces an existing file.
type Downloader struct {
	log      *slog.Logger
	dir      string
	recorder Recorder
}

func NewDownloader(dir string, recorder Recorder, log *slog.Logger) *Downloader {
	return &Downloader{
		log:      log.With(slog.String("component", "downloader")),
		dir:      dir,
		recorder: recorder,
	}
}

// Download fetches filename from the publisher at loc into the download
// directory and returns the number of bytes written.
func (d *Downloader) Download(ctx context.Context, loc protocol.Location, filename string) (int64, error) {
	const op = "transfer.Download"

	t := history.Transfer{
		ID:         uuid.NewString(),
		Direction:  history.DirectionDownload,
		Filename:   filename,
		Peer:       loc.Username,
		RemoteAddr: loc.Addr(),
		StartedAt:  time.Now(),
	}
	log := d.log.With(
		slog.String("op", op),
		slog.String("transfer_id", t.ID),
		slog.String("file", filename),
		slog.String("peer", loc.Username),
	)

	n, err := d.download(ctx, loc.Addr(), filename)
	t.Bytes = n
	t.FinishedAt = time.Now()
	if err != nil {
		log.Warn("Download failed", slog.Int64("bytes", n), sl.Err(err))
		t.Status = history.StatusFailed
		t.Error = err.Error()
	} else {
		log.Info("Download completed", slog.Int64("bytes", n))
		t.Status = history.StatusCompleted
	}

	if d.recorder != nil {
		if rerr := d.recorder.Record(context.WithoutCancel(ctx), t); rerr != nil {
			log.Warn("failed to record transfer", sl.Err(rerr))
		}
	}
	return n, err
}

func (d *Downloader) download(ctx context.Context, addr, filename string) (int64, error) {
	if !protocol.ValidFilename(filename) {
		return 0, fmt.Errorf("%w: %q", ErrInvalidFilename, filename)
	}

	tmp, err := os.CreateTemp(d.dir, "."+filename+".*.part")
	if err != nil {
		return 0, fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	n, err := Fetch(ctx, addr, filename, tmp)
	if cerr := tmp.Close(); err == nil && cerr != nil {
		err = cerr
	}
	if err != nil {
		return n, err
	}
	if n == 0 {
		return 0, ErrEmptyTransfer
	}

	if err := os.Rename(tmp.Name(), filepath.Join(d.dir, filename)); err != nil {
		return n, fmt.Errorf("save %s: %w", filename, err)
	}
	return n, nil
}
