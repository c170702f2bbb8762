package transfer

import (
	"bytes"
	"context"
	"crypto/rand"
	"net"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"peersync/internal/history"
	"peersync/internal/lib/logger/handlers/slogdiscard"
	"peersync/internal/protocol"
)

type memRecorder struct {
	mu   sync.Mutex
	rows []history.Transfer
}

func (r *memRecorder) Record(_ context.Context, t history.Transfer) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows = append(r.rows, t)
	return nil
}

func (r *memRecorder) all() []history.Transfer {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]history.Transfer(nil), r.rows...)
}

func startServer(t *testing.T, cfg ServerConfig) *Server {
	t.Helper()

	srv, err := Listen("127.0.0.1:0", cfg, slogdiscard.NewDiscardLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx) }()

	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(2 * time.Second):
			t.Error("transfer server did not stop")
		}
	})
	return srv
}

func writeFile(t *testing.T, dir, name string, data []byte) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), data, 0o644))
}

func TestFetch(t *testing.T) {
	dir := t.TempDir()
	data := make([]byte, 300_000)
	_, err := rand.Read(data)
	require.NoError(t, err)
	writeFile(t, dir, "report.pdf", data)

	rec := &memRecorder{}
	srv := startServer(t, ServerConfig{Dir: dir, Recorder: rec})

	var buf bytes.Buffer
	n, err := Fetch(context.Background(), srv.Addr().String(), "report.pdf", &buf)
	require.NoError(t, err)
	assert.Equal(t, int64(len(data)), n)
	assert.Equal(t, data, buf.Bytes())

	assert.Eventually(t, func() bool { return len(rec.all()) == 1 }, time.Second, 10*time.Millisecond)
	row := rec.all()[0]
	assert.Equal(t, history.DirectionUpload, row.Direction)
	assert.Equal(t, history.StatusCompleted, row.Status)
	assert.Equal(t, "report.pdf", row.Filename)
	assert.Equal(t, int64(len(data)), row.Bytes)
	assert.NotEmpty(t, row.ID)
}

func TestFetch_MissingFile(t *testing.T) {
	rec := &memRecorder{}
	srv := startServer(t, ServerConfig{Dir: t.TempDir(), Recorder: rec})

	var buf bytes.Buffer
	n, err := Fetch(context.Background(), srv.Addr().String(), "missing.txt", &buf)
	require.NoError(t, err)
	assert.Zero(t, n)

	assert.Eventually(t, func() bool { return len(rec.all()) == 1 }, time.Second, 10*time.Millisecond)
	assert.Equal(t, history.StatusFailed, rec.all()[0].Status)
}

func TestServer_RejectsTraversal(t *testing.T) {
	root := t.TempDir()
	shared := filepath.Join(root, "shared")
	require.NoError(t, os.Mkdir(shared, 0o755))
	writeFile(t, root, "secret.txt", []byte("secret"))

	srv := startServer(t, ServerConfig{Dir: shared})

	// bypass Fetch's own validation
	conn, err := net.Dial("tcp", srv.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte("../secret.txt"))
	require.NoError(t, err)
	require.NoError(t, conn.(*net.TCPConn).CloseWrite())

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(time.Second)))
	var buf bytes.Buffer
	_, err = buf.ReadFrom(conn)
	require.NoError(t, err)
	assert.Zero(t, buf.Len())
}

func TestFetch_InvalidFilename(t *testing.T) {
	_, err := Fetch(context.Background(), "127.0.0.1:1", "a/b", &bytes.Buffer{})
	assert.ErrorIs(t, err, ErrInvalidFilename)
}

func TestFetch_ConnectionRefused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	ln.Close()

	_, err = Fetch(context.Background(), addr, "a.txt", &bytes.Buffer{})
	assert.Error(t, err)
}

func TestServer_UploadLimit(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.txt", []byte("hello"))

	rec := &memRecorder{}
	srv := startServer(t, ServerConfig{Dir: dir, MaxUploads: 1, NameTimeout: 2 * time.Second, Recorder: rec})

	// occupies the only responder slot: never sends a filename
	hold, err := net.Dial("tcp", srv.Addr().String())
	require.NoError(t, err)
	defer hold.Close()
	time.Sleep(50 * time.Millisecond)

	var buf bytes.Buffer
	n, err := Fetch(context.Background(), srv.Addr().String(), "a.txt", &buf)
	assert.Zero(t, n)
	_ = err

	assert.Eventually(t, func() bool {
		for _, r := range rec.all() {
			if r.Status == history.StatusRejected {
				return true
			}
		}
		return false
	}, time.Second, 10*time.Millisecond)
}

func TestDownloader(t *testing.T) {
	src := t.TempDir()
	dst := t.TempDir()
	data := []byte("quarterly numbers")
	writeFile(t, src, "report.pdf", data)

	srv := startServer(t, ServerConfig{Dir: src})
	loc := protocol.Location{Username: "alice", Host: "127.0.0.1", Port: srv.Addr().Port}

	rec := &memRecorder{}
	d := NewDownloader(dst, rec, slogdiscard.NewDiscardLogger())

	n, err := d.Download(context.Background(), loc, "report.pdf")
	require.NoError(t, err)
	assert.Equal(t, int64(len(data)), n)

	got, err := os.ReadFile(filepath.Join(dst, "report.pdf"))
	require.NoError(t, err)
	assert.Equal(t, data, got)

	// missing file: nothing is written
	_, err = d.Download(context.Background(), loc, "missing.txt")
	assert.ErrorIs(t, err, ErrEmptyTransfer)
	_, statErr := os.Stat(filepath.Join(dst, "missing.txt"))
	assert.True(t, os.IsNotExist(statErr))

	entries, err := os.ReadDir(dst)
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	rows := rec.all()
	require.Len(t, rows, 2)
	assert.Equal(t, history.StatusCompleted, rows[0].Status)
	assert.Equal(t, "alice", rows[0].Peer)
	assert.Equal(t, history.StatusFailed, rows[1].Status)
}
