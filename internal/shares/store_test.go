package shares

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTest(t *testing.T) *Store {
	t.Helper()

	s, err := Open(Config{Path: filepath.Join(t.TempDir(), "shares.db")})
	require.NoError(t, err)
	require.NotNil(t, s)

	t.Cleanup(func() {
		s.Close()
	})
	return s
}

func TestPutGet(t *testing.T) {
	s := setupTest(t)
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, s.Put(Share{Filename: "report.pdf", Path: "/data/report.pdf", PublishedAt: now}))

	got, err := s.Get("report.pdf")
	require.NoError(t, err)
	assert.Equal(t, "/data/report.pdf", got.Path)
	assert.True(t, now.Equal(got.PublishedAt))

	_, err = s.Get("missing.txt")
	assert.ErrorIs(t, err, ErrShareNotFound)

	assert.ErrorIs(t, s.Put(Share{}), ErrEmptyFilename)
}

func TestAllOrderedByPublication(t *testing.T) {
	s := setupTest(t)
	base := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, s.Put(Share{Filename: "b.txt", PublishedAt: base.Add(2 * time.Second)}))
	require.NoError(t, s.Put(Share{Filename: "a.txt", PublishedAt: base.Add(time.Second)}))
	require.NoError(t, s.Put(Share{Filename: "c.txt", PublishedAt: base.Add(3 * time.Second)}))

	all, err := s.All()
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "a.txt", all[0].Filename)
	assert.Equal(t, "b.txt", all[1].Filename)
	assert.Equal(t, "c.txt", all[2].Filename)
}

func TestDelete(t *testing.T) {
	s := setupTest(t)

	require.NoError(t, s.Put(Share{Filename: "a.txt"}))
	require.NoError(t, s.Delete("a.txt"))
	require.NoError(t, s.Delete("a.txt"))

	all, err := s.All()
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestReopenKeepsShares(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shares.db")

	s, err := Open(Config{Path: path})
	require.NoError(t, err)
	require.NoError(t, s.Put(Share{Filename: "kept.txt"}))
	require.NoError(t, s.Close())

	s, err = Open(Config{Path: path})
	require.NoError(t, err)
	defer s.Close()

	got, err := s.Get("kept.txt")
	require.NoError(t, err)
	assert.Equal(t, "kept.txt", got.Filename)
}
