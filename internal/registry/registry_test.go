package registry

import (
	"fmt"
	"math/rand"
	"slices"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublish(t *testing.T) {
	r := New()

	assert.True(t, r.Publish("report.pdf", "alice"))
	assert.False(t, r.Publish("report.pdf", "alice"), "publish is idempotent")
	assert.True(t, r.Publish("report.pdf", "bob"))

	publishers, ok := r.Publishers("report.pdf")
	require.True(t, ok)
	assert.Equal(t, []string{"alice", "bob"}, publishers)
	assert.Equal(t, []string{"report.pdf"}, r.ListFilenames())
}

func TestUnpublish(t *testing.T) {
	r := New()
	r.Publish("report.pdf", "alice")
	r.Publish("report.pdf", "bob")

	assert.ErrorIs(t, r.Unpublish("report.pdf", "charlie"), ErrNotPublished)
	assert.ErrorIs(t, r.Unpublish("missing.txt", "alice"), ErrNotPublished)

	require.NoError(t, r.Unpublish("report.pdf", "alice"))
	publishers, ok := r.Publishers("report.pdf")
	require.True(t, ok)
	assert.Equal(t, []string{"bob"}, publishers)

	require.NoError(t, r.Unpublish("report.pdf", "bob"))
	_, ok = r.Publishers("report.pdf")
	assert.False(t, ok, "empty entries are removed")
	assert.Empty(t, r.ListFilenames())
	assert.Equal(t, 0, r.Len())
}

func TestPublishThenUnpublish(t *testing.T) {
	r := New()
	r.Publish("a.txt", "alice")
	r.Publish("f.txt", "alice")
	require.NoError(t, r.Unpublish("f.txt", "alice"))

	assert.NotContains(t, r.ListFilenames(), "f.txt")
	assert.Equal(t, []string{"a.txt"}, r.ListFilenames())
}

// TestSequences checks that any mix of publish/unpublish leaves the
// publisher set equal to the net effect applied in order.
func TestSequences(t *testing.T) {
	users := []string{"alice", "bob", "charlie"}
	rnd := rand.New(rand.NewSource(42))

	for round := 0; round < 50; round++ {
		r := New()
		var want []string

		for step := 0; step < 30; step++ {
			u := users[rnd.Intn(len(users))]
			if rnd.Intn(2) == 0 {
				r.Publish("f", u)
				if !slices.Contains(want, u) {
					want = append(want, u)
				}
				continue
			}
			err := r.Unpublish("f", u)
			if i := slices.Index(want, u); i >= 0 {
				require.NoError(t, err)
				want = slices.Delete(want, i, i+1)
			} else {
				require.ErrorIs(t, err, ErrNotPublished)
			}
		}

		got, ok := r.Publishers("f")
		if len(want) == 0 {
			assert.False(t, ok, "round %d", round)
			assert.NotContains(t, r.ListFilenames(), "f")
			continue
		}
		require.True(t, ok, "round %d", round)
		assert.ElementsMatch(t, want, got, "round %d", round)
	}
}

func TestSearch(t *testing.T) {
	r := New()
	r.Publish("document.txt", "bob")
	r.Publish("DOC.txt", "bob")
	r.Publish("mydoc.md", "alice")
	r.Publish("shared-doc.pdf", "alice")
	r.Publish("shared-doc.pdf", "bob")
	r.Publish("image.png", "bob")

	tests := []struct {
		name      string
		substring string
		excluding string
		want      []string
	}{
		{name: "match and case-sensitive near miss", substring: "doc", excluding: "alice", want: []string{"document.txt", "shared-doc.pdf"}},
		{name: "upper case only", substring: "DOC", excluding: "alice", want: []string{"DOC.txt"}},
		{name: "own exclusive files hidden", substring: "mydoc", excluding: "alice", want: nil},
		{name: "other user sees them", substring: "mydoc", excluding: "bob", want: []string{"mydoc.md"}},
		{name: "literal not regex", substring: ".*", excluding: "alice", want: nil},
		{name: "no match", substring: "zip", excluding: "alice", want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, r.Search(tt.substring, tt.excluding))
		})
	}
}

func TestConcurrentPublish(t *testing.T) {
	r := New()
	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r.Publish("shared.bin", fmt.Sprintf("user%d", i))
		}(i)
	}
	wg.Wait()

	publishers, ok := r.Publishers("shared.bin")
	require.True(t, ok)
	assert.Len(t, publishers, 50)

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, r.Unpublish("shared.bin", fmt.Sprintf("user%d", i)))
		}(i)
	}
	wg.Wait()

	_, ok = r.Publishers("shared.bin")
	assert.False(t, ok)
}
