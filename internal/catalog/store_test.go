package catalog

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	return NewStore(filepath.Join(dir, "catalog.json"))
}

func TestStore_CreateGet(t *testing.T) {
	s := newTestStore(t)
	rec := Record{Name: "widgets", URL: "https://github.com/acme/widgets.git", Status: StatusReady}

	require.NoError(t, s.Create(rec, false))

	got, err := s.Get("widgets")
	require.NoError(t, err)
	assert.Equal(t, "widgets", got.Name)
}

func TestStore_CreateAlreadyExists(t *testing.T) {
	s := newTestStore(t)
	rec := Record{Name: "widgets"}
	require.NoError(t, s.Create(rec, false))

	err := s.Create(rec, false)
	assert.ErrorIs(t, err, ErrAlreadyExists)

	require.NoError(t, s.Create(rec, true))
}

func TestStore_GetNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Get("missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_Mutate_AtomicReadModifyWrite(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Create(Record{Name: "widgets", FileCount: 1}, false))

	rec, err := s.Mutate("widgets", func(r *Record) error {
		r.FileCount = 42
		r.UpdateInProgress = true
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, rec.FileCount)
	assert.True(t, rec.UpdateInProgress)

	got, err := s.Get("widgets")
	require.NoError(t, err)
	assert.Equal(t, 42, got.FileCount)
}

func TestStore_Mutate_NotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Mutate("missing", func(r *Record) error { return nil })
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_Mutate_FnErrorAbortsWrite(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Create(Record{Name: "widgets", FileCount: 1}, false))

	sentinel := errors.New("boom")
	_, err := s.Mutate("widgets", func(r *Record) error {
		r.FileCount = 999
		return sentinel
	})
	assert.ErrorIs(t, err, sentinel)

	got, err := s.Get("widgets")
	require.NoError(t, err)
	assert.Equal(t, 1, got.FileCount, "failed mutation must not persist")
}

func TestStore_Delete(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Create(Record{Name: "widgets"}, false))
	require.NoError(t, s.Delete("widgets"))

	_, err := s.Get("widgets")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_Delete_MissingIsNotError(t *testing.T) {
	s := newTestStore(t)
	assert.NoError(t, s.Delete("never-existed"))
}

func TestPushHistory_BoundedNewestFirst(t *testing.T) {
	rec := &Record{}
	for i := 0; i < 5; i++ {
		PushHistory(rec, HistoryEntry{NewCommit: string(rune('a' + i))}, 3)
	}
	require.Len(t, rec.UpdateHistory, 3)
	assert.Equal(t, "e", rec.UpdateHistory[0].NewCommit)
	assert.Equal(t, "d", rec.UpdateHistory[1].NewCommit)
	assert.Equal(t, "c", rec.UpdateHistory[2].NewCommit)
}

func TestSanitizeName(t *testing.T) {
	cases := map[string]string{
		"My-Repo.git":      "my-repo",
		"  Weird Name! ":   "weird-name",
		"UP":               "up0",
		"...":              "repo",
		"Already_Fine-1.0": "already_fine-1.0",
	}
	for in, want := range cases {
		got := SanitizeName(in)
		assert.Equal(t, want, got, "input %q", in)
		assert.Equal(t, got, SanitizeName(got), "sanitize must be idempotent for %q", in)
		assert.GreaterOrEqual(t, len(got), 3)
		assert.LessOrEqual(t, len(got), 63)
	}
}
