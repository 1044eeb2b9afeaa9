package storage

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	return ForContract(t.TempDir(), "123", nil)
}

func writePointer(t *testing.T, s *Store, body string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(s.Dir(), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(s.Dir(), "last.json"), []byte(body), 0o644))
}

func readPointerJSON(t *testing.T, s *Store) map[string]any {
	t.Helper()
	raw, err := os.ReadFile(filepath.Join(s.Dir(), "last.json"))
	require.NoError(t, err)
	var m map[string]any
	require.NoError(t, json.Unmarshal(raw, &m))
	return m
}

func TestStore_NoHistory(t *testing.T) {
	s := newStore(t)

	_, err := s.Pointer()
	assert.ErrorIs(t, err, ErrNoHistory)

	name, ok := s.LastFilename()
	assert.False(t, ok)
	assert.Empty(t, name)

	content, err := s.LastContent()
	assert.NoError(t, err)
	assert.Nil(t, content)
}

func TestStore_MalformedRecordIsNoHistory(t *testing.T) {
	for name, body := range map[string]string{
		"not json":        "{not json",
		"bare string":     `"2024-01-01.pdf"`,
		"missing field":   `{"other": 1}`,
		"wrong type":      `{"last_name": 42}`,
		"empty name":      `{"last_name": ""}`,
		"path escape":     `{"last_name": "../secret.pdf"}`,
		"parent dir name": `{"last_name": ".."}`,
	} {
		t.Run(name, func(t *testing.T) {
			s := newStore(t)
			writePointer(t, s, body)

			_, err := s.Pointer()
			assert.ErrorIs(t, err, ErrCorruptPointer)

			_, ok := s.LastFilename()
			assert.False(t, ok)

			content, err := s.LastContent()
			assert.NoError(t, err)
			assert.Nil(t, content)
		})
	}
}

func TestStore_SaveThenUpdateLast(t *testing.T) {
	s := newStore(t)
	data := []byte("%PDF-1.4 receipt")

	path, err := s.SaveReceipt("2024-03-01.pdf", data)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(s.Dir(), "2024-03-01.pdf"), path)

	require.NoError(t, s.UpdateLast("2024-03-01.pdf"))

	name, ok := s.LastFilename()
	require.True(t, ok)
	assert.Equal(t, "2024-03-01.pdf", name)

	content, err := s.LastContent()
	require.NoError(t, err)
	assert.Equal(t, data, content)
	assert.Equal(t, map[string]any{"last_name": "2024-03-01.pdf"}, readPointerJSON(t, s))
}

func TestStore_UpdateLastIsIdempotent(t *testing.T) {
	s := newStore(t)
	_, err := s.SaveReceipt("2024-03-01.pdf", []byte("x"))
	require.NoError(t, err)

	require.NoError(t, s.UpdateLast("2024-03-01.pdf"))
	first := readPointerJSON(t, s)
	require.NoError(t, s.UpdateLast("2024-03-01.pdf"))

	name, ok := s.LastFilename()
	require.True(t, ok)
	assert.Equal(t, "2024-03-01.pdf", name)
	assert.Equal(t, first, readPointerJSON(t, s))
}

func TestStore_UpdateLastPreservesOtherFields(t *testing.T) {
	s := newStore(t)
	writePointer(t, s, `{"last_name": "2024-02-01.pdf", "note": "keep me", "count": 3}`)
	_, err := s.SaveReceipt("2024-03-01.pdf", []byte("x"))
	require.NoError(t, err)

	require.NoError(t, s.UpdateLast("2024-03-01.pdf"))

	assert.Equal(t, map[string]any{
		"last_name": "2024-03-01.pdf",
		"note":      "keep me",
		"count":     float64(3),
	}, readPointerJSON(t, s))

	p, err := s.Pointer()
	require.NoError(t, err)
	assert.Equal(t, "keep me", p.Fields()["note"])
}

func TestStore_UpdateLastReplacesCorruptRecord(t *testing.T) {
	s := newStore(t)
	writePointer(t, s, "garbage")
	_, err := s.SaveReceipt("2024-03-01.pdf", []byte("x"))
	require.NoError(t, err)

	require.NoError(t, s.UpdateLast("2024-03-01.pdf"))
	assert.Equal(t, map[string]any{"last_name": "2024-03-01.pdf"}, readPointerJSON(t, s))
}

func TestStore_UpdateLastRequiresExistingFile(t *testing.T) {
	s := newStore(t)

	err := s.UpdateLast("2024-03-01.pdf")
	assert.ErrorIs(t, err, ErrWrite)

	_, ok := s.LastFilename()
	assert.False(t, ok)
}

func TestStore_MissingReceiptIsReported(t *testing.T) {
	s := newStore(t)
	writePointer(t, s, `{"last_name": "2024-01-01.pdf"}`)

	name, ok := s.LastFilename()
	require.True(t, ok)
	assert.Equal(t, "2024-01-01.pdf", name)

	content, err := s.LastContent()
	assert.ErrorIs(t, err, ErrMissingReceipt)
	assert.Nil(t, content)
}

func TestStore_RejectsInvalidNames(t *testing.T) {
	s := newStore(t)
	for _, name := range []string{"", ".", "..", "../x.pdf", "sub/x.pdf", "last.json"} {
		_, err := s.SaveReceipt(name, []byte("x"))
		assert.ErrorIs(t, err, ErrInvalidName, name)
		assert.ErrorIs(t, s.UpdateLast(name), ErrInvalidName, name)
	}
}

func TestStore_SaveReceiptOverwritesSameDay(t *testing.T) {
	s := newStore(t)
	_, err := s.SaveReceipt("2024-03-01.pdf", []byte("first"))
	require.NoError(t, err)
	_, err = s.SaveReceipt("2024-03-01.pdf", []byte("second"))
	require.NoError(t, err)

	got, err := os.ReadFile(s.Path("2024-03-01.pdf"))
	require.NoError(t, err)
	assert.Equal(t, "second", string(got))

	entries, err := os.ReadDir(s.Dir())
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")
}

func TestStore_SaveReceiptFailsWhenNamespaceIsAFile(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "123"), []byte("blocker"), 0o644))
	s := ForContract(root, "123", nil)

	_, err := s.SaveReceipt("2024-03-01.pdf", []byte("x"))
	assert.ErrorIs(t, err, ErrWrite)
}
