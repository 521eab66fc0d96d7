package flagstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestActiveLibraryRoundTrip(t *testing.T) {
	s, err := Open("", nil)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	id, err := s.ActiveLibrary()
	require.NoError(t, err)
	assert.Empty(t, id)

	require.NoError(t, s.SetActiveLibrary("lib-1"))
	id, err = s.ActiveLibrary()
	require.NoError(t, err)
	assert.Equal(t, "lib-1", id)

	require.NoError(t, s.SetActiveLibrary(""))
	id, err = s.ActiveLibrary()
	require.NoError(t, err)
	assert.Empty(t, id)
}

func TestPersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()

	s, err := Open(dir, nil)
	require.NoError(t, err)
	require.NoError(t, s.SetActiveLibrary("lib-2"))
	require.NoError(t, s.Close())

	s, err = Open(dir, nil)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	id, err := s.ActiveLibrary()
	require.NoError(t, err)
	assert.Equal(t, "lib-2", id)
}

func TestDeleteMissingKeyIsNoop(t *testing.T) {
	s, err := Open("", nil)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	assert.NoError(t, s.Set("never-written", ""))
}

func TestInboxChecksums(t *testing.T) {
	s, err := Open("", nil)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	require.NoError(t, s.SetInboxChecksum("inbox/a.json", "abc"))
	sum, err := s.InboxChecksum("inbox/a.json")
	require.NoError(t, err)
	assert.Equal(t, "abc", sum)

	other, err := s.InboxChecksum("inbox/b.json")
	require.NoError(t, err)
	assert.Empty(t, other)

	active, err := s.ActiveLibrary()
	require.NoError(t, err)
	assert.Empty(t, active, "inbox keys must not collide with session keys")
}
