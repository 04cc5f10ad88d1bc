package platform

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStore_ReadMissing(t *testing.T) {
	s := NewFileStore(afero.NewMemMapFs(), nil)
	text, ok := s.ReadText("/state/missing.json")
	assert.False(t, ok)
	assert.Empty(t, text)
}

func TestFileStore_WriteReadRoundtrip(t *testing.T) {
	fs := afero.NewMemMapFs()
	s := NewFileStore(fs, nil)

	require.NoError(t, s.WriteText("/state/nested/data.json", `{"a":1}`))

	text, ok := s.ReadText("/state/nested/data.json")
	require.True(t, ok)
	assert.Equal(t, `{"a":1}`, text)

	exists, err := afero.Exists(fs, "/state/nested/data.json.tmp")
	require.NoError(t, err)
	assert.False(t, exists, "temp file should be renamed away")
}

func TestFileStore_WriteReplacesWholeFile(t *testing.T) {
	s := NewFileStore(afero.NewMemMapFs(), nil)

	require.NoError(t, s.WriteText("/f.txt", "a much longer first version"))
	require.NoError(t, s.WriteText("/f.txt", "short"))

	text, ok := s.ReadText("/f.txt")
	require.True(t, ok)
	assert.Equal(t, "short", text)
}

func TestFileStore_DeleteFile(t *testing.T) {
	s := NewFileStore(afero.NewMemMapFs(), nil)
	require.NoError(t, s.WriteText("/pkg.zip", "zip"))

	require.NoError(t, s.DeleteFile("/pkg.zip"))
	_, ok := s.ReadText("/pkg.zip")
	assert.False(t, ok)

	assert.NoError(t, s.DeleteFile("/pkg.zip"), "deleting a missing file is not an error")
}

func TestFileStore_WriteFailure(t *testing.T) {
	s := NewFileStore(afero.NewReadOnlyFs(afero.NewMemMapFs()), nil)
	err := s.WriteText("/state/x.json", "{}")
	require.Error(t, err)
}
