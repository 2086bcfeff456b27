package fsutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindFiles(t *testing.T) {
	// --- Arrange ---
	root := t.TempDir()
	for _, name := range []string{"b/PRECC_000101_000112.nc", "a/TREFHT_000101_000112.nc", "a/notes.txt", "mpaso_in"} {
		p := filepath.Join(root, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, nil, 0o644))
	}

	// --- Act ---
	nc, err := FindFilesByExtension(root, ".nc")
	require.NoError(t, err)
	all, err := FindFiles(root, nil)
	require.NoError(t, err)

	// --- Assert ---
	assert.Equal(t, []string{
		filepath.Join(root, "a/TREFHT_000101_000112.nc"),
		filepath.Join(root, "b/PRECC_000101_000112.nc"),
	}, nc)
	assert.Len(t, all, 4)
	assert.True(t, Exists(filepath.Join(root, "mpaso_in")))
	assert.False(t, Exists(filepath.Join(root, "nope")))
}

func TestFindFilesByExtension_PanicsOnEmptyExtension(t *testing.T) {
	assert.Panics(t, func() { FindFilesByExtension(t.TempDir(), "") })
}

func TestFindFiles_MissingRoot(t *testing.T) {
	_, err := FindFiles(filepath.Join(t.TempDir(), "missing"), nil)
	assert.Error(t, err)
}
