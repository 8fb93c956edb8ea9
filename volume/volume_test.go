package volume

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidNameRejectsTraversalAndSeparators(t *testing.T) {
	assert.True(t, ValidName("abc-123"))
	assert.False(t, ValidName(""))
	assert.False(t, ValidName("../etc"))
	assert.False(t, ValidName("a/b"))
	assert.False(t, ValidName(`a\b`))
	assert.False(t, ValidName("a..b/../c"))
}

func TestCreateAndDestroyRoundTrip(t *testing.T) {
	root := t.TempDir()
	svc := New(root)

	path, err := svc.Create("11111111-1111-1111-1111-111111111111")
	require.NoError(t, err)
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
	assert.True(t, filepath.IsAbs(path))

	require.NoError(t, svc.Destroy("11111111-1111-1111-1111-111111111111"))
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestDestroyOfAbsentDirectoryIsNotAnError(t *testing.T) {
	svc := New(t.TempDir())
	assert.NoError(t, svc.Destroy("22222222-2222-2222-2222-222222222222"))
}

func TestCreateRejectsUnsafeInstanceID(t *testing.T) {
	svc := New(t.TempDir())
	_, err := svc.Create("../escape")
	require.Error(t, err)
	var unsafe *ErrUnsafeName
	assert.ErrorAs(t, err, &unsafe)
}
