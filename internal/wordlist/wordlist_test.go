package wordlist

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRead(t *testing.T) {
	paths, err := Read(strings.NewReader("/etc/passwd\n\n# comment\n  /etc/hosts  \r\n/etc/passwd\n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"/etc/passwd", "/etc/hosts", "/etc/passwd"}, paths)
}

func TestLoadDefault(t *testing.T) {
	paths, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default, paths)

	paths[0] = "changed"
	assert.Equal(t, "/etc/passwd", Default[0])
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "words.txt")
	require.NoError(t, os.WriteFile(path, []byte("/a\n/b\n"), 0o644))

	paths, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"/a", "/b"}, paths)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)

	empty := filepath.Join(t.TempDir(), "empty")
	require.NoError(t, os.WriteFile(empty, []byte("# nothing\n"), 0o644))
	_, err = Load(empty)
	assert.Error(t, err)
}
