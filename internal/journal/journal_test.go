package journal

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ftp_bounce/models"
)

func TestRecordAndRead(t *testing.T) {
	j, err := Open(filepath.Join(t.TempDir(), "journal.sqlite"))
	require.NoError(t, err)
	defer j.Close()

	now := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, j.Record("c1", &models.Attempt{Index: 1, Path: "/b", Filename: "b.out", Error: "timeout", Started: now}))
	require.NoError(t, j.Record("c1", &models.Attempt{Index: 0, Path: "/a", Filename: "a.out", Response: "226 ok", Received: true, Size: 3, Started: now}))
	require.NoError(t, j.Record("c2", &models.Attempt{Index: 0, Path: "/z", Started: now}))

	got, err := j.Attempts("c1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "/a", got[0].Path)
	assert.True(t, got[0].Received)
	assert.Equal(t, 3, got[0].Size)
	assert.Equal(t, "/b", got[1].Path)
	assert.Equal(t, "timeout", got[1].Error)
	assert.True(t, got[1].Started.Equal(now))
}
