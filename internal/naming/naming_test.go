package naming

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"ftp_bounce/models"
)

func TestStamp(t *testing.T) {
	now := time.Date(2023, time.December, 24, 20, 30, 5, 0, time.UTC)
	assert.Equal(t, "3020-12242023", Stamp(now))

	early := time.Date(2024, time.March, 5, 7, 4, 0, 0, time.UTC)
	assert.Equal(t, "47-352024", Stamp(early))
}

func TestDerive(t *testing.T) {
	now := time.Date(2023, time.December, 24, 20, 30, 0, 0, time.UTC)

	for _, tc := range []struct {
		action models.Action
		path   string
		want   string
	}{
		{models.ActionList, "/etc/passwd", "3020-12242023_list__etc_passwd.out"},
		{models.ActionDownload, "/etc/ssh/sshd_config", "3020-12242023_download__etc_ssh_sshd_config.out"},
		{models.ActionDownload, "relative", "3020-12242023_download_relative.out"},
	} {
		got := Derive(tc.action, tc.path, now)
		assert.Equal(t, tc.want, got)
		assert.NotContains(t, got, "/")
		assert.True(t, strings.HasSuffix(got, ".out"))
		// same inputs, same name
		assert.Equal(t, got, Derive(tc.action, tc.path, now))
	}
}

func TestDeriveDistinctPathsSameSecond(t *testing.T) {
	now := time.Now()
	a := Derive(models.ActionList, "/a", now)
	b := Derive(models.ActionList, "/b", now)
	assert.NotEqual(t, a, b)
}
