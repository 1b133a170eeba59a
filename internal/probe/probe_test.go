package probe

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ftp_bounce/internal/ftptest"
)

func TestLogin(t *testing.T) {
	srv, err := ftptest.NewServer(nil)
	require.NoError(t, err)
	defer srv.Close()

	err = Login(context.Background(), srv.Addr(), "anonymous", "pass", 2*time.Second)
	require.NoError(t, err)

	sessions := srv.Sessions()
	require.Len(t, sessions, 1)
	assert.Contains(t, sessions[0], "USER anonymous")
	assert.Contains(t, sessions[0], "PASS pass")
}

func TestLoginUnreachable(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	ln.Close()

	err = Login(context.Background(), addr, "anonymous", "pass", time.Second)
	assert.Error(t, err)
}
