package ws_test

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omochice/toy-tcp-events/pkg/tcpconn"
	"github.com/omochice/toy-tcp-events/pkg/transport/ws"
)

func TestDetectUpgradePlainTCP(t *testing.T) {
	s := startEchoServer(t, ws.DetectUpgrade)

	conn, err := net.Dial("tcp", fmt.Sprintf("127.0.0.1:%d", s.Port()))
	require.NoError(t, err)
	defer conn.Close()

	// Starts like "GET " but diverges on the second byte.
	payload := []byte("Gxbinary payload")
	_, err = conn.Write(payload)
	require.NoError(t, err)

	got := make([]byte, len(payload))
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, err = io.ReadFull(conn, got)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestDetectUpgradeShortFirstWrite(t *testing.T) {
	s := startEchoServer(t, ws.DetectUpgrade)

	conn, err := net.Dial("tcp", fmt.Sprintf("127.0.0.1:%d", s.Port()))
	require.NoError(t, err)
	defer conn.Close()

	// A single byte that cannot start "GET " is enough to decide.
	_, err = conn.Write([]byte{0x03})
	require.NoError(t, err)

	got := make([]byte, 1)
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, err = io.ReadFull(conn, got)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x03}, got)
}

func TestDetectUpgradeWebSocket(t *testing.T) {
	s := startEchoServer(t, ws.DetectUpgrade)

	ep, err := ws.Dial(context.Background(), fmt.Sprintf("ws://127.0.0.1:%d/", s.Port()))
	require.NoError(t, err)
	c, err := tcpconn.NewConnection(ep)
	require.NoError(t, err)
	defer c.Close()

	got := &collector{}
	c.AddListener(&tcpconn.ConnectionFuncs{
		OnReceivedData: func(_ *tcpconn.Connection, data []byte) { got.add(data) },
	})
	require.NoError(t, c.Start())
	require.NoError(t, c.SendData([]byte("framed")))

	require.Eventually(t, func() bool {
		return bytes.Equal(got.bytes(), []byte("framed"))
	}, 2*time.Second, 5*time.Millisecond)
}

func TestDetectUpgradeSmallReadBuffer(t *testing.T) {
	s, err := tcpconn.NewServer(tcpconn.Config{BindAddress: "127.0.0.1"},
		tcpconn.WithUpgrade(ws.DetectUpgrade), tcpconn.WithReadBufferSize(1))
	require.NoError(t, err)
	got := &collector{}
	s.AddListener(&tcpconn.ServerFuncs{
		OnConnected: func(_ *tcpconn.Server, c *tcpconn.Connection) {
			c.AddListener(&tcpconn.ConnectionFuncs{
				OnReceivedData: func(_ *tcpconn.Connection, data []byte) { got.add(data) },
			})
		},
	})
	require.NoError(t, s.Start())
	defer s.Stop()

	conn, err := net.Dial("tcp", fmt.Sprintf("127.0.0.1:%d", s.Port()))
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte("GEt ordered bytes"))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return bytes.Equal(got.bytes(), []byte("GEt ordered bytes"))
	}, 2*time.Second, 5*time.Millisecond)
}

func TestDetectUpgradeIdleClientDoesNotBlockOthers(t *testing.T) {
	s := startEchoServer(t, ws.DetectUpgrade)
	addr := fmt.Sprintf("127.0.0.1:%d", s.Port())

	// Stays silent, so detection waits on it until HandshakeTimeout.
	idle, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer idle.Close()

	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte{0x01, 0x02})
	require.NoError(t, err)

	got := make([]byte, 2)
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, err = io.ReadFull(conn, got)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x01, 0x02}, got)
}
