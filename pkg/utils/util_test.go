package utils

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListenUDPInPortRange(t *testing.T) {
	laddr := &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 0}
	conn, err := ListenUDPInPortRange(40000, 40100, laddr)
	require.NoError(t, err)
	defer conn.Close()

	port := conn.LocalAddr().(*net.UDPAddr).Port
	assert.GreaterOrEqual(t, port, 40000)
	assert.LessOrEqual(t, port, 40100)
}

func TestListenUDPInPortRangeInverted(t *testing.T) {
	laddr := &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 0}
	_, err := ListenUDPInPortRange(50000, 40000, laddr)
	assert.ErrorIs(t, err, ErrPort)
}

func TestListenUDPInPortRangeExplicitPort(t *testing.T) {
	// A caller supplied port bypasses the range walk.
	probe, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 0})
	require.NoError(t, err)
	port := probe.LocalAddr().(*net.UDPAddr).Port
	probe.Close()

	laddr := &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: port}
	conn, err := ListenUDPInPortRange(40000, 40100, laddr)
	require.NoError(t, err)
	defer conn.Close()
	assert.Equal(t, port, conn.LocalAddr().(*net.UDPAddr).Port)
}
