package utils

import (
	"errors"
	"math/rand"
	"net"
)

// ErrPort means no port in the requested range could be bound.
var ErrPort = errors.New("invalid port")

// ListenUDPInPortRange binds a UDP socket on a random port inside
// [portMin, portMax], walking the range from a random start until one
// binds. A non zero laddr.Port or an all zero range falls through to a
// plain ListenUDP.
func ListenUDPInPortRange(portMin, portMax int, laddr *net.UDPAddr) (*net.UDPConn, error) {
	if (laddr.Port != 0) || ((portMin == 0) && (portMax == 0)) {
		return net.ListenUDP("udp", laddr)
	}
	i := portMin
	if i == 0 {
		i = 1
	}
	j := portMax
	if j == 0 {
		j = 0xFFFF
	}
	if i > j {
		return nil, ErrPort
	}

	portStart := rand.Intn(j-i+1) + i
	portCurrent := portStart
	for {
		*laddr = net.UDPAddr{IP: laddr.IP, Port: portCurrent}
		c, e := net.ListenUDP("udp", laddr)
		if e == nil {
			return c, e
		}
		portCurrent++
		if portCurrent > j {
			portCurrent = i
		}
		if portCurrent == portStart {
			break
		}
	}
	return nil, ErrPort
}
