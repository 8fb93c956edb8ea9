// Package util holds small runtime helpers shared across the daemon's
// entrypoints that don't warrant their own package.
package util

import "net"

// GetFreeTCPPort asks the kernel for a free port and immediately releases
// it, for the Lifecycle Manager's host port pool. There is an inherent
// race between release and the container's own bind. The caller does not
// retry: a container create that fails on a port conflict fails the
// instance.
func GetFreeTCPPort() (int, error) {
	addr, err := net.ResolveTCPAddr("tcp", ":0")
	if err != nil {
		return 0, err
	}

	l, err := net.ListenTCP("tcp", addr)
	if err != nil {
		return 0, err
	}
	port := l.Addr().(*net.TCPAddr).Port
	l.Close()
	return port, nil
}

// GetFreeUDPPort is GetFreeTCPPort's UDP counterpart, used for engines
// whose adapter reports IsUDP.
func GetFreeUDPPort() (int, error) {
	addr, err := net.ResolveUDPAddr("udp", ":0")
	if err != nil {
		return 0, err
	}

	l, err := net.ListenUDP("udp", addr)
	if err != nil {
		return 0, err
	}
	port := l.LocalAddr().(*net.UDPAddr).Port
	l.Close()
	return port, nil
}
