// Package vnetalloc hands out IP addresses from a configured CIDR block to
// instances that opt into a named virtual network, serialized by a single
// mutex per the concurrency model's "Shared resources" section.
package vnetalloc

import (
	"fmt"
	"net"
	"sync"
)

// ErrPoolExhausted is returned by Reserve when every address in the range
// is already held.
var ErrPoolExhausted = fmt.Errorf("vnetalloc: no free address in pool")

// Allocator reserves and releases IPs within a CIDR, skipping the network
// and broadcast addresses.
type Allocator struct {
	mu       sync.Mutex
	network  *net.IPNet
	held     map[string]string // ip -> instance id
	ordered  []string          // usable host addresses, in ascending order
}

// New builds an Allocator over cidr, e.g. "10.88.0.0/24".
func New(cidr string) (*Allocator, error) {
	_, network, err := net.ParseCIDR(cidr)
	if err != nil {
		return nil, fmt.Errorf("vnetalloc: invalid cidr %q: %w", cidr, err)
	}
	ordered := hostAddresses(network)
	return &Allocator{network: network, held: map[string]string{}, ordered: ordered}, nil
}

func hostAddresses(network *net.IPNet) []string {
	var out []string
	for ip := cloneIP(network.IP.Mask(network.Mask)); network.Contains(ip); incIP(ip) {
		out = append(out, ip.String())
	}
	if len(out) > 2 {
		out = out[1 : len(out)-1] // drop network and broadcast addresses
	}
	return out
}

func cloneIP(ip net.IP) net.IP {
	out := make(net.IP, len(ip))
	copy(out, ip)
	return out
}

func incIP(ip net.IP) {
	for i := len(ip) - 1; i >= 0; i-- {
		ip[i]++
		if ip[i] != 0 {
			return
		}
	}
}

// Reserve hands out the lowest free address for instanceID. Calling
// Reserve again for an instance that already holds an address returns the
// same address (idempotent under retry).
func (a *Allocator) Reserve(instanceID string) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	for ip, owner := range a.held {
		if owner == instanceID {
			return ip, nil
		}
	}
	for _, ip := range a.ordered {
		if _, taken := a.held[ip]; !taken {
			a.held[ip] = instanceID
			return ip, nil
		}
	}
	return "", ErrPoolExhausted
}

// Release frees instanceID's address, if any. Releasing an instance that
// holds nothing is a no-op, matching the destroy ordering's "ignore absent"
// convention.
func (a *Allocator) Release(instanceID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for ip, owner := range a.held {
		if owner == instanceID {
			delete(a.held, ip)
			return
		}
	}
}

// InUse reports the number of currently reserved addresses, for
// HostCapacity reporting.
func (a *Allocator) InUse() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.held)
}

// Capacity reports the total number of assignable host addresses.
func (a *Allocator) Capacity() int {
	return len(a.ordered)
}
