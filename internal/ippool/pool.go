// Package ippool hands out management addresses from an operator-supplied
// CIDR block.
package ippool

import (
	"encoding/binary"
	"fmt"
	"net"
	"sync"
)

// Pool allocates addresses monotonically from a CIDR, skipping the network
// and broadcast addresses and the gateway. It never reuses an offset, so a
// device that re-enters provisioning gets a fresh address rather than a
// possibly-conflicting recycled one.
type Pool struct {
	mu      sync.Mutex
	network *net.IPNet
	gateway net.IP
	offset  uint32
	size    uint32
}

// New creates a pool over cidr with the given gateway address
func New(cidr, gateway string) (*Pool, error) {
	_, network, err := net.ParseCIDR(cidr)
	if err != nil {
		return nil, fmt.Errorf("parsing pool CIDR %q: %w", cidr, err)
	}
	if network.IP.To4() == nil {
		return nil, fmt.Errorf("pool CIDR %q is not IPv4", cidr)
	}
	gw := net.ParseIP(gateway)
	if gw == nil {
		return nil, fmt.Errorf("parsing gateway %q", gateway)
	}

	ones, bits := network.Mask.Size()
	size := uint32(1) << uint(bits-ones)

	p := &Pool{
		network: network,
		gateway: gw.To4(),
		size:    size,
	}
	// Leave the bottom of the block for the gateway and static
	// infrastructure; device allocations start at .10.
	if size > reservedLow+2 {
		p.offset = reservedLow
	}
	return p, nil
}

// low addresses carved out for the gateway and other static equipment
const reservedLow = 9

// Gateway returns the pool's gateway address
func (p *Pool) Gateway() string {
	return p.gateway.String()
}

// PrefixLen returns the pool's prefix length in bits
func (p *Pool) PrefixLen() int {
	ones, _ := p.network.Mask.Size()
	return ones
}

// Allocate returns the next free address. On exhaustion it falls back to
// fallbackIP, the device's current address, so provisioning can still
// complete without renumbering.
func (p *Pool) Allocate(fallbackIP string) string {
	p.mu.Lock()
	defer p.mu.Unlock()

	base := binary.BigEndian.Uint32(p.network.IP.To4())
	for p.offset < p.size-1 {
		p.offset++
		candidate := base + p.offset
		// Skip network (offset 0, never reached), broadcast, and gateway.
		if p.offset == p.size-1 {
			break
		}
		ip := make(net.IP, 4)
		binary.BigEndian.PutUint32(ip, candidate)
		if ip.Equal(p.gateway) {
			continue
		}
		return ip.String()
	}
	return fallbackIP
}

// Remaining reports how many allocatable addresses are left
func (p *Pool) Remaining() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	// size minus network, broadcast, and already-consumed offsets
	left := int(p.size) - 2 - int(p.offset)
	if left < 0 {
		return 0
	}
	return left
}
