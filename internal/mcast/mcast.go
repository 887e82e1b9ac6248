// Package mcast joins IPv4 multicast groups on a specific interface and
// provides the subnet-aware dedup helper locators use to pick the best
// interface when the same radar is heard on more than one. The join uses
// golang.org/x/net/ipv4 rather than raw syscalls.
package mcast

import (
	"fmt"
	"net"
	"net/netip"

	"go4.org/netipx"
	"golang.org/x/net/ipv4"
)

// Conn is a joined multicast UDP socket bound to one interface.
type Conn struct {
	*net.UDPConn
}

// Join opens a UDP socket on port, joins the multicast group addr on the
// named interface (empty ifaceName lets the kernel choose), and returns the
// ready-to-read connection.
func Join(group string, port int, ifaceName string) (*Conn, error) {
	ip := net.ParseIP(group)
	if ip == nil || ip.To4() == nil {
		return nil, fmt.Errorf("mcast: %q is not a valid IPv4 multicast address", group)
	}
	if !ip.IsMulticast() {
		return nil, fmt.Errorf("mcast: %q is not a multicast address", group)
	}

	laddr := &net.UDPAddr{IP: net.IPv4zero, Port: port}
	conn, err := net.ListenUDP("udp4", laddr)
	if err != nil {
		return nil, fmt.Errorf("mcast: listen udp4 :%d: %w", port, err)
	}

	pc := ipv4.NewPacketConn(conn)

	var ifi *net.Interface
	if ifaceName != "" {
		ifi, err = net.InterfaceByName(ifaceName)
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("mcast: interface %s: %w", ifaceName, err)
		}
	}

	if err := pc.JoinGroup(ifi, &net.UDPAddr{IP: ip}); err != nil {
		conn.Close()
		return nil, fmt.Errorf("mcast: join group %s on %s: %w", group, ifaceName, err)
	}

	return &Conn{UDPConn: conn}, nil
}

// BestInterface implements the dedup preference rule: prefer the interface
// whose subnet matches the radar's source IP. Given the radar's beacon
// source IP and the set of candidate interfaces it was
// heard from (name -> CIDR of that interface's IPv4 address), it returns
// the name of the interface whose subnet contains the source IP, or an
// arbitrary candidate if none match (stable picking is the caller's
// responsibility if that matters).
func BestInterface(sourceIP string, candidates map[string]string) string {
	src, err := netip.ParseAddr(sourceIP)
	if err != nil {
		return firstKey(candidates)
	}

	for iface, cidr := range candidates {
		prefix, err := netip.ParsePrefix(cidr)
		if err != nil {
			continue
		}

		var b netipx.IPSetBuilder
		b.AddPrefix(prefix)
		set, err := b.IPSet()
		if err != nil {
			continue
		}
		if set.Contains(src) {
			return iface
		}
	}
	return firstKey(candidates)
}

func firstKey(m map[string]string) string {
	for k := range m {
		return k
	}
	return ""
}
