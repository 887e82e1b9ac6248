//go:build linux

package netmon

import (
	"context"

	"github.com/mdlayher/netlink"
	"golang.org/x/sys/unix"
)

// linuxDriver wakes the poller immediately on RTM_NEWLINK/RTM_DELLINK/
// RTM_NEWADDR/RTM_DELADDR netlink notifications instead of waiting for the
// next poll tick, giving near-instant interface-flap detection on Linux
// It deliberately does not decode the netlink payload
// itself — net.Interfaces() already gives an equivalent, simpler-to-trust
// enumeration, so the socket here is used purely as a low-latency signal
// that something changed.
type linuxDriver struct{}

func newPlatformDriver() driver {
	return linuxDriver{}
}

func (linuxDriver) run(ctx context.Context, wake chan<- struct{}) {
	conn, err := netlink.Dial(unix.NETLINK_ROUTE, &netlink.Config{
		Groups: unix.RTMGRP_LINK | unix.RTMGRP_IPV4_IFADDR,
	})
	if err != nil {
		logf("netlink fast path unavailable, falling back to polling only: %v", err)
		return
	}
	defer conn.Close()

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	for {
		if _, err := conn.Receive(); err != nil {
			if ctx.Err() != nil {
				return
			}
			logf("netlink receive error, falling back to polling only: %v", err)
			return
		}
		select {
		case wake <- struct{}{}:
		default:
		}
	}
}
