package status

import (
	"context"
	"net/netip"
	"slices"

	gnet "github.com/shirou/gopsutil/v3/net"
)

// SystemNetwork reports connectivity from the host's network interfaces.
type SystemNetwork struct{}

// Network reports the first interface that is up, is not loopback and has a
// routable address.
func (SystemNetwork) Network(ctx context.Context) (Network, error) {
	ifaces, err := gnet.InterfacesWithContext(ctx)
	if err != nil {
		return Network{}, err
	}
	name, ok := pickInterface(ifaces)
	return Network{Connected: ok, Interface: name}, nil
}

func pickInterface(ifaces gnet.InterfaceStatList) (string, bool) {
	for _, iface := range ifaces {
		if !slices.Contains(iface.Flags, "up") || slices.Contains(iface.Flags, "loopback") {
			continue
		}
		for _, addr := range iface.Addrs {
			prefix, err := netip.ParsePrefix(addr.Addr)
			if err != nil {
				continue
			}
			ip := prefix.Addr()
			if ip.IsLoopback() || ip.IsLinkLocalUnicast() || ip.IsUnspecified() {
				continue
			}
			return iface.Name, true
		}
	}
	return "", false
}
