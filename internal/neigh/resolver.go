package neigh

import (
	"context"
	"net"
	"net/netip"

	"github.com/vishvananda/netlink"

	"github.com/nlbwmon/nlbwmon-go/internal/recstore"
)

// NetlinkResolver resolves addresses via the OS neighbour table, falling
// back to the interface address list (spec.md §4.2 step 5: "the OS
// neighbour table, and as a fallback the OS interface list"). It is the
// Linux-netlink backed Resolver implementation, built on the
// vishvananda/netlink library.
type NetlinkResolver struct{}

// Resolve implements Resolver.
func (NetlinkResolver) Resolve(_ context.Context, family recstore.Family, addr netip.Addr) ([6]byte, bool, error) {
	fam := netlinkFamily(family)

	if mac, ok, err := resolveViaNeighbourTable(fam, addr); err != nil {
		return [6]byte{}, false, err
	} else if ok {
		return mac, true, nil
	}

	return resolveViaInterfaceList(fam, addr)
}

func netlinkFamily(f recstore.Family) int {
	if f == recstore.FamilyV6 {
		return netlink.FAMILY_V6
	}
	return netlink.FAMILY_V4
}

func resolveViaNeighbourTable(family int, addr netip.Addr) ([6]byte, bool, error) {
	neighs, err := netlink.NeighList(0, family)
	if err != nil {
		return [6]byte{}, false, err
	}

	want := net.IP(addr.AsSlice())
	for _, n := range neighs {
		if n.IP.Equal(want) && len(n.HardwareAddr) >= 6 {
			var mac [6]byte
			copy(mac[:], n.HardwareAddr[:6])
			return mac, true, nil
		}
	}
	return [6]byte{}, false, nil
}

func resolveViaInterfaceList(family int, addr netip.Addr) ([6]byte, bool, error) {
	links, err := netlink.LinkList()
	if err != nil {
		return [6]byte{}, false, err
	}

	want := net.IP(addr.AsSlice())
	for _, link := range links {
		addrs, err := netlink.AddrList(link, family)
		if err != nil {
			continue
		}
		for _, a := range addrs {
			if a.IPNet != nil && a.IPNet.IP.Equal(want) {
				hw := link.Attrs().HardwareAddr
				if len(hw) < 6 {
					return [6]byte{}, false, nil
				}
				var mac [6]byte
				copy(mac[:], hw[:6])
				return mac, true, nil
			}
		}
	}
	return [6]byte{}, false, nil
}
