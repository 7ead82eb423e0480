package ddns

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
)

// InterfaceResolver constructs a resolver that returns the first IPv4 address reported by the named interface.
// Loopback and link-local addresses are skipped.
//
// This only makes sense on hosts that hold their public address directly,
// e.g. a router or a VPS without NAT.
func InterfaceResolver(iface string) Resolver {
	return interfaceResolver{iface: iface}
}

type interfaceResolver struct {
	iface string
}

func (r interfaceResolver) Resolve(ctx context.Context) (netip.Addr, error) {
	iface, err := net.InterfaceByName(r.iface)
	if err != nil {
		return netip.Addr{}, fmt.Errorf("error getting interface %s by name: %w", r.iface, err)
	}
	a, err := iface.Addrs()
	if err != nil {
		return netip.Addr{}, fmt.Errorf("error looking up addresses for interface %s: %w", r.iface, err)
	}
	addrs, err := onlyIPv4(parseInterfaceAddrs(a))
	if len(addrs) == 0 {
		if err == nil {
			err = errors.New("no usable addresses")
		}
		return netip.Addr{}, fmt.Errorf("interface %s: %w", r.iface, err)
	}
	return addrs[0], nil
}

// parseInterfaceAddrs converts interface addresses to netip form.
//
//	addr: ip+net:192.168.86.253/24
//	addr: ip+net:fd64:9f44:fc30:0:b951:8b16:2812:a227/64
//	addr: ip+net:fe80::2cc9:801b:3551:9a43/64
func parseInterfaceAddrs(adds []net.Addr) (addrs []netip.Addr, err error) {
	var parseErrors []error
	for _, addr := range adds {
		ip, err := netip.ParsePrefix(addr.String())
		if err != nil {
			parseErrors = append(parseErrors, fmt.Errorf("error parsing local ip %s: %s", addr.String(), err))
			continue
		}
		if ip.Addr().IsLoopback() || ip.Addr().IsLinkLocalUnicast() {
			continue
		}
		addrs = append(addrs, ip.Addr().Unmap())
	}
	return addrs, errors.Join(parseErrors...)
}

func onlyIPv4(addrs []netip.Addr, e error) (filtered []netip.Addr, err error) {
	for _, a := range addrs {
		if a.Is4() {
			filtered = append(filtered, a)
		}
	}
	return filtered, e
}
