package anycast

import (
	"fmt"

	"github.com/vishvananda/netlink"
)

// VIPBinder attaches and detaches the anycast address on a local interface
// so the kernel accepts traffic for it while the route is announced.
type VIPBinder struct {
	iface string
}

// NewVIPBinder binds VIPs onto iface (typically "lo").
func NewVIPBinder(iface string) *VIPBinder {
	if iface == "" {
		iface = "lo"
	}
	return &VIPBinder{iface: iface}
}

func (b *VIPBinder) addr(vip string) (*netlink.Addr, netlink.Link, error) {
	link, err := netlink.LinkByName(b.iface)
	if err != nil {
		return nil, nil, fmt.Errorf("anycast: interface %s: %w", b.iface, err)
	}
	addr, err := netlink.ParseAddr(vip + "/32")
	if err != nil {
		return nil, nil, fmt.Errorf("anycast: vip %s: %w", vip, err)
	}
	return addr, link, nil
}

// Bind attaches vip to the interface; already-present is not an error.
func (b *VIPBinder) Bind(vip string) error {
	addr, link, err := b.addr(vip)
	if err != nil {
		return err
	}
	if err := netlink.AddrAdd(link, addr); err != nil {
		existing, lerr := netlink.AddrList(link, netlink.FAMILY_V4)
		if lerr == nil {
			for _, a := range existing {
				if a.IP.Equal(addr.IP) {
					logger.WithField("vip", vip).Debug("vip already bound")
					return nil
				}
			}
		}
		return fmt.Errorf("anycast: bind %s on %s: %w", vip, b.iface, err)
	}
	logger.WithField("vip", vip).WithField("iface", b.iface).Info("bound vip")
	return nil
}

// Unbind detaches vip from the interface.
func (b *VIPBinder) Unbind(vip string) error {
	addr, link, err := b.addr(vip)
	if err != nil {
		return err
	}
	if err := netlink.AddrDel(link, addr); err != nil {
		return fmt.Errorf("anycast: unbind %s from %s: %w", vip, b.iface, err)
	}
	return nil
}
