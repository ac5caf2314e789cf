package ios

import (
	"context"
	"fmt"
	"net"
	"strings"

	"github.com/grandcat/zeroconf"
	log "github.com/sirupsen/logrus"
)

// MobileDeviceService is the mDNS service devices with WiFi sync enabled announce.
const MobileDeviceService = "_apple-mobdev2._tcp"

// NetworkService is a device found via mDNS.
type NetworkService struct {
	// Name is the full service instance name, "<wifi mac>@<address>._apple-mobdev2._tcp".
	Name    string
	Address string
}

// FindNetworkService browses for MobileDeviceService until a device with wifiMac announces
// itself or ctx is done. The instance name of these services starts with the WiFi MAC.
func FindNetworkService(ctx context.Context, wifiMac string) (NetworkService, error) {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return NetworkService{}, fmt.Errorf("failed to initialize mDNS resolver: %w", err)
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	entries := make(chan *zeroconf.ServiceEntry)
	if err := resolver.Browse(ctx, MobileDeviceService, "local.", entries); err != nil {
		return NetworkService{}, fmt.Errorf("failed to browse %s: %w", MobileDeviceService, err)
	}
	for {
		select {
		case <-ctx.Done():
			return NetworkService{}, fmt.Errorf("device with WiFi address %s not found: %w", wifiMac, ctx.Err())
		case entry, ok := <-entries:
			if !ok {
				return NetworkService{}, fmt.Errorf("device with WiFi address %s not found: %w", wifiMac, ctx.Err())
			}
			if entry == nil {
				continue
			}
			log.WithField("instance", entry.Instance).Debug("found mobile device service")
			if service, ok := matchService(entry.Instance, wifiMac, entry.AddrIPv4, entry.AddrIPv6); ok {
				return service, nil
			}
		}
	}
}

// matchService checks an instance name against wifiMac and picks an address, preferring IPv4.
func matchService(instance string, wifiMac string, ipv4 []net.IP, ipv6 []net.IP) (NetworkService, bool) {
	mac, _, found := strings.Cut(instance, "@")
	if !found || !strings.EqualFold(mac, wifiMac) {
		return NetworkService{}, false
	}
	var address string
	switch {
	case len(ipv4) > 0:
		address = ipv4[0].String()
	case len(ipv6) > 0:
		address = ipv6[0].String()
	default:
		return NetworkService{}, false
	}
	return NetworkService{Name: instance + "." + MobileDeviceService, Address: address}, true
}
