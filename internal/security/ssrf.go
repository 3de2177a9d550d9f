package security

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

// deniedCIDRs covers loopback, link-local, private, and other non-routable
// ranges that a server-side fetch must never reach, for both address
// families.
var deniedCIDRs = mustParseCIDRs(
	"127.0.0.0/8",
	"10.0.0.0/8",
	"172.16.0.0/12",
	"192.168.0.0/16",
	"169.254.0.0/16",
	"0.0.0.0/8",
	"100.64.0.0/10", // carrier-grade NAT
	"192.0.0.0/24",
	"192.0.2.0/24",
	"198.18.0.0/15",
	"198.51.100.0/24",
	"203.0.113.0/24",
	"240.0.0.0/4",
	"::1/128",
	"fc00::/7", // unique local
	"fe80::/10",
	"::ffff:0:0/96",
)

func mustParseCIDRs(cidrs ...string) []*net.IPNet {
	nets := make([]*net.IPNet, 0, len(cidrs))
	for _, c := range cidrs {
		_, n, err := net.ParseCIDR(c)
		if err != nil {
			panic(err)
		}
		nets = append(nets, n)
	}
	return nets
}

// Resolver abstracts DNS resolution so tests can stub it.
type Resolver interface {
	LookupIPAddr(host string) ([]net.IP, error)
}

type netResolver struct{}

func (netResolver) LookupIPAddr(host string) ([]net.IP, error) {
	addrs, err := net.LookupIP(host)
	if err != nil {
		return nil, err
	}
	return addrs, nil
}

// DefaultResolver is the resolver used by CheckSSRF.
var DefaultResolver Resolver = netResolver{}

// CheckSSRF rejects rawURL if its host is a literal private/loopback/
// link-local address, or if DNS resolution of its hostname yields ANY
// address in a denied range. Checking after resolution (not just the
// literal hostname) closes the DNS-rebinding gap a hostname-only blocklist
// would miss.
func CheckSSRF(rawURL string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	host := parsed.Hostname()
	if host == "" {
		return fmt.Errorf("missing hostname")
	}
	if strings.EqualFold(host, "localhost") {
		return fmt.Errorf("refusing to fetch localhost")
	}

	if ip := net.ParseIP(host); ip != nil {
		if isDenied(ip) {
			return fmt.Errorf("refusing to fetch denied address %s", ip)
		}
		return nil
	}

	addrs, err := DefaultResolver.LookupIPAddr(host)
	if err != nil {
		return fmt.Errorf("DNS resolution failed: %w", err)
	}
	if len(addrs) == 0 {
		return fmt.Errorf("host %s did not resolve", host)
	}
	for _, ip := range addrs {
		if isDenied(ip) {
			return fmt.Errorf("host %s resolves to denied address %s", host, ip)
		}
	}
	return nil
}

func isDenied(ip net.IP) bool {
	if ip.IsLoopback() || ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() || ip.IsUnspecified() {
		return true
	}
	for _, n := range deniedCIDRs {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}
