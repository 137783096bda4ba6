package security

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
)

// Hostnames that must never be dialed server-side regardless of what they
// resolve to.
var blockedHosts = []string{"localhost", "metadata.google.internal", "metadata.google"}

// cgnat is 100.64.0.0/10; several cloud metadata services live there.
var cgnat = mustCIDR("100.64.0.0/10")

func mustCIDR(s string) *net.IPNet {
	_, n, err := net.ParseCIDR(s)
	if err != nil {
		panic(err)
	}
	return n
}

// ValidateEndpointURL rejects delivery endpoints (webhook subscriptions,
// SIEM sinks, collector callbacks) that would point a server-side request
// at internal infrastructure. Both the literal host and every DNS-resolved
// address are checked.
func ValidateEndpointURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return errors.New("invalid URL format")
	}
	if u.Scheme != "https" && u.Scheme != "http" {
		return errors.New("URL scheme must be http or https")
	}
	if u.Host == "" {
		return errors.New("URL must have a host")
	}

	host := u.Hostname()
	for _, b := range blockedHosts {
		if strings.EqualFold(host, b) {
			return fmt.Errorf("URL host %q is not allowed", host)
		}
	}

	if ip := net.ParseIP(host); ip != nil {
		// IP literal, nothing to resolve
		return checkIP(ip)
	}

	ips, err := net.LookupHost(host)
	if err != nil {
		return fmt.Errorf("cannot resolve URL host: %s", host)
	}
	for _, ipStr := range ips {
		if resolved := net.ParseIP(ipStr); resolved != nil {
			if err := checkIP(resolved); err != nil {
				return fmt.Errorf("URL host %q resolves to blocked address: %v", host, err)
			}
		}
	}

	return nil
}

func checkIP(ip net.IP) error {
	switch {
	case ip.IsLoopback():
		return errors.New("loopback addresses are not allowed")
	case ip.IsPrivate():
		return errors.New("private addresses are not allowed")
	case ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast():
		return errors.New("link-local addresses are not allowed")
	case ip.IsUnspecified():
		return errors.New("unspecified addresses are not allowed")
	case ip.IsMulticast():
		return errors.New("multicast addresses are not allowed")
	case cgnat.Contains(ip):
		return errors.New("carrier-grade NAT addresses are not allowed")
	}
	return nil
}
