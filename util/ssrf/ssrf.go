/*
 * Based on code written in 2019 by Andrew Ayer.
 *
 * Original: https://www.agwa.name/blog/post/preventing_server_side_request_forgery_in_golang
 *
 * To the extent possible under law, the author(s) have dedicated all
 * copyright and related and neighboring rights to this software to the
 * public domain worldwide. This software is distributed without any
 * warranty.
 *
 * You should have received a copy of the CC0 Public
 * Domain Dedication along with this software. If not, see
 * <https://creativecommons.org/publicdomain/zero/1.0/>.
 */

// Dialer and transport which refuse to connect to non-public addresses. Used for fetching remote actor documents, where the URL is chosen by a remote server.
package ssrf

import (
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"slices"
	"syscall"
	"time"
)

var reservedPrefixes = []netip.Prefix{
	netip.MustParsePrefix("0.0.0.0/8"),       // current network
	netip.MustParsePrefix("10.0.0.0/8"),      // private
	netip.MustParsePrefix("100.64.0.0/10"),   // RFC6598
	netip.MustParsePrefix("127.0.0.0/8"),     // loopback
	netip.MustParsePrefix("169.254.0.0/16"),  // link-local
	netip.MustParsePrefix("172.16.0.0/12"),   // private
	netip.MustParsePrefix("192.0.0.0/24"),    // RFC6890
	netip.MustParsePrefix("192.0.2.0/24"),    // documentation
	netip.MustParsePrefix("192.88.99.0/24"),  // IPv6 to IPv4 relay
	netip.MustParsePrefix("192.168.0.0/16"),  // private
	netip.MustParsePrefix("198.18.0.0/15"),   // benchmarking
	netip.MustParsePrefix("198.51.100.0/24"), // documentation
	netip.MustParsePrefix("203.0.113.0/24"),  // documentation
	netip.MustParsePrefix("224.0.0.0/4"),     // multicast
	netip.MustParsePrefix("240.0.0.0/4"),     // reserved, including broadcast
}

// IPv6 global unicast range; everything outside it is refused.
var globalUnicastIPv6 = netip.MustParsePrefix("2000::/3")

// Ports which connections may be made to.
var AllowedPorts = []string{"80", "443"}

func IsPublicIPAddress(addr netip.Addr) bool {
	addr = addr.Unmap()
	if addr.Is4() {
		for _, p := range reservedPrefixes {
			if p.Contains(addr) {
				return false
			}
		}
		return true
	}
	return globalUnicastIPv6.Contains(addr)
}

// Implementation of [net.Dialer] `Control` which rejects connections to local IPv4 and IPv6 ranges, and to ports other than AllowedPorts.
func PublicOnlyControl(network string, address string, conn syscall.RawConn) error {
	if network != "tcp4" && network != "tcp6" {
		return fmt.Errorf("%s is not a safe network type", network)
	}
	host, port, err := net.SplitHostPort(address)
	if err != nil {
		return fmt.Errorf("%s is not a valid host/port pair: %w", address, err)
	}
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return fmt.Errorf("%s is not a valid IP address", host)
	}
	if !IsPublicIPAddress(addr) {
		return fmt.Errorf("%s is not a public IP address", addr)
	}
	if !slices.Contains(AllowedPorts, port) {
		return fmt.Errorf("%s is not a safe port number", port)
	}
	return nil
}

// [http.Transport] which only dials public addresses. Other fields have the standard library default values.
func PublicOnlyTransport() *http.Transport {
	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
		Control:   PublicOnlyControl,
	}
	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
}
