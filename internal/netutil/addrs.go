// ABOUTME: Local network address helpers
// ABOUTME: Enumerates the machine's own IPs for local-traffic classification
package netutil

import "net"

// LocalIPs returns the machine's non-loopback unicast addresses across all
// interfaces that are up. Interfaces that fail to report addresses are
// skipped rather than failing the whole enumeration.
func LocalIPs() ([]net.IP, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}

	var ips []net.IP
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}

		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}

		for _, addr := range addrs {
			if ipnet, ok := addr.(*net.IPNet); ok && !ipnet.IP.IsLoopback() {
				ips = append(ips, ipnet.IP)
			}
		}
	}

	return ips, nil
}

// Contains reports whether ip equals any address in the set.
func Contains(set []net.IP, ip net.IP) bool {
	for _, candidate := range set {
		if candidate.Equal(ip) {
			return true
		}
	}
	return false
}
