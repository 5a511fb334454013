// Package netutil resolves auxiliary peer identity the accept callback
// needs beyond what the socket layer hands back (spec.md §4.5's
// accept(ip, mac, port, sid)). Grounded on
// original_source/include/net/net.hpp's ARP/neighbour table lookup.
package netutil

import (
	"bufio"
	"net"
	"os"
	"runtime"
	"strings"
)

// LookupMAC resolves the hardware address for ip from the kernel's
// ARP/neighbour table. Linux reads /proc/net/arp; every other platform
// returns "" since there is no portable equivalent without cgo or extra
// privilege, and spec.md treats an empty mac as "unresolved", not an error.
func LookupMAC(ip net.IP) string {
	if ip == nil || runtime.GOOS != "linux" {
		return ""
	}
	return lookupLinuxARP(ip.String())
}

func lookupLinuxARP(ip string) string {
	f, err := os.Open("/proc/net/arp")
	if err != nil {
		return ""
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Scan() // header line
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) < 4 {
			continue
		}
		if fields[0] == ip {
			return fields[3]
		}
	}
	return ""
}
