// Package netproto defines the transport/address-family enums used to
// configure a scheme, modeled on nabbar-golib/network/protocol.
package netproto

// NetworkProtocol identifies the concrete net package dial/listen network
// string a scheme resolves to.
type NetworkProtocol uint8

const (
	NetworkEmpty NetworkProtocol = iota
	NetworkUnix
	NetworkTCP
	NetworkTCP4
	NetworkTCP6
	NetworkUDP
	NetworkUDP4
	NetworkUDP6
	NetworkIP
	NetworkIP4
	NetworkIP6
	NetworkUnixGram
)

// Code returns the net package network string (e.g. "tcp", "tcp4").
func (n NetworkProtocol) Code() string {
	switch n {
	case NetworkUnix:
		return "unix"
	case NetworkTCP:
		return "tcp"
	case NetworkTCP4:
		return "tcp4"
	case NetworkTCP6:
		return "tcp6"
	case NetworkUDP:
		return "udp"
	case NetworkUDP4:
		return "udp4"
	case NetworkUDP6:
		return "udp6"
	case NetworkIP:
		return "ip"
	case NetworkIP4:
		return "ip4"
	case NetworkIP6:
		return "ip6"
	case NetworkUnixGram:
		return "unixgram"
	default:
		return ""
	}
}

// Int returns the stable numeric ordinal (matches the order the teacher's
// protocol package assigns, used for config round-tripping).
func (n NetworkProtocol) Int() int {
	return int(n)
}

// Sonet is the application-level socket flavor layered atop NetworkProtocol —
// the spec's "sonet ∈ {TCP, TLS, UDP, DTLS, SCTP}".
type Sonet uint8

const (
	SonetTCP Sonet = iota
	SonetTLS
	SonetUDP
	SonetDTLS
	SonetSCTP
)

func (s Sonet) String() string {
	switch s {
	case SonetTCP:
		return "TCP"
	case SonetTLS:
		return "TLS"
	case SonetUDP:
		return "UDP"
	case SonetDTLS:
		return "DTLS"
	case SonetSCTP:
		return "SCTP"
	default:
		return "UNKNOWN"
	}
}

// IsDatagram reports whether the sonet is connectionless (UDP/DTLS).
func (s Sonet) IsDatagram() bool {
	return s == SonetUDP || s == SonetDTLS
}

// Family is the spec's `family ∈ {IPV4, IPV6, IPC}`.
type Family uint8

const (
	FamilyIPV4 Family = iota
	FamilyIPV6
	FamilyIPC
)
