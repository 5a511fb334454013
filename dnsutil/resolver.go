// Package dnsutil is the external collaborator spec.md §6 describes: a DNS
// resolution helper for forward and reverse lookups, kept behind a narrow
// interface so the core never imports miekg/dns directly. The server package
// does not call it; accept-time peer identity comes from netutil. Grounded on
// nabbar-golib's dns-client-style wrapping of github.com/miekg/dns.
package dnsutil

import (
	"fmt"
	"time"

	"github.com/miekg/dns"
)

// Resolver resolves forward and reverse DNS records against a configured
// upstream, with a bounded per-query timeout.
type Resolver interface {
	LookupPTR(ip string) (string, error)
	LookupA(host string) ([]string, error)
}

type resolver struct {
	server  string
	timeout time.Duration
	client  *dns.Client
}

// New returns a Resolver that queries server (host:port) directly, bypassing
// the OS resolver — the same model nabbar-golib's dns client uses so a
// caller can pin a specific upstream (e.g. for split-horizon lookups).
func New(server string, timeout time.Duration) Resolver {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &resolver{
		server:  server,
		timeout: timeout,
		client:  &dns.Client{Timeout: timeout},
	}
}

func (r *resolver) exchange(m *dns.Msg) (*dns.Msg, error) {
	resp, _, err := r.client.Exchange(m, r.server)
	if err != nil {
		return nil, err
	}
	if resp.Rcode != dns.RcodeSuccess {
		return nil, fmt.Errorf("dnsutil: rcode %s", dns.RcodeToString[resp.Rcode])
	}
	return resp, nil
}

// LookupPTR resolves the in-addr.arpa PTR record for ip, the hook
// accept(ip, mac, port, sid) can use to log a hostname alongside the peer.
func (r *resolver) LookupPTR(ip string) (string, error) {
	name, err := dns.ReverseAddr(ip)
	if err != nil {
		return "", err
	}

	m := new(dns.Msg)
	m.SetQuestion(name, dns.TypePTR)

	resp, err := r.exchange(m)
	if err != nil {
		return "", err
	}
	for _, rr := range resp.Answer {
		if ptr, ok := rr.(*dns.PTR); ok {
			return ptr.Ptr, nil
		}
	}
	return "", fmt.Errorf("dnsutil: no PTR record for %s", ip)
}

// LookupA resolves every A record for host.
func (r *resolver) LookupA(host string) ([]string, error) {
	m := new(dns.Msg)
	m.SetQuestion(dns.Fqdn(host), dns.TypeA)

	resp, err := r.exchange(m)
	if err != nil {
		return nil, err
	}

	var out []string
	for _, rr := range resp.Answer {
		if a, ok := rr.(*dns.A); ok {
			out = append(out, a.A.String())
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("dnsutil: no A record for %s", host)
	}
	return out, nil
}
