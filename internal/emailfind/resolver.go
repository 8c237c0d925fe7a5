package emailfind

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/miekg/dns"
)

const fallbackResolver = "8.8.8.8:53"

// MXResolver answers MX queries against the system resolver, falling back to
// a public resolver when /etc/resolv.conf is unavailable.
type MXResolver struct {
	client *dns.Client
	server string
}

func NewMXResolver() *MXResolver {
	server := fallbackResolver
	if conf, err := dns.ClientConfigFromFile("/etc/resolv.conf"); err == nil && len(conf.Servers) > 0 {
		server = net.JoinHostPort(conf.Servers[0], conf.Port)
	}
	return &MXResolver{
		client: &dns.Client{Timeout: 5 * time.Second},
		server: server,
	}
}

// HasMX reports whether domain publishes at least one MX record. NXDOMAIN is
// a plain false, not an error.
func (r *MXResolver) HasMX(ctx context.Context, domain string) (bool, error) {
	msg := new(dns.Msg)
	msg.SetQuestion(dns.Fqdn(domain), dns.TypeMX)

	reply, _, err := r.client.ExchangeContext(ctx, msg, r.server)
	if err != nil {
		return false, fmt.Errorf("mx query failed: %w", err)
	}

	switch reply.Rcode {
	case dns.RcodeSuccess:
	case dns.RcodeNameError:
		return false, nil
	default:
		return false, fmt.Errorf("mx query returned rcode %s", dns.RcodeToString[reply.Rcode])
	}

	for _, answer := range reply.Answer {
		if _, ok := answer.(*dns.MX); ok {
			return true, nil
		}
	}
	return false, nil
}
