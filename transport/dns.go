package transport

import (
	"context"
	"fmt"
	"net"

	"github.com/miekg/dns"
	"github.com/sirupsen/logrus"
)

const (
	// DefaultDNSDomain is the tunnel zone used when none is configured.
	DefaultDNSDomain = "t.phantomband.invalid."

	// minDNSLabelBudget is the fewest name octets a zone must leave for
	// payload labels: one full 63-octet label plus its length byte.
	minDNSLabelBudget = 64
)

// DNSTransport is the DNS-tunneled carrier.
//
// STATUS: NOT IMPLEMENTED - PLACEHOLDER
//
// Dial and Listen validate their input and return ErrNotImplemented. Callers
// should check for it with errors.Is. The tunnel zone is validated on
// construction so configuration errors surface early.
//
// IMPLEMENTATION PATH:
//  1. Encode upstream bytes as base32 labels under the tunnel zone
//  2. Carry downstream bytes in TXT answers
//  3. Poll with sequence-numbered queries to turn request/response into a stream
type DNSTransport struct {
	domain string
}

// NewDNSTransport creates a DNS transport for the tunnel zone domain. An
// empty domain selects DefaultDNSDomain.
func NewDNSTransport(domain string) (*DNSTransport, error) {
	if domain == "" {
		domain = DefaultDNSDomain
	}
	if _, ok := dns.IsDomainName(domain); !ok {
		return nil, fmt.Errorf("%w: invalid DNS tunnel domain %q", ErrTransport, domain)
	}
	fqdn := dns.Fqdn(domain)

	budget := labelBudget(fqdn)
	if budget < minDNSLabelBudget {
		return nil, fmt.Errorf("%w: DNS tunnel domain %q leaves %d octets for payload, need %d",
			ErrTransport, fqdn, budget, minDNSLabelBudget)
	}

	logrus.WithFields(logrus.Fields{
		"function":     "NewDNSTransport",
		"domain":       fqdn,
		"label_budget": budget,
	}).Warn("Creating DNS transport (NOT IMPLEMENTED - placeholder)")

	return &DNSTransport{domain: fqdn}, nil
}

// Name implements Transport.
func (t *DNSTransport) Name() string { return NameDNS }

// Domain returns the fully qualified tunnel zone.
func (t *DNSTransport) Domain() string { return t.domain }

// labelBudget is the number of name octets left for payload labels under
// the fully qualified zone fqdn.
func labelBudget(fqdn string) int {
	// A name is at most 255 octets on the wire; a FQDN takes len+1.
	return 255 - (len(fqdn) + 1)
}

// Dial implements Transport.
func (t *DNSTransport) Dial(ctx context.Context, address string) (net.Conn, error) {
	logrus.WithFields(logrus.Fields{
		"function": "DNSTransport.Dial",
		"address":  address,
	}).Debug("DNS dial requested")

	if _, _, err := net.SplitHostPort(address); err != nil {
		return nil, wrapErr("dial", NameDNS, address, err)
	}
	return nil, fmt.Errorf("%w: %w: dns", ErrTransport, ErrNotImplemented)
}

// Listen implements Transport.
func (t *DNSTransport) Listen(address string) (net.Listener, error) {
	logrus.WithFields(logrus.Fields{
		"function": "DNSTransport.Listen",
		"address":  address,
	}).Debug("DNS listen requested")

	if _, _, err := net.SplitHostPort(address); err != nil {
		return nil, wrapErr("listen", NameDNS, address, err)
	}
	return nil, fmt.Errorf("%w: %w: dns", ErrTransport, ErrNotImplemented)
}
