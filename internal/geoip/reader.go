package geoip

import (
	"context"
	"net"

	"github.com/oschwald/geoip2-golang"
	"github.com/rs/zerolog/log"
)

// IPResolver resolves host names to IP addresses. *net.Resolver implements it.
type IPResolver interface {
	LookupIP(ctx context.Context, network, host string) ([]net.IP, error)
}

// Provider wraps the GeoIP2 database reader to provide country lookup functionality.
// A nil *Provider is valid and never knows a country.
type Provider struct {
	db *geoip2.Reader
}

// Open initializes the GeoIP database reader from a specific file path.
func Open(path string) (*Provider, error) {
	db, err := geoip2.Open(path)
	if err != nil {
		return nil, err
	}

	return &Provider{db: db}, nil
}

// Close closes the underlying GeoIP database reader.
func (p *Provider) Close() error {
	if p == nil {
		return nil
	}

	return p.db.Close()
}

// GetCountryCode looks up the ISO country code (e.g., "US", "DE") for a given IP address string.
// It returns an empty string if the IP is invalid or the country cannot be determined.
func (p *Provider) GetCountryCode(ipStr string) string {
	if p == nil {
		return ""
	}

	ip := net.ParseIP(ipStr)
	if ip == nil {
		return ""
	}

	record, err := p.db.Country(ip)
	if err != nil {
		return ""
	}

	return record.Country.IsoCode
}

// LookupHost resolves host and returns its first address with the country of
// that address. Literal IPs are not resolved. Both results are empty when host
// cannot be resolved.
func (p *Provider) LookupHost(ctx context.Context, resolver IPResolver, host string) (ip, country string) {
	if parsed := net.ParseIP(host); parsed != nil {
		ip = parsed.String()
	} else {
		if resolver == nil {
			resolver = net.DefaultResolver
		}

		ips, err := resolver.LookupIP(ctx, "ip", host)
		if err != nil || len(ips) == 0 {
			log.Debug().Err(err).Str("host", host).Msg("Failed to resolve host for GeoIP")
			return "", ""
		}
		ip = ips[0].String()
	}

	return ip, p.GetCountryCode(ip)
}
