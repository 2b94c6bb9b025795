package vetting

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"net"
	"strings"
	"time"

	whois "github.com/likexian/whois"
	parser "github.com/likexian/whois-parser"
	"golang.org/x/net/publicsuffix"
	"golang.org/x/sync/singleflight"

	"url-guardian/features"
)

var errNoDomain = errors.New("no registrable domain in url")

// dateLayouts are the WHOIS date formats we understand.
var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05Z",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"02-Jan-2006",
	"2006.01.02",
}

// RegistrableDomain returns the domain to query WHOIS for: the public-suffix
// eTLD+1 of the URL host, without a leading "www.". IP hosts yield "".
func RegistrableDomain(rawURL string) string {
	host := strings.TrimPrefix(features.Split(rawURL).Host(), "www.")
	if host == "" || net.ParseIP(host) != nil {
		return ""
	}
	if d, err := publicsuffix.EffectiveTLDPlusOne(host); err == nil {
		return d
	}
	return host
}

// WhoisLookup fetches registration facts over WHOIS. Concurrent lookups of
// the same domain share one query.
type WhoisLookup struct {
	fetch func(domain string) (string, error)
	now   func() time.Time
	group singleflight.Group
}

// NewWhoisLookup returns a lookup whose network round-trips are bounded by timeout.
func NewWhoisLookup(timeout time.Duration) *WhoisLookup {
	client := whois.NewClient().SetTimeout(timeout)
	return &WhoisLookup{
		fetch: func(domain string) (string, error) { return client.Whois(domain) },
		now:   time.Now,
	}
}

// Lookup returns the facts for domain, or all-unknown facts and an error.
func (w *WhoisLookup) Lookup(ctx context.Context, domain string) (RegistrationFacts, error) {
	if domain == "" {
		return UnknownFacts(domain), errNoDomain
	}

	ch := w.group.DoChan(domain, func() (interface{}, error) {
		return w.query(domain)
	})

	select {
	case <-ctx.Done():
		return UnknownFacts(domain), ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return UnknownFacts(domain), res.Err
		}
		facts := factsFromInfo(res.Val.(parser.WhoisInfo), w.now())
		facts.Domain = domain
		return facts, nil
	}
}

// query resolves the WHOIS record, retrying the parent domain when a
// subdomain's record cannot be parsed. Public suffixes are never queried.
func (w *WhoisLookup) query(domain string) (parser.WhoisInfo, error) {
	raw, err := w.fetch(domain)
	if err != nil {
		return parser.WhoisInfo{}, fmt.Errorf("whois %s: %w", domain, err)
	}

	info, err := parser.Parse(raw)
	if err != nil || info.Domain == nil {
		if parent, ok := parentDomain(domain); ok {
			log.Printf("[WHOIS] no parsable record for %s, trying %s", domain, parent)
			return w.query(parent)
		}
		if err == nil {
			err = errors.New("record has no domain section")
		}
		return parser.WhoisInfo{}, fmt.Errorf("parse whois for %s: %w", domain, err)
	}
	return info, nil
}

// parentDomain strips the leftmost label unless what remains is a public
// suffix such as "co.uk".
func parentDomain(domain string) (string, bool) {
	_, parent, found := strings.Cut(domain, ".")
	if !found || parent == "" {
		return "", false
	}
	if suffix, _ := publicsuffix.PublicSuffix(parent); suffix == parent {
		return "", false
	}
	return parent, true
}

// factsFromInfo derives day counts relative to now. A record without a
// registrar is treated as privacy protected.
func factsFromInfo(info parser.WhoisInfo, now time.Time) RegistrationFacts {
	facts := UnknownFacts("")
	if info.Domain == nil {
		return facts
	}

	if created, ok := parseWhoisDate(info.Domain.CreatedDate); ok {
		facts.DomainAge = Days(daysBetween(created, now))
	}
	if expiry, ok := parseWhoisDate(info.Domain.ExpirationDate); ok {
		facts.DaysUntilExpiry = Days(daysBetween(now, expiry))
	}

	if info.Registrar != nil && strings.TrimSpace(info.Registrar.Name) != "" {
		facts.Registrar = strings.TrimSpace(info.Registrar.Name)
		facts.Privacy = PrivacyNotEnabled
	} else {
		facts.Privacy = PrivacyEnabled
	}
	return facts
}

func parseWhoisDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, l := range dateLayouts {
		if t, err := time.Parse(l, s); err == nil {
			return t, true
		}
	}
	// "2006-01-02 15:04:05 UTC" and similar: keep the date part only
	if first := strings.Fields(s)[0]; first != s {
		return parseWhoisDate(first)
	}
	return time.Time{}, false
}

// daysBetween counts whole days from a to b, flooring like calendar math does
// for negative spans.
func daysBetween(a, b time.Time) int {
	return int(math.Floor(b.Sub(a).Hours() / 24))
}
