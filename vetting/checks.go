package vetting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/miekg/dns"

	"url-guardian/features"
)

//
// GOOGLE SAFE BROWSING
//

// SafeBrowsingLookup queries the Safe Browsing v4 threatMatches:find API.
type SafeBrowsingLookup struct {
	apiKey   string
	endpoint string
	client   *http.Client
}

func NewSafeBrowsingLookup(apiKey, endpoint string) *SafeBrowsingLookup {
	return &SafeBrowsingLookup{
		apiKey:   apiKey,
		endpoint: endpoint,
		client:   &http.Client{},
	}
}

func (s *SafeBrowsingLookup) Configured() bool { return s.apiKey != "" }

type sbThreatEntry struct {
	URL string `json:"url"`
}

type sbRequest struct {
	Client struct {
		ClientID      string `json:"clientId"`
		ClientVersion string `json:"clientVersion"`
	} `json:"client"`
	ThreatInfo struct {
		ThreatTypes      []string        `json:"threatTypes"`
		PlatformTypes    []string        `json:"platformTypes"`
		ThreatEntryTypes []string        `json:"threatEntryTypes"`
		ThreatEntries    []sbThreatEntry `json:"threatEntries"`
	} `json:"threatInfo"`
}

// Lookup reports Detected when the URL matches any threat list.
func (s *SafeBrowsingLookup) Lookup(ctx context.Context, rawURL string) (Outcome, error) {
	if s.apiKey == "" {
		return OutcomeClean, ErrNotConfigured
	}

	var payload sbRequest
	payload.Client.ClientID = "url-guardian"
	payload.Client.ClientVersion = "1.0.0"
	payload.ThreatInfo.ThreatTypes = []string{"MALWARE", "SOCIAL_ENGINEERING"}
	payload.ThreatInfo.PlatformTypes = []string{"ANY_PLATFORM"}
	payload.ThreatInfo.ThreatEntryTypes = []string{"URL"}
	payload.ThreatInfo.ThreatEntries = []sbThreatEntry{{URL: rawURL}}

	body, err := json.Marshal(payload)
	if err != nil {
		return OutcomeClean, err
	}

	endpoint := s.endpoint + "?key=" + url.QueryEscape(s.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return OutcomeClean, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return OutcomeClean, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return OutcomeClean, fmt.Errorf("safe browsing error: %v", resp.Status)
	}

	var result struct {
		Matches []json.RawMessage `json:"matches"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return OutcomeClean, fmt.Errorf("decode safe browsing response: %w", err)
	}

	if len(result.Matches) > 0 {
		log.Printf("[SAFEBROWSING] ⚠️ %s matched %d threat entries", rawURL, len(result.Matches))
		return OutcomeDetected, nil
	}
	return OutcomeClean, nil
}

//
// DNS BLOCKLISTS
//

// dnsblRefusals are answers zones give instead of a listing when they refuse
// to serve the query (public resolver, over quota).
var dnsblRefusals = map[string]bool{
	"127.0.0.1":       true,
	"127.255.255.252": true,
	"127.255.255.254": true,
	"127.255.255.255": true,
}

// DNSBLLookup checks the URL's domain against DNS-based URI blocklists.
type DNSBLLookup struct {
	resolver string
	zones    []string
	client   *dns.Client
}

func NewDNSBLLookup(resolver string, zones []string) *DNSBLLookup {
	return &DNSBLLookup{
		resolver: resolver,
		zones:    zones,
		client:   &dns.Client{Net: "udp", Timeout: 2 * time.Second},
	}
}

// Configured is true whenever zones are set; blocklists need no credential.
func (d *DNSBLLookup) Configured() bool { return len(d.zones) > 0 }

// Lookup reports Detected as soon as one zone lists the domain. It fails only
// when no zone could be consulted.
func (d *DNSBLLookup) Lookup(ctx context.Context, rawURL string) (Outcome, error) {
	name := dnsblName(rawURL)
	if name == "" {
		return OutcomeClean, fmt.Errorf("no host in %q", rawURL)
	}
	if len(d.zones) == 0 {
		return OutcomeClean, ErrNotConfigured
	}

	log.Printf("[DNSBL] Checking %s against %d zones", name, len(d.zones))

	var lastErr error
	answered := 0
	for _, zone := range d.zones {
		listed, err := d.query(ctx, name, zone)
		if err != nil {
			lastErr = err
			continue
		}
		answered++
		if listed {
			log.Printf("[DNSBL] ⚠️ %s LISTED on %s", name, zone)
			return OutcomeDetected, nil
		}
	}

	if answered == 0 {
		return OutcomeClean, fmt.Errorf("all %d zones failed: %w", len(d.zones), lastErr)
	}
	return OutcomeClean, nil
}

func (d *DNSBLLookup) query(ctx context.Context, name, zone string) (bool, error) {
	m := new(dns.Msg)
	m.SetQuestion(dns.Fqdn(name+"."+zone), dns.TypeA)
	m.RecursionDesired = true

	r, _, err := d.client.ExchangeContext(ctx, m, d.resolver)
	if err != nil {
		return false, fmt.Errorf("query %s: %w", zone, err)
	}

	switch r.Rcode {
	case dns.RcodeNameError:
		return false, nil
	case dns.RcodeSuccess:
	default:
		return false, fmt.Errorf("query %s: rcode %s", zone, dns.RcodeToString[r.Rcode])
	}

	refused := false
	for _, rr := range r.Answer {
		a, ok := rr.(*dns.A)
		if !ok {
			continue
		}
		ip := a.A.String()
		if !strings.HasPrefix(ip, "127.") {
			log.Printf("[DNSBL] Ignoring non-standard response from %s: %s", zone, ip)
			continue
		}
		if dnsblRefusals[ip] {
			refused = true
			continue
		}
		return true, nil
	}
	if refused {
		return false, fmt.Errorf("query %s: refused by zone", zone)
	}
	return false, nil
}

// dnsblName is the registrable domain, or the reversed address for IPv4 hosts.
func dnsblName(rawURL string) string {
	host := features.Split(rawURL).Host()
	if ip := net.ParseIP(host); ip != nil {
		return reverseIP(ip)
	}
	return RegistrableDomain(rawURL)
}

func reverseIP(ip net.IP) string {
	v4 := ip.To4()
	if v4 == nil {
		return ""
	}
	return fmt.Sprintf("%d.%d.%d.%d", v4[3], v4[2], v4[1], v4[0])
}
