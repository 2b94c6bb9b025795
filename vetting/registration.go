package vetting

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Registration heuristic thresholds.
const (
	minDomainAgeDays = 30
	minDaysToExpiry  = 7
	unknownRegistrar = "unknown"
)

// DayCount is a day count that may be unknown. Unknown values encode as the
// string "unknown".
type DayCount struct {
	Days  int
	Known bool
}

// Days returns a known day count.
func Days(n int) DayCount { return DayCount{Days: n, Known: true} }

// UnknownDays is the zero DayCount.
var UnknownDays = DayCount{}

func (d DayCount) MarshalJSON() ([]byte, error) {
	if !d.Known {
		return []byte(`"unknown"`), nil
	}
	return []byte(strconv.Itoa(d.Days)), nil
}

// UnmarshalJSON accepts a whole number of days or the literal "unknown".
func (d *DayCount) UnmarshalJSON(data []byte) error {
	if string(data) == `"unknown"` {
		*d = UnknownDays
		return nil
	}
	var n int
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("day count: %w", err)
	}
	*d = Days(n)
	return nil
}

// Privacy is the registrant privacy-protection status.
type Privacy string

const (
	PrivacyEnabled    Privacy = "enabled"
	PrivacyNotEnabled Privacy = "not_enabled"
	PrivacyUnknown    Privacy = "unknown"
)

// RegistrationFacts are what a WHOIS lookup tells us about a domain.
type RegistrationFacts struct {
	Domain          string   `json:"domain"`
	DomainAge       DayCount `json:"domain_age_days"`
	DaysUntilExpiry DayCount `json:"days_until_expiry"`
	Privacy         Privacy  `json:"privacy_protection"`
	Registrar       string   `json:"registrar"`
}

// UnknownFacts is the result of a failed lookup.
func UnknownFacts(domain string) RegistrationFacts {
	return RegistrationFacts{
		Domain:          domain,
		DomainAge:       UnknownDays,
		DaysUntilExpiry: UnknownDays,
		Privacy:         PrivacyUnknown,
		Registrar:       unknownRegistrar,
	}
}

// RegistrationVote applies the registration heuristic; the first matching
// rule wins. Young domains, domains about to expire and privacy-shielded
// registrations are each sufficient for a malicious vote.
//
// An unknown expiry with a known age votes malicious, and privacy protection
// alone votes malicious. Both produce false positives on legitimate domains
// and are kept for parity with the deployed heuristic.
func RegistrationVote(f RegistrationFacts) Vote {
	switch {
	case !f.DomainAge.Known:
		return VoteUnknown
	case f.DomainAge.Days < minDomainAgeDays:
		return VoteMalicious
	case !f.DaysUntilExpiry.Known || f.DaysUntilExpiry.Days < minDaysToExpiry:
		return VoteMalicious
	case f.Privacy == PrivacyEnabled:
		return VoteMalicious
	default:
		return VoteBenign
	}
}
