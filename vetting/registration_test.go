package vetting

import (
	"encoding/json"
	"testing"
)

func TestRegistrationVotePrecedence(t *testing.T) {
	cases := []struct {
		name  string
		facts RegistrationFacts
		want  Vote
	}{
		{
			name:  "young domain wins before privacy rule",
			facts: RegistrationFacts{DomainAge: Days(5), DaysUntilExpiry: Days(100), Privacy: PrivacyNotEnabled},
			want:  VoteMalicious,
		},
		{
			name:  "expiring soon",
			facts: RegistrationFacts{DomainAge: Days(500), DaysUntilExpiry: Days(3), Privacy: PrivacyNotEnabled},
			want:  VoteMalicious,
		},
		{
			name:  "privacy protection",
			facts: RegistrationFacts{DomainAge: Days(500), DaysUntilExpiry: Days(400), Privacy: PrivacyEnabled},
			want:  VoteMalicious,
		},
		{
			name:  "established domain",
			facts: RegistrationFacts{DomainAge: Days(500), DaysUntilExpiry: Days(400), Privacy: PrivacyNotEnabled},
			want:  VoteBenign,
		},
		{
			name:  "unknown age ignores everything else",
			facts: RegistrationFacts{DomainAge: UnknownDays, DaysUntilExpiry: Days(3), Privacy: PrivacyEnabled},
			want:  VoteUnknown,
		},
		{
			name:  "unknown age with benign facts",
			facts: RegistrationFacts{DomainAge: UnknownDays, DaysUntilExpiry: Days(400), Privacy: PrivacyNotEnabled},
			want:  VoteUnknown,
		},
		{
			name:  "known age with unknown expiry",
			facts: RegistrationFacts{DomainAge: Days(500), DaysUntilExpiry: UnknownDays, Privacy: PrivacyNotEnabled},
			want:  VoteMalicious,
		},
		{
			name:  "age boundary is exclusive",
			facts: RegistrationFacts{DomainAge: Days(30), DaysUntilExpiry: Days(7), Privacy: PrivacyNotEnabled},
			want:  VoteBenign,
		},
		{
			name:  "all unknown facts",
			facts: UnknownFacts("example.com"),
			want:  VoteUnknown,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := RegistrationVote(tc.facts); got != tc.want {
				t.Fatalf("RegistrationVote(%+v) = %s, want %s", tc.facts, got, tc.want)
			}
		})
	}
}

func TestRegistrationVoteIsPure(t *testing.T) {
	facts := RegistrationFacts{DomainAge: Days(45), DaysUntilExpiry: Days(20), Privacy: PrivacyNotEnabled, Registrar: "Example Registrar"}
	first := RegistrationVote(facts)
	for i := 0; i < 100; i++ {
		if got := RegistrationVote(facts); got != first {
			t.Fatalf("vote changed on call %d: %s vs %s", i, got, first)
		}
	}
}

func TestRegistrationFactsJSON(t *testing.T) {
	data, err := json.Marshal(UnknownFacts("example.com"))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `{"domain":"example.com","domain_age_days":"unknown","days_until_expiry":"unknown","privacy_protection":"unknown","registrar":"unknown"}`
	if string(data) != want {
		t.Fatalf("got  %s\nwant %s", data, want)
	}

	data, err = json.Marshal(RegistrationFacts{Domain: "a.io", DomainAge: Days(12), DaysUntilExpiry: Days(-2), Privacy: PrivacyEnabled, Registrar: "unknown"})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var back RegistrationFacts
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if back.DomainAge != Days(12) || back.DaysUntilExpiry != Days(-2) {
		t.Fatalf("day counts did not survive: %+v", back)
	}
}

func TestDayCountUnmarshal(t *testing.T) {
	cases := []struct {
		in      string
		want    DayCount
		wantErr bool
	}{
		{`42`, Days(42), false},
		{`-3`, Days(-3), false},
		{`"unknown"`, UnknownDays, false},
		{`"42"`, DayCount{}, true},
		{`"soon"`, DayCount{}, true},
		{`4.5`, DayCount{}, true},
		{`true`, DayCount{}, true},
	}
	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			var got DayCount
			err := json.Unmarshal([]byte(tc.in), &got)
			if (err != nil) != tc.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tc.wantErr)
			}
			if !tc.wantErr && got != tc.want {
				t.Fatalf("got %+v, want %+v", got, tc.want)
			}
		})
	}
}
