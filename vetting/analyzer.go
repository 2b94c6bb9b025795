package vetting

import (
	"context"
	"errors"
	"log"
	"time"

	"golang.org/x/sync/errgroup"

	"url-guardian/classifier"
	"url-guardian/features"
)

// ErrMissingURL is returned when no URL was submitted.
var ErrMissingURL = errors.New("URL parameter is required")

// RegistrationLookup resolves registration facts for a domain.
type RegistrationLookup interface {
	Lookup(ctx context.Context, domain string) (RegistrationFacts, error)
}

// ModelReport is the classifier's part of a verdict.
type ModelReport struct {
	classifier.Result
	Vote     Vote    `json:"vote"`
	Accuracy float64 `json:"accuracy"`
}

// Verdict is the fused classification of one URL together with its evidence.
type Verdict struct {
	URL            string            `json:"url"`
	Model          ModelReport       `json:"model"`
	ExternalChecks map[string]Vote   `json:"external_checks"`
	Registration   RegistrationFacts `json:"registration_facts"`
	Summary        FusionSummary     `json:"summary"`
	FinalVerdict   Vote              `json:"final_verdict"`
	Status         string            `json:"status"`
	Timestamp      string            `json:"timestamp"`
}

// Analyzer gathers the four opinions about a URL and fuses them.
type Analyzer struct {
	Model               *classifier.Model
	Registration        RegistrationLookup
	RegistrationTimeout time.Duration
	ThreatList          Signal
	ScanEngine          Signal
	Now                 func() time.Time
}

// Analyze classifies rawURL. The four lookups run concurrently, each bounded
// by its own timeout; a failed lookup degrades its vote and never aborts the
// analysis.
func (a *Analyzer) Analyze(ctx context.Context, rawURL string) (*Verdict, error) {
	if rawURL == "" {
		return nil, ErrMissingURL
	}

	vec := features.Extract(rawURL)
	domain := RegistrableDomain(rawURL)

	var (
		modelRes   = classifier.UnknownResult()
		facts      = UnknownFacts(domain)
		threatVote = VoteError
		scanVote   = VoteError
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(guard(SourceModel, func() {
		modelRes = a.Model.Classify(vec)
	}))

	g.Go(guard(SourceRegistration, func() {
		facts = a.lookupRegistration(gctx, domain)
	}))

	g.Go(guard(SourceThreatList, func() {
		threatVote = a.ThreatList.Vote(gctx, rawURL)
	}))

	g.Go(guard(SourceScanEngine, func() {
		scanVote = a.ScanEngine.Vote(gctx, rawURL)
	}))

	_ = g.Wait()

	votes := Votes{
		Model:        ModelVote(modelRes.Label),
		Registration: RegistrationVote(facts),
		ThreatList:   threatVote,
		ScanEngine:   scanVote,
	}
	final, summary := Fuse(votes)

	now := time.Now
	if a.Now != nil {
		now = a.Now
	}

	v := &Verdict{
		URL: rawURL,
		Model: ModelReport{
			Result:   modelRes,
			Vote:     votes.Model,
			Accuracy: a.Model.Accuracy(),
		},
		ExternalChecks: map[string]Vote{
			SourceThreatList:   votes.ThreatList,
			SourceScanEngine:   votes.ScanEngine,
			SourceRegistration: votes.Registration,
		},
		Registration: facts,
		Summary:      summary,
		FinalVerdict: final,
		Status:       "success",
		Timestamp:    now().Format(time.RFC3339),
	}

	log.Printf("[ANALYZE] %s -> %s (%s)", rawURL, final, summary.Reason)
	return v, nil
}

func (a *Analyzer) lookupRegistration(ctx context.Context, domain string) RegistrationFacts {
	if a.Registration == nil || domain == "" {
		return UnknownFacts(domain)
	}
	if a.RegistrationTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.RegistrationTimeout)
		defer cancel()
	}

	facts, err := a.Registration.Lookup(ctx, domain)
	if err != nil {
		log.Printf("[WHOIS] lookup failed for %s: %v", domain, err)
		return UnknownFacts(domain)
	}
	return facts
}

// guard keeps a panicking source from taking the process down; its vote
// keeps the degraded default.
func guard(source string, fn func()) func() error {
	return func() error {
		defer func() {
			if rec := recover(); rec != nil {
				log.Printf("[ANALYZE] %s panicked: %v", source, rec)
			}
		}()
		fn()
		return nil
	}
}
