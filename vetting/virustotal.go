package vetting

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// VirusTotalOptions configure the scan-engine lookup.
type VirusTotalOptions struct {
	APIKey        string
	BaseURL       string
	SubmitTimeout time.Duration
	PollTimeout   time.Duration
	PollInterval  time.Duration
	RatePerMinute float64
}

// VirusTotalLookup submits a URL for analysis and polls for the engines'
// verdict. Submissions are paced to the account's per-minute quota.
type VirusTotalLookup struct {
	opts    VirusTotalOptions
	client  *http.Client
	limiter *rate.Limiter
}

func NewVirusTotalLookup(opts VirusTotalOptions) *VirusTotalLookup {
	if opts.PollInterval <= 0 {
		opts.PollInterval = 2 * time.Second
	}
	if opts.RatePerMinute <= 0 {
		opts.RatePerMinute = 4
	}
	opts.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	burst := int(math.Ceil(opts.RatePerMinute))

	return &VirusTotalLookup{
		opts:    opts,
		client:  &http.Client{},
		limiter: rate.NewLimiter(rate.Limit(opts.RatePerMinute/60), burst),
	}
}

func (v *VirusTotalLookup) Configured() bool { return v.opts.APIKey != "" }

// Budget is the longest a lookup may take: one submission plus polling.
func (v *VirusTotalLookup) Budget() time.Duration {
	return v.opts.SubmitTimeout + v.opts.PollTimeout
}

type vtAnalysis struct {
	Data struct {
		Attributes struct {
			Status string `json:"status"`
			Stats  struct {
				Malicious  int `json:"malicious"`
				Suspicious int `json:"suspicious"`
				Harmless   int `json:"harmless"`
				Undetected int `json:"undetected"`
			} `json:"stats"`
		} `json:"attributes"`
	} `json:"data"`
}

// Lookup reports Detected when at least one engine flags the URL. An
// analysis still queued when the poll budget runs out is an error.
func (v *VirusTotalLookup) Lookup(ctx context.Context, rawURL string) (Outcome, error) {
	if v.opts.APIKey == "" {
		return OutcomeClean, ErrNotConfigured
	}

	if err := v.limiter.Wait(ctx); err != nil {
		return OutcomeClean, fmt.Errorf("submission quota: %w", err)
	}

	id, err := v.submit(ctx, rawURL)
	if err != nil {
		return OutcomeClean, err
	}

	pollCtx := ctx
	if v.opts.PollTimeout > 0 {
		var cancel context.CancelFunc
		pollCtx, cancel = context.WithTimeout(ctx, v.opts.PollTimeout)
		defer cancel()
	}

	for {
		a, err := v.analysis(pollCtx, id)
		if err != nil {
			return OutcomeClean, err
		}
		attrs := a.Data.Attributes
		if attrs.Status == "completed" {
			if attrs.Stats.Malicious > 0 {
				log.Printf("[VIRUSTOTAL] ⚠️ %s flagged by %d engines", rawURL, attrs.Stats.Malicious)
				return OutcomeDetected, nil
			}
			return OutcomeClean, nil
		}

		select {
		case <-pollCtx.Done():
			return OutcomeClean, fmt.Errorf("analysis %s still %q: %w", id, attrs.Status, pollCtx.Err())
		case <-time.After(v.opts.PollInterval):
		}
	}
}

func (v *VirusTotalLookup) submit(ctx context.Context, rawURL string) (string, error) {
	if v.opts.SubmitTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, v.opts.SubmitTimeout)
		defer cancel()
	}

	form := url.Values{"url": {rawURL}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.opts.BaseURL+"/urls", strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	v.setHeaders(req)

	resp, err := v.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("virustotal submit error: %v", resp.Status)
	}

	var out struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode submission: %w", err)
	}
	if out.Data.ID == "" {
		return "", errors.New("submission returned no analysis id")
	}
	return out.Data.ID, nil
}

func (v *VirusTotalLookup) analysis(ctx context.Context, id string) (*vtAnalysis, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.opts.BaseURL+"/analyses/"+url.PathEscape(id), nil)
	if err != nil {
		return nil, err
	}
	v.setHeaders(req)

	resp, err := v.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("virustotal analysis error: %v", resp.Status)
	}

	var a vtAnalysis
	if err := json.NewDecoder(resp.Body).Decode(&a); err != nil {
		return nil, fmt.Errorf("decode analysis: %w", err)
	}
	return &a, nil
}

func (v *VirusTotalLookup) setHeaders(req *http.Request) {
	req.Header.Set("x-apikey", v.opts.APIKey)
	req.Header.Set("accept", "application/json")
}
