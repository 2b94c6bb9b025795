package vetting

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

// fakeVirusTotal answers submissions with a fixed id and reports the analysis
// as queued for the first `queued` polls.
func fakeVirusTotal(t *testing.T, queued int32, malicious int, submitStatus int) *httptest.Server {
	t.Helper()
	var polls int32

	mux := http.NewServeMux()
	mux.HandleFunc("/api/v3/urls", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("submit method = %s", r.Method)
		}
		if r.Header.Get("x-apikey") != "vt-key" {
			t.Errorf("missing x-apikey header")
		}
		if err := r.ParseForm(); err != nil || r.PostForm.Get("url") == "" {
			t.Errorf("submission carries no url: %v", err)
		}
		if submitStatus != http.StatusOK {
			w.WriteHeader(submitStatus)
			return
		}
		fmt.Fprint(w, `{"data":{"type":"analysis","id":"u-abc-123"}}`)
	})
	mux.HandleFunc("/api/v3/analyses/u-abc-123", func(w http.ResponseWriter, r *http.Request) {
		status := "completed"
		if atomic.AddInt32(&polls, 1) <= queued {
			status = "queued"
		}
		fmt.Fprintf(w, `{"data":{"attributes":{"status":%q,"stats":{"malicious":%d,"harmless":60}}}}`, status, malicious)
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestVirusTotal(baseURL string, pollTimeout time.Duration) *VirusTotalLookup {
	return NewVirusTotalLookup(VirusTotalOptions{
		APIKey:        "vt-key",
		BaseURL:       baseURL + "/api/v3/",
		SubmitTimeout: time.Second,
		PollTimeout:   pollTimeout,
		PollInterval:  10 * time.Millisecond,
		RatePerMinute: 600,
	})
}

func TestVirusTotalLookup(t *testing.T) {
	cases := []struct {
		name         string
		queued       int32
		malicious    int
		submitStatus int
		pollTimeout  time.Duration
		want         Outcome
		wantErr      bool
	}{
		{"flagged after polling", 2, 3, http.StatusOK, time.Second, OutcomeDetected, false},
		{"clean immediately", 0, 0, http.StatusOK, time.Second, OutcomeClean, false},
		{"never completes", 1 << 20, 0, http.StatusOK, 50 * time.Millisecond, OutcomeClean, true},
		{"submission rejected", 0, 0, http.StatusUnauthorized, time.Second, OutcomeClean, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := fakeVirusTotal(t, tc.queued, tc.malicious, tc.submitStatus)
			l := newTestVirusTotal(srv.URL, tc.pollTimeout)

			got, err := l.Lookup(context.Background(), "http://example.test/")
			if (err != nil) != tc.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tc.wantErr)
			}
			if got != tc.want {
				t.Fatalf("outcome = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestVirusTotalWithoutKey(t *testing.T) {
	l := NewVirusTotalLookup(VirusTotalOptions{BaseURL: "http://127.0.0.1:1"})
	if l.Configured() {
		t.Fatalf("lookup without key reports configured")
	}
	if _, err := l.Lookup(context.Background(), "example.com"); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("err = %v, want ErrNotConfigured", err)
	}
}

func TestVirusTotalQuotaExhaustedIsError(t *testing.T) {
	srv := fakeVirusTotal(t, 0, 0, http.StatusOK)
	l := NewVirusTotalLookup(VirusTotalOptions{
		APIKey:        "vt-key",
		BaseURL:       srv.URL + "/api/v3",
		SubmitTimeout: time.Second,
		PollTimeout:   time.Second,
		PollInterval:  10 * time.Millisecond,
		RatePerMinute: 1,
	})

	s := Signal{Name: "virustotal", Lookup: l, Timeout: 200 * time.Millisecond}
	if got := s.Vote(context.Background(), "http://a.test/"); got != VoteBenign {
		t.Fatalf("first vote = %s, want benign", got)
	}
	// the bucket is empty for the next minute, far beyond the timeout
	if got := s.Vote(context.Background(), "http://b.test/"); got != VoteError {
		t.Fatalf("second vote = %s, want error", got)
	}
}

func TestVirusTotalBudget(t *testing.T) {
	l := NewVirusTotalLookup(VirusTotalOptions{SubmitTimeout: 10 * time.Second, PollTimeout: 20 * time.Second})
	if l.Budget() != 30*time.Second {
		t.Fatalf("budget = %v", l.Budget())
	}
}
