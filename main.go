package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"url-guardian/classifier"
	"url-guardian/config"
	"url-guardian/vetting"
)

func main() {
	configPath := flag.String("config", "guardian.yaml", "Path to config file")
	addrFlag := flag.String("addr", "", "HTTP listen address (overrides config)")
	oneShot := flag.String("url", "", "Analyze a single URL, print the verdict and exit")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	model := classifier.Load(cfg.Model.BundleDir, classifier.Options{
		InputName:         cfg.Model.InputName,
		LabelOutput:       cfg.Model.LabelOutput,
		ProbabilityOutput: cfg.Model.ProbabilityOutput,
		SharedLibraryPath: cfg.Model.SharedLibraryPath,
	})
	defer model.Close()

	analyzer := newAnalyzer(cfg, model)

	if *oneShot != "" {
		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		verdict, err := analyzer.Analyze(ctx, *oneShot)
		if err != nil {
			log.Fatalf("analyze: %v", err)
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(verdict); err != nil {
			log.Fatalf("encode verdict: %v", err)
		}
		return
	}

	addr := cfg.Server.Addr
	if *addrFlag != "" {
		addr = *addrFlag
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           vetting.Routes(analyzer),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	log.Printf("✅ url-guardian listening on %s", addr)
	log.Println("📍 Endpoints:")
	log.Println("   GET /analyze?url=YOUR_URL")
	log.Println("   GET /health")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		log.Printf("shutting down on %s", sig)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			log.Printf("shutdown: %v", err)
		}
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}
}

func newAnalyzer(cfg *config.Config, model *classifier.Model) *vetting.Analyzer {
	tl := cfg.ThreatList
	var threat vetting.Signal
	switch tl.Provider {
	case "dnsbl":
		threat = vetting.Signal{
			Name:    "dnsbl",
			Lookup:  vetting.NewDNSBLLookup(tl.DNSBL.Resolver, tl.DNSBL.Zones),
			Timeout: tl.Timeout,
		}
	default:
		if tl.Provider != "safebrowsing" {
			log.Printf("[THREATLIST] unknown provider %q, using safebrowsing", tl.Provider)
		}
		threat = vetting.Signal{
			Name:    "safebrowsing",
			Lookup:  vetting.NewSafeBrowsingLookup(tl.APIKey, tl.Endpoint),
			Timeout: tl.Timeout,
		}
	}

	se := cfg.ScanEngine
	vt := vetting.NewVirusTotalLookup(vetting.VirusTotalOptions{
		APIKey:        se.APIKey,
		BaseURL:       se.BaseURL,
		SubmitTimeout: se.SubmitTimeout,
		PollTimeout:   se.PollTimeout,
		PollInterval:  se.PollInterval,
		RatePerMinute: se.RatePerMinute,
	})

	return &vetting.Analyzer{
		Model:               model,
		Registration:        vetting.NewWhoisLookup(cfg.Registration.Timeout),
		RegistrationTimeout: cfg.Registration.Timeout,
		ThreatList:          threat,
		ScanEngine: vetting.Signal{
			Name:    "virustotal",
			Lookup:  vt,
			Timeout: vt.Budget(),
		},
	}
}
