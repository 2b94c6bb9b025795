package config

import (
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds the analyzer service configuration.
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Model        ModelConfig        `yaml:"model"`
	Registration RegistrationConfig `yaml:"registration"`
	ThreatList   ThreatListConfig   `yaml:"threat_list"`
	ScanEngine   ScanEngineConfig   `yaml:"scan_engine"`
}

type ServerConfig struct {
	Addr string `yaml:"addr"` // HTTP listen address, e.g. ":5000"
}

type ModelConfig struct {
	BundleDir         string `yaml:"bundle_dir"`
	InputName         string `yaml:"input_name"`
	LabelOutput       string `yaml:"label_output"`
	ProbabilityOutput string `yaml:"probability_output"`
	SharedLibraryPath string `yaml:"shared_library_path"`
}

type RegistrationConfig struct {
	Timeout time.Duration `yaml:"timeout"`
}

type ThreatListConfig struct {
	Provider  string        `yaml:"provider"`    // safebrowsing | dnsbl
	APIKeyEnv string        `yaml:"api_key_env"` // e.g. "GOOGLE_SAFE_BROWSING_KEY"
	Endpoint  string        `yaml:"endpoint"`
	Timeout   time.Duration `yaml:"timeout"`
	DNSBL     DNSBLConfig   `yaml:"dnsbl"`

	// APIKey is resolved from APIKeyEnv, never read from YAML.
	APIKey string `yaml:"-"`
}

type DNSBLConfig struct {
	Resolver string   `yaml:"resolver"`
	Zones    []string `yaml:"zones"`
}

type ScanEngineConfig struct {
	APIKeyEnv     string        `yaml:"api_key_env"` // e.g. "VIRUSTOTAL_API_KEY"
	BaseURL       string        `yaml:"base_url"`
	SubmitTimeout time.Duration `yaml:"submit_timeout"`
	PollTimeout   time.Duration `yaml:"poll_timeout"`
	PollInterval  time.Duration `yaml:"poll_interval"`
	RatePerMinute float64       `yaml:"rate_per_minute"`

	APIKey string `yaml:"-"`
}

// Load reads configuration from a YAML file and resolves credentials from the
// environment (after loading any .env file). A missing file yields defaults.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	case !os.IsNotExist(err):
		return nil, err
	}

	applyDefaults(cfg)
	applyEnv(cfg)
	return cfg, nil
}

func defaultConfig() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":5000"
	}

	if cfg.Model.BundleDir == "" {
		cfg.Model.BundleDir = "model"
	}

	if cfg.Registration.Timeout <= 0 {
		cfg.Registration.Timeout = 10 * time.Second
	}

	tl := &cfg.ThreatList
	if tl.Provider == "" {
		tl.Provider = "safebrowsing"
	}
	tl.Provider = strings.ToLower(tl.Provider)
	if tl.APIKeyEnv == "" {
		tl.APIKeyEnv = "GOOGLE_SAFE_BROWSING_KEY"
	}
	if tl.Endpoint == "" {
		tl.Endpoint = "https://safebrowsing.googleapis.com/v4/threatMatches:find"
	}
	if tl.Timeout <= 0 {
		tl.Timeout = 5 * time.Second
	}
	if tl.DNSBL.Resolver == "" {
		tl.DNSBL.Resolver = "8.8.8.8:53"
	}
	if len(tl.DNSBL.Zones) == 0 {
		tl.DNSBL.Zones = []string{
			"multi.surbl.org",
			"uribl.spameatingmonkey.net",
			"dbl.spamhaus.org",
		}
	}

	se := &cfg.ScanEngine
	if se.APIKeyEnv == "" {
		se.APIKeyEnv = "VIRUSTOTAL_API_KEY"
	}
	if se.BaseURL == "" {
		se.BaseURL = "https://www.virustotal.com/api/v3"
	}
	se.BaseURL = strings.TrimRight(se.BaseURL, "/")
	if se.SubmitTimeout <= 0 {
		se.SubmitTimeout = 10 * time.Second
	}
	if se.PollTimeout <= 0 {
		se.PollTimeout = 10 * time.Second
	}
	if se.PollInterval <= 0 {
		se.PollInterval = 2 * time.Second
	}
	if se.RatePerMinute <= 0 {
		// public API quota
		se.RatePerMinute = 4
	}
}

func applyEnv(cfg *Config) {
	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		cfg.Server.Addr = ":" + port
	}
	cfg.ThreatList.APIKey = strings.TrimSpace(os.Getenv(cfg.ThreatList.APIKeyEnv))
	cfg.ScanEngine.APIKey = strings.TrimSpace(os.Getenv(cfg.ScanEngine.APIKeyEnv))
}
