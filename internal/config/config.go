// Package config builds the immutable per-job configuration snapshot.
// Components receive it by value at construction; nothing reads ambient
// global state mid-run.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full configuration for one job. Constructed once at job
// start and treated as read-only by every worker.
type Config struct {
	Window       WindowConfig         `yaml:"window"`
	HTTP         HTTPConfig           `yaml:"http"`
	LLM          LLMConfig            `yaml:"llm"`
	Concurrency  ConcurrencyConfig    `yaml:"concurrency"`
	Discovery    DiscoveryConfig      `yaml:"discovery"`
	Summary      SummaryConfig        `yaml:"summary"`
	Scoring      ScoringConfig        `yaml:"scoring"`
	Output       OutputConfig         `yaml:"output"`
	Institutions []InstitutionProfile `yaml:"institutions"`

	// WellKnownNames lists proper names rendered in Chinese only,
	// without the "ChineseName (OriginalName)" parenthetical.
	WellKnownNames []string `yaml:"well_known_names"`
}

// WindowConfig defines the recency window for accepted articles.
// An empty Start means the window ends today and reaches back Days-1.
type WindowConfig struct {
	Start string `yaml:"start"` // YYYY-MM-DD, optional
	Days  int    `yaml:"days"`
}

// HTTPConfig covers all outbound page fetches.
type HTTPConfig struct {
	Timeout      time.Duration `yaml:"timeout"`
	UserAgent    string        `yaml:"user_agent"`
	MaxBodyBytes int64         `yaml:"max_body_bytes"`
	MaxRetries   int           `yaml:"max_retries"`
	HTTPProxy    string        `yaml:"http_proxy"`
	HTTPSProxy   string        `yaml:"https_proxy"`
}

// LLMConfig selects the AI backend shared by the verifier, summarizer
// and localizer.
type LLMConfig struct {
	Provider    string        `yaml:"provider"` // openai, openrouter, anthropic, ollama
	APIKey      string        `yaml:"api_key"`
	BaseURL     string        `yaml:"base_url"`
	VerifyModel string        `yaml:"verify_model"`
	WriteModel  string        `yaml:"write_model"` // Summaries and Chinese localization
	Timeout     time.Duration `yaml:"timeout"`
	MaxTokens   int           `yaml:"max_tokens"`
	MaxRetries  int           `yaml:"max_retries"`
}

// ConcurrencyConfig bounds the worker pool and the shared limiters.
type ConcurrencyConfig struct {
	ItemWorkers   int     `yaml:"item_workers"`    // Per-institution item pool size
	AIRequestsSec float64 `yaml:"ai_requests_sec"` // Global cap across all workers
	AIBurst       int     `yaml:"ai_burst"`
	FetchPerHost  float64 `yaml:"fetch_per_host"` // Page fetches per second per domain
	FetchBurst    int     `yaml:"fetch_burst"`
}

// DiscoveryConfig bounds the candidate sources.
type DiscoveryConfig struct {
	MaxCategoryPages int           `yaml:"max_category_pages"`
	MaxCandidates    int           `yaml:"max_candidates"`
	PageCacheTTL     time.Duration `yaml:"page_cache_ttl"`
	RespectRobots    bool          `yaml:"respect_robots"`
}

// SummaryConfig is the soft length target for English summaries.
type SummaryConfig struct {
	MinWords    int `yaml:"min_words"`
	MaxWords    int `yaml:"max_words"`
	RejectBelow int `yaml:"reject_below"` // Wildly-short output is treated as malformed
}

// ScoringConfig weights the coordinator's relevance score components.
// Weights are normalized over whichever components are present.
type ScoringConfig struct {
	ConfidenceWeight  float64 `yaml:"confidence_weight"`
	RecencyWeight     float64 `yaml:"recency_weight"`
	InstitutionWeight float64 `yaml:"institution_weight"`
}

// OutputConfig controls the sink.
type OutputConfig struct {
	Dir     string `yaml:"dir"`
	Verbose bool   `yaml:"verbose"`
}

// DefaultConfig returns the built-in defaults. Values mirror the
// production deployment: a one-week window, twenty final reports and a
// conservative global AI request rate.
func DefaultConfig() *Config {
	return &Config{
		Window: WindowConfig{Days: 7},
		HTTP: HTTPConfig{
			Timeout:      20 * time.Second,
			UserAgent:    "newsbridge/1.0 (+https://github.com/lqiu/newsbridge)",
			MaxBodyBytes: 2_000_000,
			MaxRetries:   3,
		},
		LLM: LLMConfig{
			Provider:    "openrouter",
			VerifyModel: "google/gemini-2.5-flash",
			WriteModel:  "google/gemini-2.5-pro",
			Timeout:     60 * time.Second,
			MaxTokens:   2000,
			MaxRetries:  3,
		},
		Concurrency: ConcurrencyConfig{
			ItemWorkers:   4,
			AIRequestsSec: 1,
			AIBurst:       2,
			FetchPerHost:  2,
			FetchBurst:    4,
		},
		Discovery: DiscoveryConfig{
			MaxCategoryPages: 20,
			MaxCandidates:    120,
			PageCacheTTL:     10 * time.Minute,
			RespectRobots:    true,
		},
		Summary: SummaryConfig{
			MinWords:    100,
			MaxWords:    180,
			RejectBelow: 20,
		},
		Scoring: ScoringConfig{
			ConfidenceWeight:  0.6,
			RecencyWeight:     0.3,
			InstitutionWeight: 0.1,
		},
		Output:         OutputConfig{Dir: "news-reports"},
		Institutions:   defaultInstitutions(),
		WellKnownNames: []string{"Donald Trump", "Joe Biden", "New York", "Google", "Harvard"},
	}
}

// Load reads a YAML config file over the defaults. Env overrides for
// secrets are applied afterwards.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}
	cfg.applyEnvOverrides()
	return cfg, nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("NEWSBRIDGE_LLM_API_KEY"); v != "" {
		c.LLM.APIKey = v
	}
	if c.LLM.APIKey == "" {
		switch c.LLM.Provider {
		case "openai":
			c.LLM.APIKey = os.Getenv("OPENAI_API_KEY")
		case "openrouter":
			c.LLM.APIKey = os.Getenv("OPENROUTER_API_KEY")
		case "anthropic", "claude":
			c.LLM.APIKey = os.Getenv("ANTHROPIC_API_KEY")
		}
	}
	if v := os.Getenv("NEWSBRIDGE_LLM_BASE_URL"); v != "" {
		c.LLM.BaseURL = v
	}
}

// Validate checks the fields a run cannot proceed without.
func (c *Config) Validate() error {
	if c.Window.Days <= 0 {
		return fmt.Errorf("window.days must be positive, got %d", c.Window.Days)
	}
	if c.Window.Start != "" {
		if _, err := time.Parse("2006-01-02", c.Window.Start); err != nil {
			return fmt.Errorf("window.start: expected YYYY-MM-DD: %w", err)
		}
	}
	if len(c.Institutions) == 0 {
		return fmt.Errorf("no institutions configured")
	}
	if c.LLM.Provider != "ollama" && c.LLM.APIKey == "" {
		return fmt.Errorf("LLM API key not set for provider %q", c.LLM.Provider)
	}
	return nil
}

// Institution looks up a profile by its ID.
func (c *Config) Institution(id string) (InstitutionProfile, bool) {
	for _, inst := range c.Institutions {
		if inst.ID == id {
			return inst, true
		}
	}
	return InstitutionProfile{}, false
}

// RecencyWindow resolves the configured window into concrete dates.
// With no explicit start the window is the trailing Days days ending at
// now's date.
func (c *Config) RecencyWindow(now time.Time) Window {
	days := c.Window.Days
	if days <= 0 {
		days = 7
	}
	if c.Window.Start != "" {
		if start, err := time.Parse("2006-01-02", c.Window.Start); err == nil {
			return Window{Start: start, End: start.AddDate(0, 0, days-1)}
		}
	}
	end := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	return Window{Start: end.AddDate(0, 0, -(days - 1)), End: end}
}

// Window is a resolved inclusive date range.
type Window struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether the date part of t falls inside the window.
func (w Window) Contains(t time.Time) bool {
	d := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return !d.Before(w.Start) && !d.After(w.End)
}

func (w Window) String() string {
	return fmt.Sprintf("%s to %s", w.Start.Format("2006-01-02"), w.End.Format("2006-01-02"))
}

// JobRequest is the value object external callers supply to start a
// job. The core never blocks on interactive input.
type JobRequest struct {
	InstitutionIDs []string
	WindowStart    string // YYYY-MM-DD, optional
	WindowDays     int
	MaxResults     int
}

// Apply overlays the request's explicit values onto a config snapshot,
// returning the effective copy for the job.
func (r JobRequest) Apply(base *Config) *Config {
	cfg := *base
	if r.WindowStart != "" {
		cfg.Window.Start = r.WindowStart
	}
	if r.WindowDays > 0 {
		cfg.Window.Days = r.WindowDays
	}
	return &cfg
}
