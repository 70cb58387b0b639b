package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	DataDir string `yaml:"data_dir"`

	// Crawl
	Seeds            []string      `yaml:"seed_urls"`
	MaxPages         int           `yaml:"max_pages"`
	MaxDepth         int           `yaml:"max_depth"`
	SameDomain       bool          `yaml:"same_domain"`
	CrawlConcurrency int           `yaml:"crawl_concurrency"`
	CrawlRateLimit   float64       `yaml:"crawl_rate_limit"`
	FetchTimeout     time.Duration `yaml:"fetch_timeout"`
	UserAgent        string        `yaml:"user_agent"`
	MaxContentBytes  int64         `yaml:"max_content_bytes"`
	ContentFormat    string        `yaml:"content_format"`

	// Corpus
	ChunkSize   int  `yaml:"chunk_size"`
	Deduplicate bool `yaml:"deduplicate"`

	// Index
	GroundXURL       string        `yaml:"groundx_url"`
	GroundXAPIKey    string        `yaml:"-"`
	GroundXBucketID  int           `yaml:"groundx_bucket_id"`
	IngestTimeout    time.Duration `yaml:"ingest_timeout"`
	LedgerFlushEvery int           `yaml:"ledger_flush_every"`
	LedgerLockWait   time.Duration `yaml:"ledger_lock_wait"`

	// Answers
	AnthropicAPIKey string `yaml:"-"`
	AnthropicModel  string `yaml:"anthropic_model"`

	// HTTP service
	Port         string        `yaml:"port"`
	APIKey       string        `yaml:"-"`
	MaxQueueSize int           `yaml:"max_queue_size"`
	RunTTL       time.Duration `yaml:"run_ttl"`

	// Logging
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
	LogFile   string `yaml:"log_file"`
}

// ConfigError lists every problem found in a configuration.
type ConfigError struct {
	Problems []string
}

func (e *ConfigError) Error() string {
	return "invalid configuration: " + strings.Join(e.Problems, "; ")
}

// Defaults returns the configuration used when nothing is set.
func Defaults() Config {
	return Config{
		DataDir: "data",

		MaxPages:         10,
		MaxDepth:         1,
		SameDomain:       true,
		CrawlConcurrency: 4,
		FetchTimeout:     30 * time.Second,
		UserAgent:        "sitegest/1.0 (+https://github.com/dgallion1/sitegest)",
		MaxContentBytes:  10 * 1024 * 1024,
		ContentFormat:    "markdown",

		ChunkSize:   200,
		Deduplicate: true,

		GroundXURL:     "https://api.groundx.ai/api/v1",
		IngestTimeout:  60 * time.Second,
		LedgerLockWait: 5 * time.Second,

		AnthropicModel: "claude-sonnet-4-5-20250929",

		Port:         "8090",
		MaxQueueSize: 16,
		RunTTL:       24 * time.Hour,

		LogLevel:  "info",
		LogFormat: "json",
	}
}

// Load builds the configuration: defaults, then the optional YAML file at
// path (or $SITEGEST_CONFIG), then environment variables. A .env file in
// the working directory is loaded into the environment first.
func Load(path string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, &ConfigError{Problems: []string{"load .env: " + err.Error()}}
	}

	cfg := Defaults()
	if path == "" {
		path = os.Getenv("SITEGEST_CONFIG")
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, &ConfigError{Problems: []string{"read config file: " + err.Error()}}
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, &ConfigError{Problems: []string{fmt.Sprintf("parse config file %s: %v", path, err)}}
		}
	}

	cfg.applyEnv()
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.DataDir = envOr("DATA_DIR", c.DataDir)

	if v := os.Getenv("SEED_URLS"); v != "" {
		c.Seeds = splitList(v)
	}
	c.MaxPages = envInt("MAX_PAGES", c.MaxPages)
	c.MaxDepth = envInt("MAX_DEPTH", c.MaxDepth)
	c.SameDomain = envBool("SAME_DOMAIN", c.SameDomain)
	c.CrawlConcurrency = envInt("CRAWL_CONCURRENCY", c.CrawlConcurrency)
	c.CrawlRateLimit = envFloat("CRAWL_RATE_LIMIT", c.CrawlRateLimit)
	c.FetchTimeout = envDuration("FETCH_TIMEOUT", c.FetchTimeout)
	c.UserAgent = envOr("USER_AGENT", c.UserAgent)
	c.MaxContentBytes = envInt64("MAX_CONTENT_BYTES", c.MaxContentBytes)
	c.ContentFormat = envOr("CONTENT_FORMAT", c.ContentFormat)

	c.ChunkSize = envInt("CHUNK_SIZE", c.ChunkSize)
	c.Deduplicate = envBool("DEDUPLICATE", c.Deduplicate)

	c.GroundXURL = envOr("GROUNDX_URL", c.GroundXURL)
	c.GroundXAPIKey = envOr("GROUNDX_API_KEY", c.GroundXAPIKey)
	c.GroundXBucketID = envInt("GROUNDX_BUCKET_ID", c.GroundXBucketID)
	c.IngestTimeout = envDuration("INGEST_TIMEOUT", c.IngestTimeout)
	c.LedgerFlushEvery = envInt("LEDGER_FLUSH_EVERY", c.LedgerFlushEvery)
	c.LedgerLockWait = envDuration("LEDGER_LOCK_WAIT", c.LedgerLockWait)

	c.AnthropicAPIKey = envOr("ANTHROPIC_API_KEY", c.AnthropicAPIKey)
	c.AnthropicModel = envOr("ANTHROPIC_MODEL", c.AnthropicModel)

	c.Port = envOr("PORT", c.Port)
	c.APIKey = envOr("SITEGEST_API_KEY", c.APIKey)
	c.MaxQueueSize = envInt("MAX_QUEUE_SIZE", c.MaxQueueSize)
	c.RunTTL = envDuration("RUN_TTL", c.RunTTL)

	c.LogLevel = envOr("LOG_LEVEL", c.LogLevel)
	c.LogFormat = envOr("LOG_FORMAT", c.LogFormat)
	c.LogFile = envOr("LOG_FILE", c.LogFile)
}

// applyDefaults repairs values that have a safe fallback.
func (c *Config) applyDefaults() {
	d := Defaults()
	if c.CrawlConcurrency <= 0 {
		c.CrawlConcurrency = d.CrawlConcurrency
	}
	if c.FetchTimeout <= 0 {
		c.FetchTimeout = d.FetchTimeout
	}
	if c.MaxContentBytes <= 0 {
		c.MaxContentBytes = d.MaxContentBytes
	}
	if c.IngestTimeout <= 0 {
		c.IngestTimeout = d.IngestTimeout
	}
	if c.MaxQueueSize <= 0 {
		c.MaxQueueSize = d.MaxQueueSize
	}
	if c.RunTTL <= 0 {
		c.RunTTL = d.RunTTL
	}
	if c.UserAgent == "" {
		c.UserAgent = d.UserAgent
	}
	c.ContentFormat = strings.ToLower(c.ContentFormat)
}

// Mode names the corpus layout in use.
func (c Config) Mode() string {
	if c.Deduplicate {
		return "deduplicate"
	}
	return "basic"
}

// PagesDir is where page records live for the current mode.
func (c Config) PagesDir() string {
	if c.Deduplicate {
		return filepath.Join(c.DataDir, "raw")
	}
	return filepath.Join(c.DataDir, "raw_basic")
}

// ChunksDir is where chunk records live for the current mode.
func (c Config) ChunksDir() string {
	if c.Deduplicate {
		return filepath.Join(c.DataDir, "cleaned")
	}
	return filepath.Join(c.DataDir, "cleaned_basic")
}

func (c Config) LedgerPath() string {
	return filepath.Join(c.DataDir, "ingested_hashes.json")
}

// ValidateCrawl checks what a crawl pass needs.
func (c Config) ValidateCrawl() error {
	var p problems
	c.checkCorpus(&p)
	if len(c.Seeds) == 0 {
		p.add("SEED_URLS is required")
	}
	for _, s := range c.Seeds {
		u, err := url.Parse(s)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			p.add(fmt.Sprintf("seed %q is not an http(s) URL", s))
		}
	}
	if c.MaxDepth < 0 {
		p.add("MAX_DEPTH must not be negative")
	}
	if c.MaxPages < 0 {
		p.add("MAX_PAGES must not be negative")
	}
	if c.CrawlRateLimit < 0 {
		p.add("CRAWL_RATE_LIMIT must not be negative")
	}
	if c.ContentFormat != "markdown" && c.ContentFormat != "text" {
		p.add(fmt.Sprintf("CONTENT_FORMAT must be markdown or text, got %q", c.ContentFormat))
	}
	return p.err()
}

// ValidateIngest checks what an ingestion pass needs.
func (c Config) ValidateIngest() error {
	var p problems
	c.checkCorpus(&p)
	c.checkIndex(&p)
	if c.LedgerFlushEvery < 0 {
		p.add("LEDGER_FLUSH_EVERY must not be negative")
	}
	return p.err()
}

// ValidateServe checks what the HTTP service needs.
func (c Config) ValidateServe() error {
	var p problems
	for _, validate := range []func() error{c.ValidateCrawl, c.ValidateIngest} {
		var ce *ConfigError
		if err := validate(); errors.As(err, &ce) {
			p = append(p, ce.Problems...)
		}
	}
	if c.APIKey == "" {
		p.add("SITEGEST_API_KEY is required")
	}
	if c.Port == "" {
		p.add("PORT is required")
	}
	return p.dedup().err()
}

// ValidateAsk checks what the chat loop needs.
func (c Config) ValidateAsk() error {
	var p problems
	c.checkIndex(&p)
	if c.AnthropicAPIKey == "" {
		p.add("ANTHROPIC_API_KEY is required")
	}
	return p.err()
}

func (c Config) checkCorpus(p *problems) {
	if c.DataDir == "" {
		p.add("DATA_DIR is required")
	}
	if c.ChunkSize <= 0 {
		p.add("CHUNK_SIZE must be positive")
	}
}

func (c Config) checkIndex(p *problems) {
	if c.GroundXAPIKey == "" {
		p.add("GROUNDX_API_KEY is required")
	}
	if c.GroundXBucketID <= 0 {
		p.add("GROUNDX_BUCKET_ID must be a positive integer")
	}
}

type problems []string

func (p *problems) add(msg string) {
	*p = append(*p, msg)
}

func (p problems) dedup() problems {
	seen := make(map[string]bool, len(p))
	out := p[:0:0]
	for _, msg := range p {
		if !seen[msg] {
			seen[msg] = true
			out = append(out, msg)
		}
	}
	return out
}

func (p problems) err() error {
	if len(p) == 0 {
		return nil
	}
	return &ConfigError{Problems: p}
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
