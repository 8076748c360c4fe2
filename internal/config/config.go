// Package config loads the site list and runtime knobs from a YAML file,
// with .env and environment overrides on top.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/deidaraiorek/sitesearch/internal/parser"
)

// Site is one crawled website. URL is the site root: every page on the
// same host (with or without "www.") belongs to it.
type Site struct {
	Name string `yaml:"name"`
	URL  string `yaml:"url"`
}

type Crawler struct {
	Parallelism     int           `yaml:"parallelism"`
	SiteWorkers     int           `yaml:"site_workers"`
	UserAgent       string        `yaml:"user_agent"`
	Referrer        string        `yaml:"referrer"`
	Timeout         time.Duration `yaml:"timeout"`
	DelayMin        time.Duration `yaml:"delay_min"`
	DelayMax        time.Duration `yaml:"delay_max"`
	BrowserFallback bool          `yaml:"browser_fallback"`
}

type Parser struct {
	// Mode is "body" (whole <body> text) or "readability" (main article only).
	Mode string `yaml:"mode"`
}

type Search struct {
	DefaultLimit          int `yaml:"default_limit"`
	FrequentLemmaMinPages int `yaml:"frequent_lemma_min_pages"`
}

type Storage struct {
	Driver string `yaml:"driver"`
	Path   string `yaml:"path"`
}

type Server struct {
	Addr string `yaml:"addr"`
}

type Config struct {
	Sites   []Site  `yaml:"sites"`
	Crawler Crawler `yaml:"crawler"`
	Parser  Parser  `yaml:"parser"`
	Search  Search  `yaml:"search"`
	Storage Storage `yaml:"storage"`
	Server  Server  `yaml:"server"`
}

func Default() *Config {
	return &Config{
		Crawler: Crawler{
			Parallelism: 100,
			SiteWorkers: runtime.NumCPU(),
			UserAgent:   "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36",
			Referrer:    "http://www.google.com",
			Timeout:     30 * time.Second,
			DelayMin:    50 * time.Millisecond,
			DelayMax:    150 * time.Millisecond,
		},
		Parser: Parser{Mode: "body"},
		Search: Search{
			DefaultLimit:          20,
			FrequentLemmaMinPages: 1000,
		},
		Storage: Storage{
			Driver: "sqlite3",
			Path:   "deisearch.db",
		},
		Server: Server{Addr: ":8080"},
	}
}

// Load reads path over the defaults. A missing .env file is not an error.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Storage.Path = getEnv("DEISEARCH_DB_PATH", c.Storage.Path)
	c.Storage.Driver = getEnv("DEISEARCH_DB_DRIVER", c.Storage.Driver)
	c.Server.Addr = getEnv("DEISEARCH_ADDR", c.Server.Addr)
	if v := getEnv("DEISEARCH_PARALLELISM", ""); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Crawler.Parallelism = n
		}
	}
}

func (c *Config) Validate() error {
	if len(c.Sites) == 0 {
		return errors.New("config: no sites configured")
	}
	seen := make(map[string]bool, len(c.Sites))
	for i, s := range c.Sites {
		if strings.TrimSpace(s.Name) == "" {
			return fmt.Errorf("config: site %d has no name", i)
		}
		u, err := url.Parse(s.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("config: site %q has invalid url %q", s.Name, s.URL)
		}
		if u.Path != "" && u.Path != "/" {
			return fmt.Errorf("config: site %q url %q must not have a path, sites are crawled per host", s.Name, s.URL)
		}
		domain := parser.Domain(s.URL)
		if seen[domain] {
			return fmt.Errorf("config: duplicate site host %q", domain)
		}
		seen[domain] = true
	}
	if c.Crawler.Parallelism <= 0 {
		c.Crawler.Parallelism = 1
	}
	if c.Crawler.SiteWorkers <= 0 {
		c.Crawler.SiteWorkers = 1
	}
	if c.Crawler.DelayMax < c.Crawler.DelayMin {
		c.Crawler.DelayMax = c.Crawler.DelayMin
	}
	if c.Search.DefaultLimit <= 0 {
		c.Search.DefaultLimit = 20
	}
	switch c.Parser.Mode {
	case "", "body", "readability":
	default:
		return fmt.Errorf("config: unknown parser mode %q", c.Parser.Mode)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}
