package config

import (
	"fmt"
	"net/netip"
	"net/url"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// DefaultExcludedPaths are request path prefixes never counted as visits
var DefaultExcludedPaths = []string{
	"/admin",
	"/static",
	"/media",
	"/favicon.ico",
	"/robots.txt",
	"/sitemap.xml",
	"/health",
	"/metrics",
	"/__debug__",
	"/api/",
}

// DefaultBotPatterns are case-insensitive User-Agent signatures of crawlers,
// monitors and automation tools
var DefaultBotPatterns = []string{
	`bot`,
	`crawl`,
	`spider`,
	`slurp`,
	`curl`,
	`wget`,
	`python-requests`,
	`python-urllib`,
	`go-http-client`,
	`httpclient`,
	`headless`,
	`phantomjs`,
	`selenium`,
	`puppeteer`,
	`lighthouse`,
	`pingdom`,
	`uptimerobot`,
	`monitor`,
	`scrapy`,
	`facebookexternalhit`,
	`postman`,
}

// DefaultExcludedCIDRs are loopback, private and link-local networks
var DefaultExcludedCIDRs = []string{
	"127.0.0.0/8",
	"10.0.0.0/8",
	"172.16.0.0/12",
	"192.168.0.0/16",
	"169.254.0.0/16",
	"::1/128",
	"fc00::/7",
	"fe80::/10",
}

// Config holds all configuration values for the application
type Config struct {
	Port            string
	AllowedOrigins  []string
	LogLevel        string
	Environment     string
	DatabaseURL     string
	DatabaseReadURL string // Read replica URL for SELECT queries
	RedisURL        string

	// TimeZone decides which calendar date "today" is
	TimeZone string
	Location *time.Location

	VisitorTTL    time.Duration
	ExcludedPaths []string
	BotPatterns   []string
	ExcludedCIDRs []string

	SyncEnabled     bool
	SyncHour        int
	SyncMinute      int
	SyncConcurrency int
	SyncTimeout     time.Duration

	// AdminJWTSecret signs tokens for the on-demand sync endpoint; empty disables it
	AdminJWTSecret string

	// SiteUpstreamURL is the site origin this service fronts. When set, every
	// unrouted request is proxied there and counted on the way; when empty,
	// only the visit beacon counts page views.
	SiteUpstreamURL string
	SiteUpstream    *url.URL
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg := &Config{
		Port:            getEnv("PORT", "8080"),
		AllowedOrigins:  parseList(getEnv("ALLOWED_ORIGINS", "http://localhost:8000")),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		Environment:     getEnv("ENVIRONMENT", "production"),
		DatabaseURL:     getEnv("DATABASE_URL", ""),
		DatabaseReadURL: getEnv("DATABASE_READ_URL", getEnv("DATABASE_URL", "")), // Falls back to write DB if not set
		RedisURL:        getEnv("REDIS_URL", "redis://localhost:6379/0"),
		TimeZone:        getEnv("TIME_ZONE", "Asia/Seoul"),
		VisitorTTL:      time.Duration(getIntEnv("VISITOR_TTL_DAYS", 30)) * 24 * time.Hour,
		ExcludedPaths:   getListEnv("VISITOR_EXCLUDED_PATHS", DefaultExcludedPaths),
		BotPatterns:     getListEnv("VISITOR_BOT_PATTERNS", DefaultBotPatterns),
		ExcludedCIDRs:   getListEnv("VISITOR_EXCLUDED_CIDRS", DefaultExcludedCIDRs),
		SyncEnabled:     getBoolEnv("SYNC_ENABLED", true),
		SyncHour:        getIntEnv("SYNC_HOUR", 0),
		SyncMinute:      getIntEnv("SYNC_MINUTE", 1),
		SyncConcurrency: getIntEnv("SYNC_CONCURRENCY", 4),
		SyncTimeout:     getDurationEnv("SYNC_TIMEOUT", time.Hour),
		AdminJWTSecret:  getEnv("ADMIN_JWT_SECRET", ""),
		SiteUpstreamURL: getEnv("SITE_UPSTREAM_URL", ""),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks value ranges and resolves the time zone
func (c *Config) Validate() error {
	loc, err := time.LoadLocation(c.TimeZone)
	if err != nil {
		return fmt.Errorf("invalid TIME_ZONE %q: %w", c.TimeZone, err)
	}
	c.Location = loc

	if c.VisitorTTL < 24*time.Hour {
		return fmt.Errorf("VISITOR_TTL_DAYS must be at least 1")
	}
	if c.SyncHour < 0 || c.SyncHour > 23 {
		return fmt.Errorf("SYNC_HOUR must be between 0 and 23, got %d", c.SyncHour)
	}
	if c.SyncMinute < 0 || c.SyncMinute > 59 {
		return fmt.Errorf("SYNC_MINUTE must be between 0 and 59, got %d", c.SyncMinute)
	}
	if c.SyncConcurrency < 1 {
		return fmt.Errorf("SYNC_CONCURRENCY must be at least 1, got %d", c.SyncConcurrency)
	}
	if c.SyncTimeout <= 0 {
		return fmt.Errorf("SYNC_TIMEOUT must be positive")
	}

	c.SiteUpstream = nil
	if c.SiteUpstreamURL != "" {
		u, err := url.Parse(c.SiteUpstreamURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("SITE_UPSTREAM_URL must be an absolute http(s) URL, got %q", c.SiteUpstreamURL)
		}
		c.SiteUpstream = u
	}

	for _, cidr := range c.ExcludedCIDRs {
		if _, err := netip.ParsePrefix(cidr); err != nil {
			return fmt.Errorf("invalid VISITOR_EXCLUDED_CIDRS entry %q: %w", cidr, err)
		}
	}
	for _, pattern := range c.BotPatterns {
		if _, err := regexp.Compile("(?i)" + pattern); err != nil {
			return fmt.Errorf("invalid VISITOR_BOT_PATTERNS entry %q: %w", pattern, err)
		}
	}

	return nil
}

// getEnv gets an environment variable with a fallback value
func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

// getListEnv gets a comma-separated environment variable with a fallback list
func getListEnv(key string, fallback []string) []string {
	if value := os.Getenv(key); value != "" {
		return parseList(value)
	}
	return append([]string(nil), fallback...)
}

// parseList parses a comma-separated value into a slice
func parseList(value string) []string {
	if value == "" {
		return []string{}
	}

	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))

	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}

// getBoolEnv gets a boolean environment variable with a fallback value
func getBoolEnv(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return fallback
}

// getIntEnv gets an integer environment variable with a fallback value
func getIntEnv(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

// getDurationEnv gets a duration environment variable (e.g. "30m") with a fallback value
func getDurationEnv(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return fallback
}
