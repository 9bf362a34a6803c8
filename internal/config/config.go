package config

import (
	"fmt"
	"maps"
	"path/filepath"
	"time"

	"github.com/adrg/xdg"

	"github.com/nao1215/docmirror/internal/canon"
	"github.com/nao1215/docmirror/internal/fetch"
	"github.com/nao1215/docmirror/internal/scope"
)

// Default configuration values.
const (
	// AppName is the application name used for XDG directory paths.
	AppName = "docmirror"

	// DefaultOutputDir is where pages are written when --output is not given.
	DefaultOutputDir = "scraped_documentation"

	// DefaultDelay is the pause after each request. 1 second keeps the load
	// on documentation servers low.
	DefaultDelay = 1 * time.Second

	// DefaultMaxPages of 0 means the crawl runs until the queue is empty.
	DefaultMaxPages = 0

	// DefaultTimeout is the timeout of a single HTTP request.
	DefaultTimeout = fetch.DefaultTimeout

	// DefaultMaxBodySize limits the response body size to read.
	DefaultMaxBodySize = fetch.DefaultMaxBodySize

	// DefaultBatchSize is the number of seeds mirrored at the same time.
	DefaultBatchSize = 1

	// DefaultUserAgent identifies docmirror in HTTP requests.
	DefaultUserAgent = fetch.DefaultUserAgent

	// DefaultScopePolicy is the scope classifier used when --scope is not given.
	DefaultScopePolicy = scope.PolicyPrefix
)

// Config holds all configuration options for docmirror.
// It is populated from CLI flags and passed down explicitly.
type Config struct {
	// Seeds are the documentation entry URLs to mirror.
	Seeds []string

	// OutputDir is the directory the mirrored files are written to. With
	// several seeds every seed gets its own subdirectory.
	OutputDir string

	// Delay is the pause after each request.
	Delay time.Duration

	// MaxPages is the number of pages to save per seed. 0 means unlimited.
	MaxPages int

	// Timeout is the timeout of each HTTP request.
	Timeout time.Duration

	// MaxBodySize is the maximum response body size in bytes to read.
	// 0 selects DefaultMaxBodySize.
	MaxBodySize int64

	// UserAgent is the User-Agent header sent with HTTP requests.
	UserAgent string

	// Headers are extra HTTP headers sent with every request.
	Headers map[string]string

	// BatchSize is the number of seeds mirrored concurrently.
	BatchSize int

	// ScopePolicy selects the scope classifier (prefix or content).
	ScopePolicy string

	// StrictScope makes the content classifier reject pages without any
	// documentation signal.
	StrictScope bool

	// Keywords replace the content classifier's default keywords.
	Keywords []string

	// IgnorePatterns are URL path patterns that are never crawled.
	IgnorePatterns []string

	// FollowPatterns restrict crawling to matching URL paths.
	FollowPatterns []string

	// Proxy is an optional SOCKS5 proxy address in "host:port" format.
	Proxy string

	// RespectRobots enables robots.txt checks.
	RespectRobots bool

	// Verbose enables detailed log output using slog.LevelDebug.
	// When false, only warnings and errors are logged.
	Verbose bool

	// LogJSON switches the log output to JSON lines.
	LogJSON bool

	// ConfigFilePath is the path to the configuration file.
	// If empty, FindConfigFile searches the default locations.
	ConfigFilePath string

	// SiteConfigs holds site-specific configurations loaded from the config file.
	SiteConfigs *File

	// JSONReport enables JSON report output. Mutually exclusive with MarkdownReport.
	JSONReport bool

	// MarkdownReport enables Markdown report output. Mutually exclusive with JSONReport.
	MarkdownReport bool

	// ReportFile is the output file path for the report.
	// When set, the report is written to this file instead of stdout.
	ReportFile string

	// DBDir is the directory of the run history database.
	DBDir string

	// SaveToDB indicates whether runs are recorded in the database.
	SaveToDB bool

	// ExplicitFlags holds the names of the flags set on the command line.
	// Config file settings never replace them.
	ExplicitFlags map[string]bool
}

// Flags whose values the config file can also provide.
const (
	FlagUserAgent = "user-agent"
	FlagDelay     = "delay"
	FlagMaxPages  = "max-pages"
	FlagIgnore    = "ignore"
	FlagFollow    = "follow"
	FlagKeywords  = "keywords"
)

// NewConfig creates a new Config with default values.
func NewConfig() *Config {
	return &Config{
		OutputDir:   DefaultOutputDir,
		Delay:       DefaultDelay,
		MaxPages:    DefaultMaxPages,
		Timeout:     DefaultTimeout,
		MaxBodySize: DefaultMaxBodySize,
		UserAgent:   DefaultUserAgent,
		BatchSize:   DefaultBatchSize,
		ScopePolicy: DefaultScopePolicy,
		DBDir:       XDGDataDir(),
		SaveToDB:    true,
	}
}

// XDGDataDir returns the XDG data directory for docmirror.
// On Linux: ~/.local/share/docmirror
func XDGDataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// XDGConfigDir returns the XDG config directory for docmirror.
// On Linux: ~/.config/docmirror
func XDGConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// Validate checks if the configuration is valid and returns the first
// problem found.
func (c *Config) Validate() error {
	if len(c.Seeds) == 0 {
		return ErrNoSeed
	}
	for _, seed := range c.Seeds {
		if _, err := canon.New(seed); err != nil {
			return fmt.Errorf("%w %q: %w", ErrInvalidSeed, seed, err)
		}
	}

	if c.OutputDir == "" {
		return ErrNoOutputDir
	}

	if c.Delay < 0 {
		return ErrInvalidDelay
	}

	if c.MaxPages < 0 {
		return ErrInvalidMaxPages
	}

	if c.Timeout <= 0 {
		return ErrInvalidTimeout
	}

	if c.BatchSize <= 0 {
		return ErrInvalidBatchSize
	}

	if c.JSONReport && c.MarkdownReport {
		return ErrConflictingReportFormats
	}

	if !scope.ValidPolicy(c.ScopePolicy) {
		return ErrInvalidScopePolicy
	}

	if c.MaxBodySize < 0 {
		return ErrInvalidMaxBodySize
	}

	return nil
}

// ForHost returns a copy of c with the config file settings for host
// applied. File settings replace default flag values but not flags set on
// the command line. Header flags win over file headers with the same name.
func (c *Config) ForHost(host string) *Config {
	out := *c
	out.Headers = maps.Clone(c.Headers)
	if c.SiteConfigs == nil {
		return &out
	}

	site := c.SiteConfigs.GetSiteConfig(host)
	if site.UserAgent != "" && !c.ExplicitFlags[FlagUserAgent] {
		out.UserAgent = site.UserAgent
	}
	if site.Delay != nil && !c.ExplicitFlags[FlagDelay] {
		out.Delay = *site.Delay
	}
	if site.MaxPages != 0 && !c.ExplicitFlags[FlagMaxPages] {
		out.MaxPages = site.MaxPages
	}
	if len(site.Headers) > 0 || site.Cookie != "" {
		headers := make(map[string]string, len(site.Headers)+len(c.Headers)+1)
		maps.Copy(headers, site.Headers)
		if site.Cookie != "" {
			headers["Cookie"] = site.Cookie
		}
		maps.Copy(headers, c.Headers)
		out.Headers = headers
	}
	if len(site.IgnorePatterns) > 0 && !c.ExplicitFlags[FlagIgnore] {
		out.IgnorePatterns = site.IgnorePatterns
	}
	if len(site.FollowPatterns) > 0 && !c.ExplicitFlags[FlagFollow] {
		out.FollowPatterns = site.FollowPatterns
	}
	if len(site.Keywords) > 0 && !c.ExplicitFlags[FlagKeywords] {
		out.Keywords = site.Keywords
	}
	return &out
}
