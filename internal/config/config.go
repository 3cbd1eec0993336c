// Package config loads and validates Sumi-Ripple's TOML-shaped run
// configuration via Viper.
package config

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/sumiripple/sumiripple/pkg/hashutil"
)

// QualityDomain names a fully-explored domain and the seed URLs the
// coordinator queues at depth 0 for it.
type QualityDomain struct {
	Domain string
	Seeds  []string
}

type crawlerDTO struct {
	MaxDepth               int `mapstructure:"max_depth"`
	MaxConcurrentPagesOpen int `mapstructure:"max_concurrent_pages_open"`
	MinTimeOnPageMs        int `mapstructure:"min_time_on_page_ms"`
	MaxDomainRequests      int `mapstructure:"max_domain_requests"`
}

type userAgentDTO struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	ContactURL  string `mapstructure:"contact_url"`
	ContactMail string `mapstructure:"contact_email"`
}

type outputDTO struct {
	DatabasePath string `mapstructure:"database_path"`
	SummaryPath  string `mapstructure:"summary_path"`
}

type qualityDTO struct {
	Domain string   `mapstructure:"domain"`
	Seeds  []string `mapstructure:"seeds"`
}

type blacklistDTO struct {
	Domain string `mapstructure:"domain"`
}

type stubDTO struct {
	Domain string `mapstructure:"domain"`
}

// configDTO is the raw shape Viper unmarshals the TOML file into, mirroring
// the on-disk section layout one-to-one.
type configDTO struct {
	Crawler   crawlerDTO     `mapstructure:"crawler"`
	UserAgent userAgentDTO   `mapstructure:"user_agent"`
	Output    outputDTO      `mapstructure:"output"`
	Quality   []qualityDTO   `mapstructure:"quality"`
	Blacklist []blacklistDTO `mapstructure:"blacklist"`
	Stub      []stubDTO      `mapstructure:"stub"`
}

// Config is the validated, immutable view of a run's configuration. It
// follows the builder shape used throughout this module: private fields,
// chainable With* setters, a Build() validator, and public value-copying
// getters.
type Config struct {
	//===============
	// Crawl scope
	//===============
	qualityDomains []QualityDomain
	blacklist      []string
	stub           []string

	//===============
	// Limits / politeness
	//===============
	maxDepth               int
	maxConcurrentPagesOpen int
	minTimeOnPage          time.Duration
	maxDomainRequests      int

	//===============
	// Fetch / identity
	//===============
	userAgentName    string
	userAgentVersion string
	contactURL       string
	contactEmail     string

	//===============
	// Output
	//===============
	databasePath string
	summaryPath  string
}

// WithDefault returns a Config seeded with the given quality domains and
// sensible defaults for every other field. At least one quality domain with
// at least one seed is required at Build() time.
func WithDefault(qualityDomains []QualityDomain) *Config {
	return &Config{
		qualityDomains:         qualityDomains,
		blacklist:              nil,
		stub:                   nil,
		maxDepth:               3,
		maxConcurrentPagesOpen: 10,
		minTimeOnPage:          1 * time.Second,
		maxDomainRequests:      1000,
		userAgentName:          "sumiripple",
		userAgentVersion:       "1.0",
		contactURL:             "https://example.com/bot",
		contactEmail:           "bot@example.com",
		databasePath:           "sumiripple.db",
		summaryPath:            "summary.md",
	}
}

func (c *Config) WithQualityDomains(domains []QualityDomain) *Config {
	c.qualityDomains = domains
	return c
}

func (c *Config) WithBlacklist(domains []string) *Config {
	c.blacklist = domains
	return c
}

func (c *Config) WithStub(domains []string) *Config {
	c.stub = domains
	return c
}

func (c *Config) WithMaxDepth(depth int) *Config {
	c.maxDepth = depth
	return c
}

func (c *Config) WithMaxConcurrentPagesOpen(n int) *Config {
	c.maxConcurrentPagesOpen = n
	return c
}

func (c *Config) WithMinTimeOnPage(d time.Duration) *Config {
	c.minTimeOnPage = d
	return c
}

func (c *Config) WithMaxDomainRequests(n int) *Config {
	c.maxDomainRequests = n
	return c
}

func (c *Config) WithUserAgentName(name string) *Config {
	c.userAgentName = name
	return c
}

func (c *Config) WithUserAgentVersion(version string) *Config {
	c.userAgentVersion = version
	return c
}

func (c *Config) WithContactURL(url string) *Config {
	c.contactURL = url
	return c
}

func (c *Config) WithContactEmail(email string) *Config {
	c.contactEmail = email
	return c
}

func (c *Config) WithDatabasePath(path string) *Config {
	c.databasePath = path
	return c
}

func (c *Config) WithSummaryPath(path string) *Config {
	c.summaryPath = path
	return c
}

// Build validates the accumulated settings and returns an immutable copy.
func (c *Config) Build() (Config, error) {
	if len(c.qualityDomains) == 0 {
		return Config{}, fmt.Errorf("%w: at least one quality domain is required", ErrInvalidConfig)
	}
	for _, q := range c.qualityDomains {
		if q.Domain == "" {
			return Config{}, fmt.Errorf("%w: quality domain entry missing domain", ErrInvalidConfig)
		}
		if len(q.Seeds) == 0 {
			return Config{}, fmt.Errorf("%w: quality domain %q has no seeds", ErrInvalidConfig, q.Domain)
		}
	}
	if c.maxDepth < 0 {
		return Config{}, fmt.Errorf("%w: max_depth must be >= 0", ErrInvalidConfig)
	}
	if c.maxConcurrentPagesOpen < 1 || c.maxConcurrentPagesOpen > 100 {
		return Config{}, fmt.Errorf("%w: max_concurrent_pages_open must be in 1..=100", ErrInvalidConfig)
	}
	if c.minTimeOnPage < 100*time.Millisecond {
		return Config{}, fmt.Errorf("%w: min_time_on_page_ms must be >= 100", ErrInvalidConfig)
	}
	if c.maxDomainRequests < 1 {
		return Config{}, fmt.Errorf("%w: max_domain_requests must be >= 1", ErrInvalidConfig)
	}
	if c.userAgentName == "" {
		return Config{}, fmt.Errorf("%w: user_agent.name must be non-empty", ErrInvalidConfig)
	}

	return *c, nil
}

// Load reads a TOML configuration file from path via Viper and returns a
// validated Config.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return Config{}, fmt.Errorf("%w: %s", ErrFileDoesNotExist, err.Error())
		}
		return Config{}, fmt.Errorf("%w: %s", ErrConfigParsingFail, err.Error())
	}

	var dto configDTO
	if err := v.Unmarshal(&dto); err != nil {
		return Config{}, fmt.Errorf("%w: %s", ErrConfigParsingFail, err.Error())
	}

	return fromDTO(dto)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("crawler.max_depth", 3)
	v.SetDefault("crawler.max_concurrent_pages_open", 10)
	v.SetDefault("crawler.min_time_on_page_ms", 1000)
	v.SetDefault("crawler.max_domain_requests", 1000)
	v.SetDefault("user_agent.name", "sumiripple")
	v.SetDefault("user_agent.version", "1.0")
	v.SetDefault("output.database_path", "sumiripple.db")
	v.SetDefault("output.summary_path", "summary.md")
}

func fromDTO(dto configDTO) (Config, error) {
	qualityDomains := make([]QualityDomain, 0, len(dto.Quality))
	for _, q := range dto.Quality {
		qualityDomains = append(qualityDomains, QualityDomain{Domain: q.Domain, Seeds: q.Seeds})
	}

	blacklist := make([]string, 0, len(dto.Blacklist))
	for _, b := range dto.Blacklist {
		blacklist = append(blacklist, b.Domain)
	}

	stub := make([]string, 0, len(dto.Stub))
	for _, s := range dto.Stub {
		stub = append(stub, s.Domain)
	}

	cfg := WithDefault(qualityDomains).
		WithBlacklist(blacklist).
		WithStub(stub).
		WithMaxDepth(dto.Crawler.MaxDepth).
		WithMaxConcurrentPagesOpen(dto.Crawler.MaxConcurrentPagesOpen).
		WithMinTimeOnPage(time.Duration(dto.Crawler.MinTimeOnPageMs) * time.Millisecond).
		WithMaxDomainRequests(dto.Crawler.MaxDomainRequests).
		WithUserAgentName(dto.UserAgent.Name).
		WithUserAgentVersion(dto.UserAgent.Version).
		WithContactURL(dto.UserAgent.ContactURL).
		WithContactEmail(dto.UserAgent.ContactMail).
		WithDatabasePath(dto.Output.DatabasePath).
		WithSummaryPath(dto.Output.SummaryPath)

	return cfg.Build()
}

// Hash returns a stable digest over the canonical form of the config,
// suitable for Run.config_hash.
func (c Config) Hash() (string, error) {
	var b strings.Builder

	domains := append([]QualityDomain(nil), c.qualityDomains...)
	sort.Slice(domains, func(i, j int) bool { return domains[i].Domain < domains[j].Domain })
	for _, q := range domains {
		seeds := append([]string(nil), q.Seeds...)
		sort.Strings(seeds)
		fmt.Fprintf(&b, "quality:%s=%s;", q.Domain, strings.Join(seeds, ","))
	}

	blacklist := append([]string(nil), c.blacklist...)
	sort.Strings(blacklist)
	fmt.Fprintf(&b, "blacklist:%s;", strings.Join(blacklist, ","))

	stub := append([]string(nil), c.stub...)
	sort.Strings(stub)
	fmt.Fprintf(&b, "stub:%s;", strings.Join(stub, ","))

	fmt.Fprintf(&b, "max_depth:%d;max_concurrent:%d;min_time_on_page:%d;max_domain_requests:%d;",
		c.maxDepth, c.maxConcurrentPagesOpen, c.minTimeOnPage.Milliseconds(), c.maxDomainRequests)
	fmt.Fprintf(&b, "ua:%s/%s (+%s; %s);", c.userAgentName, c.userAgentVersion, c.contactURL, c.contactEmail)

	return hashutil.HashBytes([]byte(b.String()), hashutil.HashAlgoBLAKE3)
}

// UserAgent renders the User-Agent header value sent with every request.
func (c Config) UserAgent() string {
	return fmt.Sprintf("%s/%s (+%s; %s)", c.userAgentName, c.userAgentVersion, c.contactURL, c.contactEmail)
}

func (c Config) QualityDomains() []QualityDomain {
	out := make([]QualityDomain, len(c.qualityDomains))
	copy(out, c.qualityDomains)
	return out
}

func (c Config) Blacklist() []string {
	out := make([]string, len(c.blacklist))
	copy(out, c.blacklist)
	return out
}

func (c Config) Stub() []string {
	out := make([]string, len(c.stub))
	copy(out, c.stub)
	return out
}

func (c Config) MaxDepth() int                { return c.maxDepth }
func (c Config) MaxConcurrentPagesOpen() int  { return c.maxConcurrentPagesOpen }
func (c Config) MinTimeOnPage() time.Duration { return c.minTimeOnPage }
func (c Config) MaxDomainRequests() int       { return c.maxDomainRequests }
func (c Config) UserAgentName() string        { return c.userAgentName }
func (c Config) UserAgentVersion() string     { return c.userAgentVersion }
func (c Config) ContactURL() string           { return c.contactURL }
func (c Config) ContactEmail() string         { return c.contactEmail }
func (c Config) DatabasePath() string         { return c.databasePath }
func (c Config) SummaryPath() string          { return c.summaryPath }
