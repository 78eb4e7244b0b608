// File: internal/config/config.go
package config

import (
	"fmt"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
	"github.com/xkilldash9x/jobagent-cli/api/schemas"
)

// Config holds the entire application configuration.
type Config struct {
	Logger      LoggerConfig      `mapstructure:"logger" yaml:"logger"`
	Database    DatabaseConfig    `mapstructure:"database" yaml:"database"`
	Browser     BrowserConfig     `mapstructure:"browser" yaml:"browser"`
	Platform    PlatformConfig    `mapstructure:"platform" yaml:"platform"`
	Credentials CredentialsConfig `mapstructure:"credentials" yaml:"credentials"`
	Session     SessionConfig     `mapstructure:"session" yaml:"session"`
	Auth        AuthConfig        `mapstructure:"auth" yaml:"auth"`
	Search      SearchConfig      `mapstructure:"search" yaml:"search"`
	Apply       ApplyConfig       `mapstructure:"apply" yaml:"apply"`
	Runner      RunnerConfig      `mapstructure:"runner" yaml:"runner"`
	LLM         LLMConfig         `mapstructure:"llm" yaml:"llm"`
	Profile     ProfileConfig     `mapstructure:"profile" yaml:"profile"`
	Dashboard   DashboardConfig   `mapstructure:"dashboard" yaml:"dashboard"`
}

// LoggerConfig defines the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color names for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// Database drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// DatabaseConfig selects and locates the persistence backend.
type DatabaseConfig struct {
	Driver     string `mapstructure:"driver" yaml:"driver"`
	URL        string `mapstructure:"url" yaml:"url"`
	SQLitePath string `mapstructure:"sqlite_path" yaml:"sqlite_path"`
}

// BrowserConfig holds settings for the automated browser. HumanTyping sends
// text one key at a time with a paced rhythm.
type BrowserConfig struct {
	Headless          bool          `mapstructure:"headless" yaml:"headless"`
	WindowWidth       int           `mapstructure:"window_width" yaml:"window_width"`
	WindowHeight      int           `mapstructure:"window_height" yaml:"window_height"`
	UserAgent         string        `mapstructure:"user_agent" yaml:"user_agent"`
	Timezone          string        `mapstructure:"timezone" yaml:"timezone"`
	Locale            string        `mapstructure:"locale" yaml:"locale"`
	ExecPath          string        `mapstructure:"exec_path" yaml:"exec_path"`
	Args              []string      `mapstructure:"args" yaml:"args"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
	ArtifactsDir      string        `mapstructure:"artifacts_dir" yaml:"artifacts_dir"`
	HumanTyping       bool          `mapstructure:"human_typing" yaml:"human_typing"`
}

// PlatformConfig locates the pages of the job platform.
type PlatformConfig struct {
	Name                string `mapstructure:"name" yaml:"name"`
	BaseURL             string `mapstructure:"base_url" yaml:"base_url"`
	LoginPath           string `mapstructure:"login_path" yaml:"login_path"`
	AuthenticatedMarker string `mapstructure:"authenticated_marker" yaml:"authenticated_marker"`
	AuthenticatedPath   string `mapstructure:"authenticated_path" yaml:"authenticated_path"`
	AppliedJobsPath     string `mapstructure:"applied_jobs_path" yaml:"applied_jobs_path"`
}

// LoginURL is BaseURL + LoginPath.
func (p PlatformConfig) LoginURL() string { return p.BaseURL + p.LoginPath }

// AuthenticatedURL is BaseURL + AuthenticatedPath.
func (p PlatformConfig) AuthenticatedURL() string { return p.BaseURL + p.AuthenticatedPath }

// AppliedJobsURL is BaseURL + AppliedJobsPath.
func (p PlatformConfig) AppliedJobsURL() string { return p.BaseURL + p.AppliedJobsPath }

// CredentialsConfig is populated from the environment in practice.
type CredentialsConfig struct {
	Identifier string `mapstructure:"identifier" yaml:"identifier"`
	Secret     string `mapstructure:"secret" yaml:"-"`
}

// SessionConfig controls session persistence and reuse.
type SessionConfig struct {
	Path  string `mapstructure:"path" yaml:"path"`
	Reuse bool   `mapstructure:"reuse" yaml:"reuse"`
}

// AuthConfig tunes the login flow.
type AuthConfig struct {
	SubmitSettle   time.Duration `mapstructure:"submit_settle" yaml:"submit_settle"`
	FieldTimeout   time.Duration `mapstructure:"field_timeout" yaml:"field_timeout"`
	SuccessTimeout time.Duration `mapstructure:"success_timeout" yaml:"success_timeout"`
	ReuseTimeout   time.Duration `mapstructure:"reuse_timeout" yaml:"reuse_timeout"`
}

// SearchConfig defines which facets are searched.
type SearchConfig struct {
	Keywords    []string              `mapstructure:"keywords" yaml:"keywords"`
	Locations   []string              `mapstructure:"locations" yaml:"locations"`
	Facets      []schemas.SearchFacet `mapstructure:"facets" yaml:"facets"`
	MaxFacets   int                   `mapstructure:"max_facets" yaml:"max_facets"`
	SettleDelay time.Duration         `mapstructure:"settle_delay" yaml:"settle_delay"`
	CacheJobs   bool                  `mapstructure:"cache_jobs" yaml:"cache_jobs"`
}

// ResolveFacets returns the explicit facet list when configured, otherwise
// every keyword against the first location. Either way the result is
// bounded by MaxFacets.
func (s SearchConfig) ResolveFacets() []schemas.SearchFacet {
	if len(s.Facets) > 0 {
		if s.MaxFacets > 0 && len(s.Facets) > s.MaxFacets {
			return append([]schemas.SearchFacet(nil), s.Facets[:s.MaxFacets]...)
		}
		return append([]schemas.SearchFacet(nil), s.Facets...)
	}
	locations := s.Locations
	if len(locations) > 1 {
		locations = locations[:1]
	}
	return schemas.Facets(s.Keywords, locations, s.MaxFacets)
}

// Open modes for job detail views.
const (
	OpenNewTab  = "new_tab"
	OpenSameTab = "same_tab"
)

// ApplyConfig tunes the apply-and-verify loop.
type ApplyConfig struct {
	MaxApplications int           `mapstructure:"max_applications" yaml:"max_applications"`
	OpenMode        string        `mapstructure:"open_mode" yaml:"open_mode"`
	ButtonTimeout   time.Duration `mapstructure:"button_timeout" yaml:"button_timeout"`
	DetailSettle    time.Duration `mapstructure:"detail_settle" yaml:"detail_settle"`
	ClickSettle     time.Duration `mapstructure:"click_settle" yaml:"click_settle"`
	VerifySettle    time.Duration `mapstructure:"verify_settle" yaml:"verify_settle"`
	MinInterval     time.Duration `mapstructure:"min_interval" yaml:"min_interval"`
}

// RunnerConfig holds run-level toggles.
type RunnerConfig struct {
	GenerateCoverLetters bool `mapstructure:"generate_cover_letters" yaml:"generate_cover_letters"`
	LogEvents            bool `mapstructure:"log_events" yaml:"log_events"`
}

// LLMConfig configures the text-generation collaborator.
type LLMConfig struct {
	Provider    string        `mapstructure:"provider" yaml:"provider"`
	Model       string        `mapstructure:"model" yaml:"model"`
	APIKey      string        `mapstructure:"api_key" yaml:"-"`
	Endpoint    string        `mapstructure:"endpoint" yaml:"endpoint"`
	Temperature float32       `mapstructure:"temperature" yaml:"temperature"`
	MaxTokens   int           `mapstructure:"max_tokens" yaml:"max_tokens"`
	Timeout     time.Duration `mapstructure:"timeout" yaml:"timeout"`
	MaxRetries  int           `mapstructure:"max_retries" yaml:"max_retries"`
}

// ProfileConfig is the applicant profile plus the path to a master resume.
type ProfileConfig struct {
	schemas.Profile  `mapstructure:",squash" yaml:",inline"`
	MasterResumePath string `mapstructure:"master_resume_path" yaml:"master_resume_path"`
}

// DashboardConfig configures the HTTP dashboard.
type DashboardConfig struct {
	Addr     string `mapstructure:"addr" yaml:"addr"`
	User     string `mapstructure:"user" yaml:"user"`
	Password string `mapstructure:"password" yaml:"-"`
}

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for various configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "jobagent")
	v.SetDefault("logger.log_file", "jobagent.log")
	v.SetDefault("logger.max_size", 50)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")
	v.SetDefault("logger.colors.dpanic", "magenta")
	v.SetDefault("logger.colors.panic", "magenta")
	v.SetDefault("logger.colors.fatal", "magenta")

	// -- Database --
	v.SetDefault("database.driver", DriverSQLite)
	v.SetDefault("database.sqlite_path", "~/.jobagent/applications.db")

	// -- Browser --
	v.SetDefault("browser.headless", false)
	v.SetDefault("browser.window_width", 1440)
	v.SetDefault("browser.window_height", 1080)
	v.SetDefault("browser.user_agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36")
	v.SetDefault("browser.timezone", "Asia/Dubai")
	v.SetDefault("browser.locale", "en-US")
	v.SetDefault("browser.navigation_timeout", "45s")
	v.SetDefault("browser.artifacts_dir", "~/.jobagent/artifacts")
	v.SetDefault("browser.human_typing", false)

	// -- Platform --
	v.SetDefault("platform.name", "NaukriGulf")
	v.SetDefault("platform.base_url", "https://www.naukrigulf.com")
	v.SetDefault("platform.login_path", "/jobseeker/login")
	v.SetDefault("platform.authenticated_marker", "/mnj/userProfile")
	v.SetDefault("platform.authenticated_path", "/mnj/userProfile")
	v.SetDefault("platform.applied_jobs_path", "/my-naukri/applied-jobs")

	// -- Session --
	v.SetDefault("session.path", "~/.jobagent/session.json")
	v.SetDefault("session.reuse", true)

	// -- Auth --
	v.SetDefault("auth.submit_settle", "3s")
	v.SetDefault("auth.field_timeout", "15s")
	v.SetDefault("auth.success_timeout", "25s")
	v.SetDefault("auth.reuse_timeout", "10s")

	// -- Search --
	v.SetDefault("search.keywords", []string{"Accounts Receivable", "Credit Controller", "Collections Specialist"})
	v.SetDefault("search.locations", []string{"Dubai"})
	v.SetDefault("search.max_facets", 3)
	v.SetDefault("search.settle_delay", "3s")
	v.SetDefault("search.cache_jobs", true)

	// -- Apply --
	v.SetDefault("apply.max_applications", 5)
	v.SetDefault("apply.open_mode", OpenNewTab)
	v.SetDefault("apply.button_timeout", "10s")
	v.SetDefault("apply.detail_settle", "2s")
	v.SetDefault("apply.click_settle", "2s")
	v.SetDefault("apply.verify_settle", "3s")
	v.SetDefault("apply.min_interval", "5s")

	// -- Runner --
	v.SetDefault("runner.generate_cover_letters", false)
	v.SetDefault("runner.log_events", true)

	// -- LLM --
	v.SetDefault("llm.provider", "gemini")
	v.SetDefault("llm.model", "gemini-2.5-flash")
	v.SetDefault("llm.temperature", 0.7)
	v.SetDefault("llm.max_tokens", 2048)
	v.SetDefault("llm.timeout", "60s")
	v.SetDefault("llm.max_retries", 3)

	// -- Dashboard --
	v.SetDefault("dashboard.addr", "127.0.0.1:5000")
	v.SetDefault("dashboard.user", "admin")
}

// BindEnv wires the secret-bearing keys to their conventional environment
// variable names in addition to the prefixed ones.
func BindEnv(v *viper.Viper) {
	_ = v.BindEnv("credentials.identifier", "JOBAGENT_CREDENTIALS_IDENTIFIER", "NAUKRI_GULF_EMAIL")
	_ = v.BindEnv("credentials.secret", "JOBAGENT_CREDENTIALS_SECRET", "NAUKRI_GULF_PASSWORD")
	_ = v.BindEnv("dashboard.user", "JOBAGENT_DASHBOARD_USER", "DASHBOARD_USER")
	_ = v.BindEnv("dashboard.password", "JOBAGENT_DASHBOARD_PASSWORD", "DASHBOARD_PASSWORD")
	_ = v.BindEnv("llm.api_key", "JOBAGENT_LLM_API_KEY", "GEMINI_API_KEY", "GOOGLE_API_KEY")
	_ = v.BindEnv("database.url", "JOBAGENT_DATABASE_URL", "DATABASE_URL")
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	BindEnv(v)

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := cfg.expandPaths(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// expandPaths resolves a leading ~ in every filesystem path.
func (c *Config) expandPaths() error {
	paths := []*string{
		&c.Database.SQLitePath,
		&c.Browser.ArtifactsDir,
		&c.Session.Path,
		&c.Logger.LogFile,
		&c.Profile.MasterResumePath,
	}
	for _, p := range paths {
		if *p == "" {
			continue
		}
		expanded, err := homedir.Expand(*p)
		if err != nil {
			return fmt.Errorf("failed to expand path %q: %w", *p, err)
		}
		*p = expanded
	}
	return nil
}

// Validate checks the configuration for required fields and sane values.
// Credentials are checked separately by the run, since other commands do not
// need them.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case DriverSQLite:
		if c.Database.SQLitePath == "" {
			return fmt.Errorf("database.sqlite_path is required for the sqlite driver")
		}
	case DriverPostgres:
		if c.Database.URL == "" {
			return fmt.Errorf("database.url is required for the postgres driver")
		}
	default:
		return fmt.Errorf("database.driver must be one of %q or %q, got %q", DriverSQLite, DriverPostgres, c.Database.Driver)
	}
	if c.Browser.WindowWidth <= 0 || c.Browser.WindowHeight <= 0 {
		return fmt.Errorf("browser.window_width and browser.window_height must be positive integers")
	}
	if c.Platform.BaseURL == "" {
		return fmt.Errorf("platform.base_url is required")
	}
	if c.Platform.AuthenticatedMarker == "" {
		return fmt.Errorf("platform.authenticated_marker is required")
	}
	if c.Search.MaxFacets <= 0 {
		return fmt.Errorf("search.max_facets must be a positive integer")
	}
	if c.Apply.MaxApplications <= 0 {
		return fmt.Errorf("apply.max_applications must be a positive integer")
	}
	if c.Apply.OpenMode != OpenNewTab && c.Apply.OpenMode != OpenSameTab {
		return fmt.Errorf("apply.open_mode must be %q or %q", OpenNewTab, OpenSameTab)
	}
	if c.Auth.SuccessTimeout <= 0 {
		return fmt.Errorf("auth.success_timeout must be a positive duration")
	}
	if c.Apply.MinInterval < 0 {
		return fmt.Errorf("apply.min_interval must not be negative")
	}
	return nil
}

// CredentialsValue returns the configured credentials as a domain value.
func (c *Config) CredentialsValue() schemas.Credentials {
	return schemas.Credentials{Identifier: c.Credentials.Identifier, Secret: c.Credentials.Secret}
}

// Snapshot is the non-secret view of the configuration served by the
// dashboard. Secrets are reduced to presence flags.
func (c *Config) Snapshot() map[string]any {
	return map[string]any{
		"platform": map[string]any{
			"name":     c.Platform.Name,
			"base_url": c.Platform.BaseURL,
		},
		"credentials": map[string]any{
			"email":        c.Credentials.Identifier,
			"password_set": c.Credentials.Secret != "",
		},
		"profile": map[string]any{
			"name":             c.Profile.Name,
			"current_role":     c.Profile.CurrentRole,
			"years_experience": c.Profile.YearsExperience,
			"skills":           c.Profile.Skills,
		},
		"search": map[string]any{
			"keywords":   c.Search.Keywords,
			"locations":  c.Search.Locations,
			"max_facets": c.Search.MaxFacets,
		},
		"apply": map[string]any{
			"max_applications": c.Apply.MaxApplications,
			"open_mode":        c.Apply.OpenMode,
		},
		"database": map[string]any{
			"driver": c.Database.Driver,
		},
		"llm": map[string]any{
			"provider":    c.LLM.Provider,
			"model":       c.LLM.Model,
			"api_key_set": c.LLM.APIKey != "",
		},
	}
}
