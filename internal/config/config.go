package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultTimezone       = "UTC"
	defaultDailyBriefTime = "09:00:00"

	configPathEnv         = "M365_MONITOR_CONFIG"
	tenantIDEnv           = "AZURE_TENANT_ID"
	clientIDEnv           = "MC_APP_ID"
	clientSecretEnv       = "MC_CLIENT_SECRET"
	openAIEndpointEnv     = "AZURE_OPENAI_ENDPOINT"
	openAIAPIKeyEnv       = "AZURE_OPENAI_API_KEY"
	openAIDeploymentEnv   = "AZURE_OPENAI_DEPLOYMENT"
	openAIAPIVersionEnv   = "AZURE_OPENAI_API_VERSION"
	teamsWebhookEnv       = "TEAMS_WEBHOOK_URL"
	alertImageEnv         = "CRITICAL_ALERT_IMAGE_URL"
	dailyBriefTimeEnv     = "DAILY_BRIEF_TIME"
	dailyLookbackHoursEnv = "DAILY_BRIEF_LOOKBACK_HOURS"
	timezoneEnv           = "TIMEZONE"
	dryRunEnv             = "DRY_RUN"
)

// Config holds high-level settings required across the application.
type Config struct {
	Graph   GraphConfig   `yaml:"graph"`
	OpenAI  OpenAIConfig  `yaml:"openai"`
	Teams   TeamsConfig   `yaml:"teams"`
	Monitor MonitorConfig `yaml:"monitor"`
	Daily   DailyConfig   `yaml:"daily"`
	State   StateConfig   `yaml:"state"`
	Logging LoggingConfig `yaml:"logging"`
}

// GraphConfig describes the Microsoft Graph tenant credentials.
type GraphConfig struct {
	TenantID     string `yaml:"tenantId"`
	ClientID     string `yaml:"clientId"`
	ClientSecret string `yaml:"clientSecret"`
	Endpoint     string `yaml:"endpoint"`
}

// OpenAIConfig defines how to contact the Azure OpenAI deployment used for
// enrichment.
type OpenAIConfig struct {
	Endpoint   string `yaml:"endpoint"`
	APIKey     string `yaml:"apiKey"`
	Deployment string `yaml:"deployment"`
	APIVersion string `yaml:"apiVersion"`
}

// TeamsConfig wires the outbound webhook sink and card presentation extras.
type TeamsConfig struct {
	WebhookURL             string `yaml:"webhookUrl"`
	AlertImageURL          string `yaml:"alertImageUrl"`
	ServiceHealthPortalURL string `yaml:"serviceHealthPortalUrl"`
	DryRun                 bool   `yaml:"dryRun"`
}

// MonitorConfig tunes the live polling loop.
type MonitorConfig struct {
	PollInterval string `yaml:"pollInterval"`
	MaxRetries   int    `yaml:"maxRetries"`
	RetryDelay   string `yaml:"retryDelay"`

	pollInterval time.Duration `yaml:"-"`
	retryDelay   time.Duration `yaml:"-"`
}

// PollIntervalDuration returns the parsed poll interval.
func (m MonitorConfig) PollIntervalDuration() time.Duration { return m.pollInterval }

// RetryDelayDuration returns the parsed backoff between failed poll cycles.
func (m MonitorConfig) RetryDelayDuration() time.Duration { return m.retryDelay }

// DailyConfig defines when and how the daily digest fires.
type DailyConfig struct {
	BriefTime     string `yaml:"briefTime"`
	Timezone      string `yaml:"timezone"`
	LookbackHours int    `yaml:"lookbackHours"`
	// Redeliver controls whether the daily digest may re-send items already
	// delivered live. The digest is a recap, so this defaults to true.
	Redeliver *bool `yaml:"redeliver"`

	hour, minute, second int
	location             *time.Location
}

// Location resolves the digest timezone, falling back to UTC.
func (d DailyConfig) Location() *time.Location {
	if d.location != nil {
		return d.location
	}
	return time.UTC
}

// BriefClock returns the resolved hour/minute/second of the digest schedule.
func (d DailyConfig) BriefClock() (hour, minute, second int) {
	return d.hour, d.minute, d.second
}

// RedeliverInDaily reports whether the daily digest ignores the dedup set.
func (d DailyConfig) RedeliverInDaily() bool {
	if d.Redeliver == nil {
		return true
	}
	return *d.Redeliver
}

// StateConfig locates the persisted cursor and dedup documents.
type StateConfig struct {
	Dir           string `yaml:"dir"`
	NotifyOnEmpty *bool  `yaml:"notifyOnEmpty"`
}

// NotifyOnEmptyEnabled reports whether a batch run with no news still posts a
// placeholder card. Enabled unless explicitly disabled.
func (s StateConfig) NotifyOnEmptyEnabled() bool {
	if s.NotifyOnEmpty == nil {
		return true
	}
	return *s.NotifyOnEmpty
}

// LoggingConfig controls the slog handler.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads YAML configuration (if present) and applies environment overrides.
func Load() Config {
	cfg := defaultConfig()

	if path := os.Getenv(configPathEnv); path != "" {
		if raw, err := os.ReadFile(path); err != nil {
			log.Printf("config: cannot read %s: %v (falling back to defaults)", path, err)
		} else {
			var fileCfg Config
			if err := yaml.Unmarshal(raw, &fileCfg); err != nil {
				log.Printf("config: cannot parse %s: %v (falling back to defaults)", path, err)
			} else {
				cfg = mergeConfig(cfg, fileCfg)
			}
		}
	}

	cfg.applyEnvOverrides()
	cfg.bind()

	return cfg
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(tenantIDEnv); v != "" {
		c.Graph.TenantID = v
	}
	if v := os.Getenv(clientIDEnv); v != "" {
		c.Graph.ClientID = v
	}
	if v := os.Getenv(clientSecretEnv); v != "" {
		c.Graph.ClientSecret = v
	}

	if v := os.Getenv(openAIEndpointEnv); v != "" {
		c.OpenAI.Endpoint = v
	}
	if v := os.Getenv(openAIAPIKeyEnv); v != "" {
		c.OpenAI.APIKey = v
	}
	if v := os.Getenv(openAIDeploymentEnv); v != "" {
		c.OpenAI.Deployment = v
	}
	if v := os.Getenv(openAIAPIVersionEnv); v != "" {
		c.OpenAI.APIVersion = v
	}

	if v := os.Getenv(teamsWebhookEnv); v != "" {
		c.Teams.WebhookURL = v
	}
	if v := os.Getenv(alertImageEnv); v != "" {
		c.Teams.AlertImageURL = v
	}
	if v := os.Getenv(dryRunEnv); v != "" {
		c.Teams.DryRun = parseBool(v)
	}

	if v := os.Getenv(dailyBriefTimeEnv); v != "" {
		c.Daily.BriefTime = v
	}
	if v := os.Getenv(timezoneEnv); v != "" {
		c.Daily.Timezone = v
	}
	if v := os.Getenv(dailyLookbackHoursEnv); v != "" {
		if hours, err := strconv.Atoi(v); err == nil && hours > 0 {
			c.Daily.LookbackHours = hours
		}
	}
}

// bind resolves the string-typed fields into their runtime representations.
// Every failure falls back with a warning; configuration never crashes.
func (c *Config) bind() {
	c.Monitor.pollInterval = parseDurationOrDefault("monitor.pollInterval", c.Monitor.PollInterval, 6*time.Hour)
	c.Monitor.retryDelay = parseDurationOrDefault("monitor.retryDelay", c.Monitor.RetryDelay, 10*time.Second)
	if c.Monitor.MaxRetries <= 0 {
		c.Monitor.MaxRetries = 3
	}
	if c.Daily.LookbackHours <= 0 {
		c.Daily.LookbackHours = 24
	}

	c.Daily.hour, c.Daily.minute, c.Daily.second = parseClock(c.Daily.BriefTime)

	tz := c.Daily.Timezone
	if tz == "" {
		tz = defaultTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		log.Printf("config: unknown timezone %s, reverting to %s", tz, defaultTimezone)
		loc = time.UTC
	}
	c.Daily.location = loc
}

// parseClock parses HH:MM[:SS], falling back to 09:00:00 on any malformed
// input or out-of-range component.
func parseClock(value string) (hour, minute, second int) {
	parts := strings.Split(strings.TrimSpace(value), ":")
	if len(parts) < 2 || len(parts) > 3 {
		return fallbackClock(value)
	}

	numbers := make([]int, 0, 3)
	for _, part := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return fallbackClock(value)
		}
		numbers = append(numbers, n)
	}

	hour, minute = numbers[0], numbers[1]
	if len(numbers) == 3 {
		second = numbers[2]
	}
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 || second < 0 || second > 59 {
		return fallbackClock(value)
	}
	return hour, minute, second
}

func fallbackClock(value string) (int, int, int) {
	log.Printf("config: invalid daily brief time %q, defaulting to %s", value, defaultDailyBriefTime)
	return 9, 0, 0
}

func parseDurationOrDefault(field, raw string, def time.Duration) time.Duration {
	if strings.TrimSpace(raw) == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		log.Printf("config: invalid %s %q, defaulting to %s", field, raw, def)
		return def
	}
	return d
}

func parseBool(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "0", "false", "no", "off", "":
		return false
	default:
		return true
	}
}

func mergeConfig(base, override Config) Config {
	if override.Graph.TenantID != "" {
		base.Graph.TenantID = override.Graph.TenantID
	}
	if override.Graph.ClientID != "" {
		base.Graph.ClientID = override.Graph.ClientID
	}
	if override.Graph.ClientSecret != "" {
		base.Graph.ClientSecret = override.Graph.ClientSecret
	}
	if override.Graph.Endpoint != "" {
		base.Graph.Endpoint = override.Graph.Endpoint
	}

	if override.OpenAI.Endpoint != "" {
		base.OpenAI.Endpoint = override.OpenAI.Endpoint
	}
	if override.OpenAI.APIKey != "" {
		base.OpenAI.APIKey = override.OpenAI.APIKey
	}
	if override.OpenAI.Deployment != "" {
		base.OpenAI.Deployment = override.OpenAI.Deployment
	}
	if override.OpenAI.APIVersion != "" {
		base.OpenAI.APIVersion = override.OpenAI.APIVersion
	}

	if override.Teams.WebhookURL != "" {
		base.Teams.WebhookURL = override.Teams.WebhookURL
	}
	if override.Teams.AlertImageURL != "" {
		base.Teams.AlertImageURL = override.Teams.AlertImageURL
	}
	if override.Teams.ServiceHealthPortalURL != "" {
		base.Teams.ServiceHealthPortalURL = override.Teams.ServiceHealthPortalURL
	}
	if override.Teams.DryRun {
		base.Teams.DryRun = true
	}

	if override.Monitor.PollInterval != "" {
		base.Monitor.PollInterval = override.Monitor.PollInterval
	}
	if override.Monitor.MaxRetries > 0 {
		base.Monitor.MaxRetries = override.Monitor.MaxRetries
	}
	if override.Monitor.RetryDelay != "" {
		base.Monitor.RetryDelay = override.Monitor.RetryDelay
	}

	if override.Daily.BriefTime != "" {
		base.Daily.BriefTime = override.Daily.BriefTime
	}
	if override.Daily.Timezone != "" {
		base.Daily.Timezone = override.Daily.Timezone
	}
	if override.Daily.LookbackHours > 0 {
		base.Daily.LookbackHours = override.Daily.LookbackHours
	}
	if override.Daily.Redeliver != nil {
		base.Daily.Redeliver = override.Daily.Redeliver
	}

	if override.State.Dir != "" {
		base.State.Dir = override.State.Dir
	}
	if override.State.NotifyOnEmpty != nil {
		base.State.NotifyOnEmpty = override.State.NotifyOnEmpty
	}

	if override.Logging.Level != "" {
		base.Logging.Level = override.Logging.Level
	}
	if override.Logging.Format != "" {
		base.Logging.Format = override.Logging.Format
	}

	return base
}

func defaultConfig() Config {
	return Config{
		Graph: GraphConfig{
			Endpoint: "https://graph.microsoft.com/v1.0",
		},
		OpenAI: OpenAIConfig{
			Deployment: "gpt-4o",
			APIVersion: "2024-10-01-preview",
		},
		Teams: TeamsConfig{
			ServiceHealthPortalURL: "https://admin.microsoft.com/Adminportal/Home#/servicehealth",
		},
		Monitor: MonitorConfig{
			PollInterval: "6h",
			MaxRetries:   3,
			RetryDelay:   "10s",
		},
		Daily: DailyConfig{
			BriefTime:     defaultDailyBriefTime,
			Timezone:      defaultTimezone,
			LookbackHours: 24,
		},
		State: StateConfig{
			Dir: "data",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}
