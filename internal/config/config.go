package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/h1v3-io/jirabot/pkg/protocol"
)

// Date resolver modes.
const (
	ResolverParser = "parser"
	ResolverLLM    = "llm"
	ResolverAuto   = "auto"
)

// Config is the top-level jirabot configuration.
type Config struct {
	Slack    SlackConfig    `json:"slack" yaml:"slack"`
	Jira     JiraConfig     `json:"jira" yaml:"jira"`
	Dates    DatesConfig    `json:"dates" yaml:"dates"`
	API      APIConfig      `json:"api" yaml:"api"`
	Sessions SessionsConfig `json:"sessions" yaml:"sessions"`
	DataDir  string         `json:"data_dir" yaml:"data_dir"`
	LogLevel string         `json:"log_level,omitempty" yaml:"log_level,omitempty"`
}

// SlackConfig holds the bot credentials. AppToken enables Socket Mode.
type SlackConfig struct {
	BotToken      string `json:"bot_token" yaml:"bot_token"`
	AppToken      string `json:"app_token,omitempty" yaml:"app_token,omitempty"`
	SigningSecret string `json:"signing_secret,omitempty" yaml:"signing_secret,omitempty"`
}

// JiraConfig holds the issue tracker connection and issue defaults.
type JiraConfig struct {
	BaseURL    string `json:"base_url" yaml:"base_url"`
	Email      string `json:"email" yaml:"email"`
	APIToken   string `json:"api_token" yaml:"api_token"`
	ProjectKey string `json:"project_key,omitempty" yaml:"project_key,omitempty"`
	IssueType  string `json:"issue_type,omitempty" yaml:"issue_type,omitempty"`
}

// DatesConfig selects how free-text due dates are resolved.
type DatesConfig struct {
	Resolver       string `json:"resolver,omitempty" yaml:"resolver,omitempty"` // parser, llm or auto
	TimeoutSeconds int    `json:"timeout_seconds,omitempty" yaml:"timeout_seconds,omitempty"`
	OpenAIKey      string `json:"openai_api_key,omitempty" yaml:"openai_api_key,omitempty"`
	OpenAIBaseURL  string `json:"openai_base_url,omitempty" yaml:"openai_base_url,omitempty"`
	Model          string `json:"model,omitempty" yaml:"model,omitempty"`
}

// Timeout is the per-resolution deadline.
func (d DatesConfig) Timeout() time.Duration {
	return time.Duration(d.TimeoutSeconds) * time.Second
}

// APIConfig holds HTTP server settings.
type APIConfig struct {
	Host string `json:"host" yaml:"host"`
	Port int    `json:"port" yaml:"port"`
	Key  string `json:"api_key,omitempty" yaml:"api_key,omitempty"`
}

// Addr is the listen address.
func (a APIConfig) Addr() string {
	return fmt.Sprintf("%s:%d", a.Host, a.Port)
}

// SessionsConfig controls idle draft expiry. Zero disables it.
type SessionsConfig struct {
	IdleTTLMinutes int `json:"idle_ttl_minutes,omitempty" yaml:"idle_ttl_minutes,omitempty"`
}

// IdleTTL is the idle expiry window, or zero when disabled.
func (s SessionsConfig) IdleTTL() time.Duration {
	return time.Duration(s.IdleTTLMinutes) * time.Minute
}

// Load reads configuration from a JSON or YAML file, picked by extension.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var cfg Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &cfg)
	default:
		err = json.Unmarshal(data, &cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadFromEnv builds the config from environment variables.
func LoadFromEnv() (*Config, error) {
	cfg := &Config{
		Slack: SlackConfig{
			BotToken:      os.Getenv("SLACK_BOT_TOKEN"),
			AppToken:      os.Getenv("SLACK_APP_TOKEN"),
			SigningSecret: os.Getenv("SLACK_SIGNING_SECRET"),
		},
		Jira: JiraConfig{
			BaseURL:    os.Getenv("JIRA_BASE_URL"),
			Email:      os.Getenv("JIRA_EMAIL"),
			APIToken:   os.Getenv("JIRA_API_TOKEN"),
			ProjectKey: os.Getenv("JIRA_PROJECT_KEY"),
			IssueType:  os.Getenv("JIRA_ISSUE_TYPE"),
		},
		Dates: DatesConfig{
			Resolver:      strings.ToLower(os.Getenv("DATE_RESOLVER")),
			OpenAIKey:     os.Getenv("OPENAI_API_KEY"),
			OpenAIBaseURL: os.Getenv("OPENAI_BASE_URL"),
			Model:         os.Getenv("OPENAI_MODEL"),
		},
		API: APIConfig{
			Host: os.Getenv("HOST"),
			Key:  os.Getenv("ADMIN_API_KEY"),
		},
		DataDir:  os.Getenv("DATA_DIR"),
		LogLevel: os.Getenv("LOG_LEVEL"),
	}

	var errs []string
	var err error
	if cfg.Dates.TimeoutSeconds, err = getenvInt("DATE_TIMEOUT_SECONDS", 0); err != nil {
		errs = append(errs, err.Error())
	}
	if cfg.API.Port, err = getenvInt("PORT", 0); err != nil {
		errs = append(errs, err.Error())
	}
	if cfg.Sessions.IdleTTLMinutes, err = getenvInt("SESSION_IDLE_TTL_MINUTES", 0); err != nil {
		errs = append(errs, err.Error())
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("config: %s", strings.Join(errs, "; "))
	}

	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Jira.ProjectKey == "" {
		c.Jira.ProjectKey = protocol.DefaultProjectKey
	}
	if c.Jira.IssueType == "" {
		c.Jira.IssueType = protocol.DefaultIssueType
	}
	c.Jira.BaseURL = strings.TrimRight(c.Jira.BaseURL, "/")
	if c.Dates.Resolver == "" {
		c.Dates.Resolver = ResolverAuto
	}
	if c.Dates.TimeoutSeconds == 0 {
		c.Dates.TimeoutSeconds = 10
	}
	if c.Dates.Model == "" {
		c.Dates.Model = "gpt-3.5-turbo"
	}
	if c.API.Port == 0 {
		c.API.Port = 8080
	}
	if c.DataDir == "" {
		c.DataDir = "./data"
	}
}

// Validate checks for required fields and collects every problem found.
func (c *Config) Validate() error {
	var errs []string

	if c.Slack.BotToken == "" {
		errs = append(errs, "slack.bot_token (SLACK_BOT_TOKEN) is required")
	}
	if c.Jira.BaseURL == "" {
		errs = append(errs, "jira.base_url (JIRA_BASE_URL) is required")
	} else if !strings.HasPrefix(c.Jira.BaseURL, "http://") && !strings.HasPrefix(c.Jira.BaseURL, "https://") {
		errs = append(errs, fmt.Sprintf("jira.base_url %q must start with http:// or https://", c.Jira.BaseURL))
	}
	if c.Jira.Email == "" {
		errs = append(errs, "jira.email (JIRA_EMAIL) is required")
	}
	if c.Jira.APIToken == "" {
		errs = append(errs, "jira.api_token (JIRA_API_TOKEN) is required")
	}

	switch c.Dates.Resolver {
	case ResolverParser, ResolverAuto:
	case ResolverLLM:
		if c.Dates.OpenAIKey == "" {
			errs = append(errs, "dates.openai_api_key (OPENAI_API_KEY) is required when resolver is llm")
		}
	default:
		errs = append(errs, fmt.Sprintf("dates.resolver %q must be one of parser, llm, auto", c.Dates.Resolver))
	}
	if c.Dates.TimeoutSeconds < 0 {
		errs = append(errs, "dates.timeout_seconds must not be negative")
	}

	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, fmt.Sprintf("api.port %d is out of range", c.API.Port))
	}
	if c.Sessions.IdleTTLMinutes < 0 {
		errs = append(errs, "sessions.idle_ttl_minutes must not be negative")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

func getenvInt(key string, fallback int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid integer %q", key, v)
	}
	return n, nil
}
