// Package config provides YAML-based configuration loading for onecall.
package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the top-level onecall configuration, loaded from config.yaml.
type Config struct {
	Database  DatabaseConfig  `yaml:"database"`
	Server    ServerConfig    `yaml:"server"`
	Telephony TelephonyConfig `yaml:"telephony"`
	Mail      MailConfig      `yaml:"mail"`
	AI        AIConfig        `yaml:"ai"`
	Poller    PollerConfig    `yaml:"poller"`
	Notify    NotifyConfig    `yaml:"notify"`

	// DistrictsFile optionally overrides the embedded district registry.
	DistrictsFile string `yaml:"districts_file"`
}

// DatabaseConfig holds connection settings for the MySQL server.
type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
}

// ServerConfig holds HTTP API settings.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// TelephonyConfig holds Twilio credentials for the phone channel.
type TelephonyConfig struct {
	AccountSID     string `yaml:"account_sid"`
	AuthToken      string `yaml:"auth_token"`
	FromNumber     string `yaml:"from_number"`
	WebhookBaseURL string `yaml:"webhook_base_url"`
}

// MailConfig holds SMTP settings for the email channel.
type MailConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
}

// AIConfig holds settings for script and form-instruction generation.
type AIConfig struct {
	APIKey string `yaml:"api_key"`
	Model  string `yaml:"model"`
}

// PollerConfig holds status-poller scheduling settings.
type PollerConfig struct {
	Schedule        string `yaml:"schedule"`          // 5-field cron expression
	InitialDelaySec int    `yaml:"initial_delay_sec"` // delay before the first sweep
	CheckDelaySec   int    `yaml:"check_delay_sec"`   // pause between consecutive lookups
}

// NotifyConfig holds Slack settings for operator alerts.
type NotifyConfig struct {
	SlackToken   string `yaml:"slack_token"`
	SlackChannel string `yaml:"slack_channel"`
}

// Load reads a YAML config file from path and returns a validated Config.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse unmarshals YAML bytes into a validated Config.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyDefaults fills in derived and default values.
func (c *Config) applyDefaults() {
	if c.Database.Host == "" {
		c.Database.Host = "127.0.0.1"
	}
	if c.Database.Port == 0 {
		c.Database.Port = 3306
	}
	if c.Database.Database == "" {
		c.Database.Database = "onecall"
	}
	if c.Database.User == "" {
		c.Database.User = "root"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Mail.Port == 0 {
		c.Mail.Port = 587
	}
	if c.Mail.From == "" && c.Mail.User != "" {
		c.Mail.From = c.Mail.User
	}
	if c.AI.Model == "" {
		c.AI.Model = "gpt-4"
	}
	if c.Poller.Schedule == "" {
		c.Poller.Schedule = "*/30 * * * *"
	}
	if c.Poller.InitialDelaySec == 0 {
		c.Poller.InitialDelaySec = 300
	}
	if c.Poller.CheckDelaySec == 0 {
		c.Poller.CheckDelaySec = 5
	}
}

// validate checks that all required fields are present and consistent.
func (c *Config) validate() error {
	var errs []string
	if c.Database.Database == "" {
		errs = append(errs, "database.database is required")
	}
	if c.Telephony.AccountSID != "" && c.Telephony.FromNumber == "" {
		errs = append(errs, "telephony.from_number is required when telephony is configured")
	}
	if c.Telephony.AccountSID != "" && c.Telephony.AuthToken == "" {
		errs = append(errs, "telephony.auth_token is required when telephony is configured")
	}
	if c.Mail.Host != "" && c.Mail.From == "" {
		errs = append(errs, "mail.from is required when mail is configured")
	}
	if c.Notify.SlackToken != "" && c.Notify.SlackChannel == "" {
		errs = append(errs, "notify.slack_channel is required when slack is configured")
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}
