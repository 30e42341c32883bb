// Package config provides configuration management for Provinator.
//
// Configuration is loaded from:
// 1. config.yaml file (optional)
// 2. Environment variables (standard names like DATABASE_URL, SERVER_PORT)
// 3. Default values
//
// The Proxmox/Jira/IPAM/SMTP/App groups seed the settings registry
// defaults; rows in the settings table override them at runtime.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the root configuration structure.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Log      LogConfig      `mapstructure:"log"`
	River    RiverConfig    `mapstructure:"river"`
	Worker   WorkerConfig   `mapstructure:"worker"`
	Auth     AuthConfig     `mapstructure:"auth"`

	Proxmox ProxmoxConfig `mapstructure:"proxmox"`
	Jira    JiraConfig    `mapstructure:"jira"`
	IPAM    IPAMConfig    `mapstructure:"phpipam"`
	SMTP    SMTPConfig    `mapstructure:"smtp"`
	App     AppConfig     `mapstructure:"app"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig contains PostgreSQL connection settings.
// One pgx pool is shared by gorm and River.
type DatabaseConfig struct {
	URL string `mapstructure:"url"`

	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	SSLMode  string `mapstructure:"sslmode"`

	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `mapstructure:"max_conn_idle_time"`

	AutoMigrate bool `mapstructure:"auto_migrate"`
}

// DSN returns the PostgreSQL connection string.
// Priority: DATABASE_URL > constructed from individual fields.
func (c DatabaseConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	sslmode := c.SSLMode
	if sslmode == "" {
		sslmode = "disable"
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, sslmode,
	)
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json or console
}

// RiverConfig contains River Queue settings.
type RiverConfig struct {
	MaxWorkers                  int           `mapstructure:"max_workers"`
	CompletedJobRetentionPeriod time.Duration `mapstructure:"completed_job_retention_period"`
}

// WorkerConfig contains worker pool settings.
type WorkerConfig struct {
	GeneralPoolSize    int `mapstructure:"general_pool_size"`
	HypervisorPoolSize int `mapstructure:"hypervisor_pool_size"`
}

// AuthConfig contains JWT validation settings.
// When JWKSURL is empty the API runs unauthenticated (lab mode).
type AuthConfig struct {
	JWKSURL   string        `mapstructure:"jwks_url"`
	Issuer    string        `mapstructure:"issuer"`
	Audience  string        `mapstructure:"audience"`
	AdminRole string        `mapstructure:"admin_role"`
	JWKSTTL   time.Duration `mapstructure:"jwks_ttl"`
}

// ProxmoxConfig contains the fallback Proxmox connection used when a
// request carries no environment.
type ProxmoxConfig struct {
	Host       string `mapstructure:"host"`
	TokenID    string `mapstructure:"token_id"`
	TokenValue string `mapstructure:"token_value"`
	VerifySSL  bool   `mapstructure:"verify_ssl"`
}

// JiraConfig contains Jira Cloud settings.
type JiraConfig struct {
	BaseURL       string `mapstructure:"base_url"`
	Email         string `mapstructure:"email"`
	APIToken      string `mapstructure:"api_token"`
	ProjectKey    string `mapstructure:"project_key"`
	IssueType     string `mapstructure:"issue_type"`
	ApproveStatus string `mapstructure:"approve_status"`
	RejectStatus  string `mapstructure:"reject_status"`
	WebhookSecret string `mapstructure:"webhook_secret"`
}

// IPAMConfig contains phpIPAM settings.
type IPAMConfig struct {
	URL             string `mapstructure:"url"`
	AppID           string `mapstructure:"app_id"`
	Token           string `mapstructure:"token"`
	DefaultSubnetID int    `mapstructure:"default_subnet_id"`
	Enabled         bool   `mapstructure:"enabled"`
}

// SMTPConfig contains outbound mail settings.
type SMTPConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	UseTLS   bool   `mapstructure:"use_tls"`
	From     string `mapstructure:"from"`
	Enabled  bool   `mapstructure:"enabled"`
}

// AppConfig contains application-level settings.
type AppConfig struct {
	BaseURL               string `mapstructure:"base_url"`
	NodeSelectionStrategy string `mapstructure:"node_selection_strategy"`
	SizesFile             string `mapstructure:"sizes_file"`
	TemplatesFile         string `mapstructure:"templates_file"`
}

// Load reads configuration from file and environment variables.
// Standard environment variables without prefix (DATABASE_URL, SERVER_PORT, etc.).
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/provinator")

	// Environment variable override without prefix.
	// Maps nested config: database.max_conns → DATABASE_MAX_CONNS
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
		// Config file is optional, use defaults and env vars
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

// Validate checks for critical configuration errors.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if c.Auth.JWKSURL != "" && c.Auth.Issuer == "" {
		return fmt.Errorf("auth.issuer must be set when auth.jwks_url is set")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	// Server
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.shutdown_timeout", "30s")

	// Database (shared pool)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "provinator")
	v.SetDefault("database.password", "")
	v.SetDefault("database.database", "provinator")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 50)
	v.SetDefault("database.min_conns", 5)
	v.SetDefault("database.max_conn_lifetime", "1h")
	v.SetDefault("database.max_conn_idle_time", "10m")
	v.SetDefault("database.auto_migrate", false)

	// Log
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// River
	v.SetDefault("river.max_workers", 10)
	v.SetDefault("river.completed_job_retention_period", "24h")

	// Worker Pool
	v.SetDefault("worker.general_pool_size", 100)
	v.SetDefault("worker.hypervisor_pool_size", 25)

	// Auth
	v.SetDefault("auth.admin_role", "Admin")
	v.SetDefault("auth.jwks_ttl", "1h")

	// Proxmox fallback connection
	v.SetDefault("proxmox.verify_ssl", false)

	// Jira
	v.SetDefault("jira.issue_type", "Task")
	v.SetDefault("jira.approve_status", "Approved")
	v.SetDefault("jira.reject_status", "Declined")

	// phpIPAM
	v.SetDefault("phpipam.enabled", false)
	v.SetDefault("phpipam.default_subnet_id", 0)

	// SMTP
	v.SetDefault("smtp.enabled", false)
	v.SetDefault("smtp.port", 587)
	v.SetDefault("smtp.use_tls", true)

	// App
	v.SetDefault("app.node_selection_strategy", "least_memory")
	v.SetDefault("app.sizes_file", "config/sizes.yaml")
	v.SetDefault("app.templates_file", "config/templates.yaml")
}
