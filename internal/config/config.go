package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Version is stamped onto every fieldmap a form submission writes, so
// stored mappings record which release last touched them.
const Version = "2.3.0"

// Config application configuration structure
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	NATS       NATSConfig       `yaml:"nats"`
	Salesforce SalesforceConfig `yaml:"salesforce"`
	WordPress  WordPressConfig  `yaml:"wordpress"`
	Admin      AdminConfig      `yaml:"admin"`
	CORS       CORSConfig       `yaml:"cors"`
	Sync       SyncConfig       `yaml:"sync"`
}

// ServerConfig server configuration
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// DatabaseConfig database configuration
type DatabaseConfig struct {
	DSN    string `yaml:"dsn"`
	Driver string `yaml:"driver"`
}

// NATSConfig NATS message server configuration. Publication is optional:
// an empty URL disables event publication entirely.
type NATSConfig struct {
	URL           string `yaml:"url"`
	Timeout       int    `yaml:"timeout"`
	ReconnectWait int    `yaml:"reconnect_wait"`
	MaxReconnects int    `yaml:"max_reconnects"`
	SubjectPrefix string `yaml:"subject_prefix"`
}

// SalesforceConfig Salesforce API connection configuration
type SalesforceConfig struct {
	InstanceURL    string `yaml:"instanceUrl"` // e.g. https://mydomain.my.salesforce.com
	LoginURL       string `yaml:"loginUrl"`    // token endpoint host, defaults to https://login.salesforce.com
	ConsumerKey    string `yaml:"consumerKey"` // connected app client id
	ConsumerSecret string `yaml:"consumerSecret"`
	Username       string `yaml:"username"`
	Password       string `yaml:"password"` // password + security token concatenated
	APIVersion     string `yaml:"apiVersion"`
	Timeout        int    `yaml:"timeout"` // request timeout (seconds)
}

// WordPressConfig WordPress REST API configuration
type WordPressConfig struct {
	BaseURL     string `yaml:"baseUrl"` // e.g. https://example.com/wp-json
	Username    string `yaml:"username"`
	AppPassword string `yaml:"appPassword"` // application password for basic auth
	Timeout     int    `yaml:"timeout"`
}

// AdminConfig admin API access control configuration
type AdminConfig struct {
	AllowedIPs []string `yaml:"allowedIPs"` // allowed IP addresses or CIDR ranges
}

// CORSConfig CORS configuration
type CORSConfig struct {
	AllowedOrigins   []string `yaml:"allowedOrigins"`
	AllowCredentials bool     `yaml:"allowCredentials"`
	MaxAge           int      `yaml:"maxAge"` // preflight max age (seconds)
}

// SyncConfig sync dispatch tuning
type SyncConfig struct {
	PullIntervalMinutes int `yaml:"pullIntervalMinutes"` // pull scheduler interval, 0 disables
	PullBatchSize       int `yaml:"pullBatchSize"`
	TransientTTLSeconds int `yaml:"transientTtlSeconds"` // 0 = persist until cleared
}

var AppConfig *Config

// LoadConfig reads the YAML configuration file and applies environment
// variable overrides. An empty path falls back to config.yaml, preferring
// config.local.yaml when present.
func LoadConfig(configPath string) error {
	if configPath == "" {
		configPath = "config.yaml"
		if _, err := os.Stat("config.local.yaml"); err == nil {
			configPath = "config.local.yaml"
		}
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	overrideFromEnv(&config)
	applyDefaults(&config)

	AppConfig = &config
	return nil
}

// overrideFromEnv applies environment variable overrides on top of the
// file-based configuration.
func overrideFromEnv(config *Config) {
	if dsn := os.Getenv("DATABASE_DSN"); dsn != "" {
		config.Database.DSN = dsn
	}

	if host := os.Getenv("SERVER_HOST"); host != "" {
		config.Server.Host = host
	}
	if port := os.Getenv("SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}

	if natsURL := os.Getenv("NATS_URL"); natsURL != "" {
		config.NATS.URL = natsURL
	}
	if natsTimeout := os.Getenv("NATS_TIMEOUT"); natsTimeout != "" {
		if t, err := strconv.Atoi(natsTimeout); err == nil {
			config.NATS.Timeout = t
		}
	}

	if instanceURL := os.Getenv("SALESFORCE_INSTANCE_URL"); instanceURL != "" {
		config.Salesforce.InstanceURL = instanceURL
	}
	if loginURL := os.Getenv("SALESFORCE_LOGIN_URL"); loginURL != "" {
		config.Salesforce.LoginURL = loginURL
	}
	if consumerKey := os.Getenv("SALESFORCE_CONSUMER_KEY"); consumerKey != "" {
		config.Salesforce.ConsumerKey = consumerKey
	}
	if consumerSecret := os.Getenv("SALESFORCE_CONSUMER_SECRET"); consumerSecret != "" {
		config.Salesforce.ConsumerSecret = consumerSecret
	}
	if username := os.Getenv("SALESFORCE_USERNAME"); username != "" {
		config.Salesforce.Username = username
	}
	if password := os.Getenv("SALESFORCE_PASSWORD"); password != "" {
		config.Salesforce.Password = password
	}
	if apiVersion := os.Getenv("SALESFORCE_API_VERSION"); apiVersion != "" {
		config.Salesforce.APIVersion = apiVersion
	}

	if wpBaseURL := os.Getenv("WORDPRESS_BASE_URL"); wpBaseURL != "" {
		config.WordPress.BaseURL = wpBaseURL
	}
	if wpUser := os.Getenv("WORDPRESS_USERNAME"); wpUser != "" {
		config.WordPress.Username = wpUser
	}
	if wpAppPassword := os.Getenv("WORDPRESS_APP_PASSWORD"); wpAppPassword != "" {
		config.WordPress.AppPassword = wpAppPassword
	}

	if corsOrigins := os.Getenv("CORS_ALLOWED_ORIGINS"); corsOrigins != "" {
		origins := strings.Split(corsOrigins, ",")
		config.CORS.AllowedOrigins = make([]string, 0, len(origins))
		for _, origin := range origins {
			trimmed := strings.TrimSpace(origin)
			if trimmed != "" {
				config.CORS.AllowedOrigins = append(config.CORS.AllowedOrigins, trimmed)
			}
		}
	}

	if allowedIPs := os.Getenv("ADMIN_ALLOWED_IPS"); allowedIPs != "" {
		ips := strings.Split(allowedIPs, ",")
		config.Admin.AllowedIPs = make([]string, 0, len(ips))
		for _, ip := range ips {
			trimmed := strings.TrimSpace(ip)
			if trimmed != "" {
				config.Admin.AllowedIPs = append(config.Admin.AllowedIPs, trimmed)
			}
		}
	}

	if ttl := os.Getenv("SYNC_TRANSIENT_TTL_SECONDS"); ttl != "" {
		if t, err := strconv.Atoi(ttl); err == nil {
			config.Sync.TransientTTLSeconds = t
		}
	}
	if interval := os.Getenv("SYNC_PULL_INTERVAL_MINUTES"); interval != "" {
		if m, err := strconv.Atoi(interval); err == nil {
			config.Sync.PullIntervalMinutes = m
		}
	}
}

// applyDefaults fills in the values the rest of the service assumes are set.
func applyDefaults(config *Config) {
	if config.Salesforce.LoginURL == "" {
		config.Salesforce.LoginURL = "https://login.salesforce.com"
	}
	if config.Salesforce.APIVersion == "" {
		config.Salesforce.APIVersion = "v62.0"
	}
	if config.Salesforce.Timeout <= 0 {
		config.Salesforce.Timeout = 30
	}
	if config.WordPress.Timeout <= 0 {
		config.WordPress.Timeout = 30
	}
	if config.Sync.PullBatchSize <= 0 {
		config.Sync.PullBatchSize = 50
	}
	if config.NATS.SubjectPrefix == "" {
		config.NATS.SubjectPrefix = "salesforce.sync"
	}
}

// GetSalesforceTokenURL returns the OAuth token endpoint derived from the
// configured login host.
func GetSalesforceTokenURL() string {
	if AppConfig == nil {
		return "https://login.salesforce.com/services/oauth2/token"
	}
	return strings.TrimRight(AppConfig.Salesforce.LoginURL, "/") + "/services/oauth2/token"
}
