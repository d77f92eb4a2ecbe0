package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration
type Config struct {
	Server      ServerConfig
	Database    DatabaseConfig
	SSH         SSHConfig
	Seed        SeedConfig
	Pool        PoolConfig
	Provisioner ProvisionerConfig
	Logging     LoggingConfig
	Metrics     MetricsConfig
	Health      HealthConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host string
	Port string
	Mode string // development or production
}

// DatabaseConfig holds the event store configuration
type DatabaseConfig struct {
	Path         string
	MaxOpenConns int
	MaxIdleConns int
}

// SSHConfig holds terminal channel configuration
type SSHConfig struct {
	ConnectTimeout time.Duration
	CommandTimeout time.Duration
	ReadTimeout    time.Duration
	PromptProbes   int
}

// Credential is one (username, password) candidate for device login
type Credential struct {
	Username string
	Password string
}

// SeedConfig holds the operator-supplied provisioning inputs
type SeedConfig struct {
	Switches          []string     // seed switch IPs
	Credentials       []Credential // ordered candidate list, stored first
	PreferredPassword string       // adopted on forced first-login change
	BaseConfigFile    string       // CLI text applied line by line
	ManagementVLAN    int
	WirelessVLANs     []int
}

// PoolConfig holds management IP pool configuration
type PoolConfig struct {
	CIDR    string
	Gateway string
}

// ProvisionerConfig holds orchestrator timing and retry knobs
type ProvisionerConfig struct {
	PollInterval   time.Duration
	StopTimeout    time.Duration
	TraceAttempts  int
	TraceDelay     time.Duration
	SnapshotEvery  int // persist inventory snapshot every N poll cycles
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level        string
	Format       string // json or console
	Output       string // stdout, stderr, or file path
	EnableCaller bool
	Environment  string
}

// MetricsConfig holds metrics configuration
type MetricsConfig struct {
	Enabled bool
	Path    string
}

// HealthConfig holds health check configuration
type HealthConfig struct {
	Enabled bool
	Timeout time.Duration
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host: getEnv("SERVER_HOST", "0.0.0.0"),
			Port: getEnv("SERVER_PORT", "8080"),
			Mode: getEnv("SERVER_MODE", "development"),
		},
		Database: DatabaseConfig{
			Path:         getEnv("DB_PATH", "./data/icxcommander.db"),
			MaxOpenConns: getEnvAsInt("DB_MAX_CONNECTIONS", 10),
			MaxIdleConns: getEnvAsInt("DB_MAX_IDLE_CONNECTIONS", 5),
		},
		SSH: SSHConfig{
			ConnectTimeout: getEnvAsDuration("SSH_CONNECT_TIMEOUT", 15*time.Second),
			CommandTimeout: getEnvAsDuration("SSH_COMMAND_TIMEOUT", 30*time.Second),
			ReadTimeout:    getEnvAsDuration("SSH_READ_TIMEOUT", 2*time.Second),
			PromptProbes:   getEnvAsInt("SSH_PROMPT_PROBES", 3),
		},
		Seed: SeedConfig{
			Switches:          getEnvAsList("SEED_SWITCHES", nil),
			Credentials:       getEnvAsCredentials("SEED_CREDENTIALS", "super:sp-admin"),
			PreferredPassword: getEnv("SEED_PREFERRED_PASSWORD", ""),
			BaseConfigFile:    getEnv("SEED_BASE_CONFIG_FILE", ""),
			ManagementVLAN:    getEnvAsInt("SEED_MANAGEMENT_VLAN", 10),
			WirelessVLANs:     getEnvAsIntList("SEED_WIRELESS_VLANS", []int{20, 30, 40}),
		},
		Pool: PoolConfig{
			CIDR:    getEnv("POOL_CIDR", "192.168.10.0/24"),
			Gateway: getEnv("POOL_GATEWAY", "192.168.10.1"),
		},
		Provisioner: ProvisionerConfig{
			PollInterval:  getEnvAsDuration("PROVISIONER_POLL_INTERVAL", 60*time.Second),
			StopTimeout:   getEnvAsDuration("PROVISIONER_STOP_TIMEOUT", 90*time.Second),
			TraceAttempts: getEnvAsInt("PROVISIONER_TRACE_ATTEMPTS", 3),
			TraceDelay:    getEnvAsDuration("PROVISIONER_TRACE_DELAY", 2*time.Second),
			SnapshotEvery: getEnvAsInt("PROVISIONER_SNAPSHOT_EVERY", 5),
		},
		Logging: LoggingConfig{
			Level:        getEnv("LOG_LEVEL", "info"),
			Format:       getEnv("LOG_FORMAT", "json"),
			Output:       getEnv("LOG_OUTPUT", "stdout"),
			EnableCaller: getEnvAsBool("LOG_ENABLE_CALLER", false),
			Environment:  getEnv("SERVER_MODE", "development"),
		},
		Metrics: MetricsConfig{
			Enabled: getEnvAsBool("METRICS_ENABLED", true),
			Path:    getEnv("METRICS_PATH", "/metrics"),
		},
		Health: HealthConfig{
			Enabled: getEnvAsBool("HEALTH_ENABLED", true),
			Timeout: getEnvAsDuration("HEALTH_TIMEOUT", 5*time.Second),
		},
	}

	if len(cfg.Seed.Credentials) == 0 {
		return nil, fmt.Errorf("SEED_CREDENTIALS must contain at least one user:password pair")
	}

	return cfg, nil
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func getEnvAsIntList(key string, defaultValue []int) []int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []int
	for _, item := range strings.Split(value, ",") {
		if n, err := strconv.Atoi(strings.TrimSpace(item)); err == nil {
			out = append(out, n)
		}
	}
	return out
}

// getEnvAsCredentials parses comma-separated user:password pairs
func getEnvAsCredentials(key, defaultValue string) []Credential {
	value := os.Getenv(key)
	if value == "" {
		value = defaultValue
	}
	var out []Credential
	for _, pair := range strings.Split(value, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		user, pass, ok := strings.Cut(pair, ":")
		if !ok {
			continue
		}
		out = append(out, Credential{Username: user, Password: pass})
	}
	return out
}
