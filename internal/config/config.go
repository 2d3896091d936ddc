// internal/config/config.go
package config

import (
    "fmt"
    "os"
    "path/filepath"
    "sort"
    "strings"
    "time"

    "gopkg.in/yaml.v3"
)

const defaultRetryDelay = 1 * time.Second

type Config struct {
    Server     ServerConfig     `yaml:"server"`
    Database   DatabaseConfig   `yaml:"database"`
    Prometheus PrometheusConfig `yaml:"prometheus"`
    Monitoring MonitoringConfig `yaml:"monitoring"`
    Logging    LoggingConfig    `yaml:"logging"`
    Hosts      []HostConfig     `yaml:"hosts"`
    Include    IncludeConfig    `yaml:"include"`
}

type IncludeConfig struct {
    Directory string `yaml:"directory"`
    Pattern   string `yaml:"pattern"`
    Enabled   bool   `yaml:"enabled"`
}

type ServerConfig struct {
    Port         string        `yaml:"port"`
    ReadTimeout  time.Duration `yaml:"read_timeout"`
    WriteTimeout time.Duration `yaml:"write_timeout"`
}

type DatabaseConfig struct {
    Type         string `yaml:"type"`
    Path         string `yaml:"path"`
    LogRetention int    `yaml:"log_retention"`
}

type PrometheusConfig struct {
    Enabled     bool   `yaml:"enabled"`
    MetricsPath string `yaml:"metrics_path"`
}

type MonitoringConfig struct {
    // Interval enables the in-process scheduler when positive. Zero leaves
    // batch runs to an external trigger.
    Interval     time.Duration `yaml:"interval"`
    Timeout      time.Duration `yaml:"timeout"`
    MaxAttempts  int           `yaml:"max_attempts"`
    RetryDelay   time.Duration `yaml:"retry_delay"`
    Workers      int           `yaml:"workers"`
    HostDeadline time.Duration `yaml:"host_deadline"`
    PingCommand  string        `yaml:"ping_command"`
}

type LoggingConfig struct {
    Level  string `yaml:"level"`
    Format string `yaml:"format"`
    File   string `yaml:"file"`
}

type HostConfig struct {
    Name        string  `yaml:"name"`
    Address     string  `yaml:"address"`
    Latitude    float64 `yaml:"latitude"`
    Longitude   float64 `yaml:"longitude"`
    Description string  `yaml:"description"`
}

// PartialConfig represents an include file; only its hosts are merged
type PartialConfig struct {
    Hosts []HostConfig `yaml:"hosts,omitempty"`
}

func Load(filename string) (*Config, error) {
    // Load the main config file
    config, err := loadConfigFile(filename)
    if err != nil {
        return nil, fmt.Errorf("failed to load main config file: %w", err)
    }

    // Process includes if enabled
    if config.Include.Enabled && config.Include.Directory != "" {
        if err := loadIncludes(config, filepath.Dir(filename)); err != nil {
            return nil, fmt.Errorf("failed to load includes: %w", err)
        }
    }

    setDefaults(config)

    if err := validate(config); err != nil {
        return nil, fmt.Errorf("invalid configuration: %w", err)
    }

    return config, nil
}

// Default returns a configuration with every default applied.
func Default() *Config {
    config := newConfig()
    setDefaults(config)
    return config
}

// newConfig presets the fields whose zero value is a meaningful setting, so
// an explicit zero in the file survives decoding.
func newConfig() *Config {
    return &Config{
        Monitoring: MonitoringConfig{
            RetryDelay: defaultRetryDelay,
        },
    }
}

func loadConfigFile(filename string) (*Config, error) {
    data, err := os.ReadFile(filename)
    if err != nil {
        return nil, fmt.Errorf("failed to read config file: %w", err)
    }

    config := newConfig()
    if err := yaml.Unmarshal(data, config); err != nil {
        return nil, fmt.Errorf("failed to parse YAML: %w", err)
    }

    return config, nil
}

func loadIncludes(config *Config, baseDir string) error {
    includeDir := config.Include.Directory

    // Make include directory relative to main config file if not absolute
    if !filepath.IsAbs(includeDir) {
        includeDir = filepath.Join(baseDir, includeDir)
    }

    if _, err := os.Stat(includeDir); os.IsNotExist(err) {
        return fmt.Errorf("include directory does not exist: %s", includeDir)
    }

    pattern := config.Include.Pattern
    if pattern == "" {
        pattern = "*.yaml"
    }

    matches, err := filepath.Glob(filepath.Join(includeDir, pattern))
    if err != nil {
        return fmt.Errorf("failed to glob include pattern: %w", err)
    }

    // Also check for .yml files if pattern is default
    if pattern == "*.yaml" {
        ymlMatches, err := filepath.Glob(filepath.Join(includeDir, "*.yml"))
        if err != nil {
            return fmt.Errorf("failed to glob .yml files: %w", err)
        }
        matches = append(matches, ymlMatches...)
    }

    sort.Slice(matches, func(i, j int) bool {
        return filepath.Base(matches[i]) < filepath.Base(matches[j])
    })

    for _, match := range matches {
        if err := loadAndMergeInclude(config, match); err != nil {
            return fmt.Errorf("failed to load include file %s: %w", match, err)
        }
    }

    return nil
}

func loadAndMergeInclude(config *Config, filename string) error {
    data, err := os.ReadFile(filename)
    if err != nil {
        return fmt.Errorf("failed to read include file: %w", err)
    }

    var partial PartialConfig
    if err := yaml.Unmarshal(data, &partial); err != nil {
        return fmt.Errorf("failed to parse include file YAML: %w", err)
    }

    config.Hosts = append(config.Hosts, partial.Hosts...)
    return nil
}

func setDefaults(cfg *Config) {
    // Server defaults
    if cfg.Server.Port == "" {
        cfg.Server.Port = ":8000"
    }
    if cfg.Server.ReadTimeout == 0 {
        cfg.Server.ReadTimeout = 30 * time.Second
    }
    if cfg.Server.WriteTimeout == 0 {
        cfg.Server.WriteTimeout = 60 * time.Second
    }

    // Database defaults
    if cfg.Database.Type == "" {
        cfg.Database.Type = "boltdb"
    }
    if cfg.Database.Path == "" {
        cfg.Database.Path = "./data/pingmap.db"
    }
    if cfg.Database.LogRetention == 0 {
        cfg.Database.LogRetention = 100
    }

    if cfg.Include.Pattern == "" {
        cfg.Include.Pattern = "*.yaml"
    }

    // Monitoring defaults
    if cfg.Monitoring.Timeout == 0 {
        cfg.Monitoring.Timeout = 5 * time.Second
    }
    if cfg.Monitoring.MaxAttempts == 0 {
        cfg.Monitoring.MaxAttempts = 3
    }
    if cfg.Monitoring.Workers == 0 {
        cfg.Monitoring.Workers = 4
    }
    if cfg.Monitoring.PingCommand == "" {
        cfg.Monitoring.PingCommand = "ping"
    }

    if cfg.Prometheus.MetricsPath == "" {
        cfg.Prometheus.MetricsPath = "/metrics"
    }

    // Logging defaults
    if cfg.Logging.Level == "" {
        cfg.Logging.Level = "info"
    }
    if cfg.Logging.Format == "" {
        cfg.Logging.Format = "text"
    }
}

func validate(cfg *Config) error {
    if cfg.Database.Type != "boltdb" {
        return fmt.Errorf("only boltdb is supported currently")
    }
    if cfg.Database.LogRetention < 1 {
        return fmt.Errorf("database.log_retention must be at least 1")
    }

    if cfg.Monitoring.Interval < 0 {
        return fmt.Errorf("monitoring.interval cannot be negative")
    }
    if cfg.Monitoring.Timeout <= 0 {
        return fmt.Errorf("monitoring.timeout must be positive")
    }
    if cfg.Monitoring.MaxAttempts < 1 {
        return fmt.Errorf("monitoring.max_attempts must be at least 1")
    }
    if cfg.Monitoring.RetryDelay < 0 {
        return fmt.Errorf("monitoring.retry_delay cannot be negative")
    }
    if cfg.Monitoring.Workers < 1 {
        return fmt.Errorf("monitoring.workers must be at least 1")
    }
    if cfg.Monitoring.HostDeadline < 0 {
        return fmt.Errorf("monitoring.host_deadline cannot be negative")
    }

    if cfg.Include.Enabled {
        if cfg.Include.Directory == "" {
            return fmt.Errorf("include.directory must be specified when include.enabled is true")
        }
        if !isValidGlobPattern(cfg.Include.Pattern) {
            return fmt.Errorf("include.pattern contains invalid glob pattern: %s", cfg.Include.Pattern)
        }
    }

    // Validate for duplicate seed addresses
    addresses := make(map[string]bool)
    for _, host := range cfg.Hosts {
        if host.Address == "" {
            return fmt.Errorf("host %q has no address", host.Name)
        }
        if addresses[host.Address] {
            return fmt.Errorf("duplicate host address: %s", host.Address)
        }
        addresses[host.Address] = true
    }

    return nil
}

// EffectiveHostDeadline bounds the time spent checking one host in a batch
// run: every attempt timing out plus the delays between them, with slack
// for process startup.
func (m MonitoringConfig) EffectiveHostDeadline() time.Duration {
    if m.HostDeadline > 0 {
        return m.HostDeadline
    }
    attempts := m.MaxAttempts
    if attempts < 1 {
        attempts = 1
    }
    return time.Duration(attempts)*m.Timeout + time.Duration(attempts-1)*m.RetryDelay + 2*time.Second
}

// isValidGlobPattern checks if a string is a valid glob pattern
func isValidGlobPattern(pattern string) bool {
    if strings.Contains(pattern, "/") || strings.Contains(pattern, "\\") {
        return false
    }
    _, err := filepath.Match(pattern, "test.yaml")
    return err == nil
}
