package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/spf13/viper"
)

// Config application configuration structure
type Config struct {
	Session    SessionConfig    `yaml:"session" mapstructure:"session"`
	Helicone   HeliconeConfig   `yaml:"helicone" mapstructure:"helicone"`
	Downstream DownstreamConfig `yaml:"downstream" mapstructure:"downstream"`
	Replay     ReplayConfig     `yaml:"replay" mapstructure:"replay"`
	Mutation   MutationConfig   `yaml:"mutation" mapstructure:"mutation"`
	Dispatch   DispatchConfig   `yaml:"dispatch" mapstructure:"dispatch"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
	Output     OutputConfig     `yaml:"output" mapstructure:"output"`
	Storage    StorageConfig    `yaml:"storage" mapstructure:"storage"`
	Telemetry  TelemetryConfig  `yaml:"telemetry" mapstructure:"telemetry"`

	// File is the configuration file that was read, empty when defaults were used.
	File string `yaml:"-" mapstructure:"-"`
}

// SessionConfig identifies the recorded session and the replay display name
type SessionConfig struct {
	SourceID string `yaml:"source_id" mapstructure:"source_id"`
	Name     string `yaml:"name" mapstructure:"name"`
}

// HeliconeConfig log store query configuration
type HeliconeConfig struct {
	QueryURL string `yaml:"query_url" mapstructure:"query_url"`
	APIKey   string `yaml:"api_key" mapstructure:"api_key"`
	// Timeout in seconds for the session query
	Timeout          int   `yaml:"timeout" mapstructure:"timeout"`
	QueryLimit       int   `yaml:"query_limit" mapstructure:"query_limit"`
	MaxResponseBytes int64 `yaml:"max_response_bytes" mapstructure:"max_response_bytes"`
}

// DownstreamConfig inference API client configuration
type DownstreamConfig struct {
	APIKey                string            `yaml:"api_key" mapstructure:"api_key"`
	MaxIdleConns          int               `yaml:"max_idle_conns" mapstructure:"max_idle_conns"`
	MaxIdleConnsPerHost   int               `yaml:"max_idle_conns_per_host" mapstructure:"max_idle_conns_per_host"`
	IdleConnTimeout       int               `yaml:"idle_conn_timeout" mapstructure:"idle_conn_timeout"`
	ResponseHeaderTimeout int               `yaml:"response_header_timeout" mapstructure:"response_header_timeout"`
	TLSHandshakeTimeout   int               `yaml:"tls_handshake_timeout" mapstructure:"tls_handshake_timeout"`
	TLSInsecureSkipVerify bool              `yaml:"tls_insecure_skip_verify" mapstructure:"tls_insecure_skip_verify"`
	URLStrategy           URLStrategyConfig `yaml:"url_strategy" mapstructure:"url_strategy"`
}

// URLStrategyConfig configures how replay target URLs are constructed
type URLStrategyConfig struct {
	Mode  string                 `yaml:"mode" mapstructure:"mode"`
	Rules []URLRewriteRuleConfig `yaml:"rules" mapstructure:"rules"`
}

// URLRewriteRuleConfig defines a rewrite rule when mode is rewrite
type URLRewriteRuleConfig struct {
	Name    string `yaml:"name" mapstructure:"name"`
	Match   string `yaml:"match" mapstructure:"match"`
	Replace string `yaml:"replace" mapstructure:"replace"`
	Regex   bool   `yaml:"regex" mapstructure:"regex"`
}

// ReplayConfig controls structuring and traversal
type ReplayConfig struct {
	Mode            string        `yaml:"mode" mapstructure:"mode"`
	DuplicateAnchor string        `yaml:"duplicate_anchor" mapstructure:"duplicate_anchor"`
	SortSiblings    bool          `yaml:"sort_siblings" mapstructure:"sort_siblings"`
	OnFailure       string        `yaml:"on_failure" mapstructure:"on_failure"`
	CallTimeout     time.Duration `yaml:"call_timeout" mapstructure:"call_timeout"`
	RunTimeout      time.Duration `yaml:"run_timeout" mapstructure:"run_timeout"`
	MaxBodyBytes    int64         `yaml:"max_body_bytes" mapstructure:"max_body_bytes"`
	DryRun          bool          `yaml:"dry_run" mapstructure:"dry_run"`
}

// MutationConfig describes the single chat body mutation hook
type MutationConfig struct {
	Enable        bool   `yaml:"enable" mapstructure:"enable"`
	SystemSuffix  string `yaml:"system_suffix" mapstructure:"system_suffix"`
	SystemContent string `yaml:"system_content" mapstructure:"system_content"`
}

// DispatchConfig classification markers
type DispatchConfig struct {
	ChatMarker      string   `yaml:"chat_marker" mapstructure:"chat_marker"`
	EmbeddingMarker string   `yaml:"embedding_marker" mapstructure:"embedding_marker"`
	IgnorableTypes  []string `yaml:"ignorable_types" mapstructure:"ignorable_types"`
}

// LogConfig log configuration
type LogConfig struct {
	Level       string        `yaml:"level" mapstructure:"level"`
	FileLogging FileLogConfig `yaml:"file_logging" mapstructure:"file_logging"`
}

// FileLogConfig file log configuration
type FileLogConfig struct {
	Enable     bool   `yaml:"enable" mapstructure:"enable"`
	Path       string `yaml:"path" mapstructure:"path"`
	MaxSizeMB  int    `yaml:"max_size_mb" mapstructure:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups" mapstructure:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days" mapstructure:"max_age_days"`
	Compress   bool   `yaml:"compress" mapstructure:"compress"`
}

// OutputConfig controls CLI output style
type OutputConfig struct {
	Mode    string `yaml:"mode" mapstructure:"mode"`
	Silence bool   `yaml:"silence" mapstructure:"silence"`
	Report  string `yaml:"report" mapstructure:"report"`
}

// StorageConfig run journal persistence
type StorageConfig struct {
	Enable  bool   `yaml:"enable" mapstructure:"enable"`
	Driver  string `yaml:"driver" mapstructure:"driver"`
	Path    string `yaml:"path" mapstructure:"path"`
	MaxRuns int    `yaml:"max_runs" mapstructure:"max_runs"`
}

// TelemetryConfig OpenTelemetry tracing export
type TelemetryConfig struct {
	Enable      bool   `yaml:"enable" mapstructure:"enable"`
	Endpoint    string `yaml:"endpoint" mapstructure:"endpoint"`
	ServiceName string `yaml:"service_name" mapstructure:"service_name"`
}

// Credentials are read from the conventional unprefixed environment variables.
type Credentials struct {
	SessionID      string `env:"SESSION_ID"`
	HeliconeAPIKey string `env:"HELICONE_API_KEY"`
	OpenAIAPIKey   string `env:"OPENAI_API_KEY"`
}

// Replay modes
const (
	ModeTree     = "tree"
	ModePathTime = "path_time"
	ModeTime     = "time"
)

// Failure policies
const (
	OnFailureContinue    = "continue"
	OnFailureSkipSubtree = "skip_subtree"
)

// ConfigError reports a missing or invalid configuration value.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config %s: %s", e.Field, e.Reason)
}

func invalid(field, format string, args ...interface{}) error {
	return &ConfigError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// LoadConfig load configuration
// If v is nil, a new viper instance will be created
func LoadConfig(configPath string, v *viper.Viper) (*Config, error) {
	if v == nil {
		v = viper.New()
	}

	setDefaults(v)

	v.SetEnvPrefix("REPLAYTAP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigName("config")
	v.SetConfigType("yaml")

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.replaytap")
		v.AddConfigPath("/etc/replaytap")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	config.File = v.ConfigFileUsed()

	applyDefaults(&config, v)

	creds, err := LoadCredentials()
	if err != nil {
		return nil, err
	}
	applyCredentials(&config, creds)

	return &config, nil
}

// LoadCredentials parses the conventional credential environment variables.
func LoadCredentials() (Credentials, error) {
	var creds Credentials
	if err := env.Parse(&creds); err != nil {
		return creds, fmt.Errorf("parse credentials env: %w", err)
	}
	return creds, nil
}

// applyCredentials fills values that neither the config file, prefixed
// environment nor flags have set.
func applyCredentials(cfg *Config, creds Credentials) {
	if cfg.Session.SourceID == "" {
		cfg.Session.SourceID = strings.TrimSpace(creds.SessionID)
	}
	if cfg.Helicone.APIKey == "" {
		cfg.Helicone.APIKey = strings.TrimSpace(creds.HeliconeAPIKey)
	}
	if cfg.Downstream.APIKey == "" {
		cfg.Downstream.APIKey = strings.TrimSpace(creds.OpenAIAPIKey)
	}
}

// applyDefaults apply default values to zero-value fields in the struct
func applyDefaults(cfg *Config, v *viper.Viper) {
	if cfg.Session.Name == "" {
		cfg.Session.Name = v.GetString("session.name")
	}

	if cfg.Helicone.QueryURL == "" {
		cfg.Helicone.QueryURL = v.GetString("helicone.query_url")
	}
	if cfg.Helicone.Timeout == 0 {
		cfg.Helicone.Timeout = v.GetInt("helicone.timeout")
	}
	if cfg.Helicone.MaxResponseBytes == 0 {
		cfg.Helicone.MaxResponseBytes = v.GetInt64("helicone.max_response_bytes")
	}

	if cfg.Downstream.MaxIdleConns == 0 {
		cfg.Downstream.MaxIdleConns = v.GetInt("downstream.max_idle_conns")
	}
	if cfg.Downstream.MaxIdleConnsPerHost == 0 {
		cfg.Downstream.MaxIdleConnsPerHost = v.GetInt("downstream.max_idle_conns_per_host")
	}
	if cfg.Downstream.IdleConnTimeout == 0 {
		cfg.Downstream.IdleConnTimeout = v.GetInt("downstream.idle_conn_timeout")
	}
	if cfg.Downstream.ResponseHeaderTimeout == 0 {
		cfg.Downstream.ResponseHeaderTimeout = v.GetInt("downstream.response_header_timeout")
	}
	if cfg.Downstream.TLSHandshakeTimeout == 0 {
		cfg.Downstream.TLSHandshakeTimeout = v.GetInt("downstream.tls_handshake_timeout")
	}
	cfg.Downstream.TLSInsecureSkipVerify = v.GetBool("downstream.tls_insecure_skip_verify")
	if cfg.Downstream.URLStrategy.Mode == "" {
		cfg.Downstream.URLStrategy.Mode = v.GetString("downstream.url_strategy.mode")
	}
	if len(cfg.Downstream.URLStrategy.Rules) == 0 {
		var rules []URLRewriteRuleConfig
		if err := v.UnmarshalKey("downstream.url_strategy.rules", &rules); err == nil {
			cfg.Downstream.URLStrategy.Rules = rules
		}
	}

	// Replay configuration
	if cfg.Replay.Mode == "" {
		cfg.Replay.Mode = v.GetString("replay.mode")
	}
	cfg.Replay.Mode = strings.ToLower(strings.TrimSpace(cfg.Replay.Mode))
	if cfg.Replay.DuplicateAnchor == "" {
		cfg.Replay.DuplicateAnchor = v.GetString("replay.duplicate_anchor")
	}
	if cfg.Replay.OnFailure == "" {
		cfg.Replay.OnFailure = v.GetString("replay.on_failure")
	}
	cfg.Replay.SortSiblings = v.GetBool("replay.sort_siblings")
	cfg.Replay.DryRun = v.GetBool("replay.dry_run")
	if cfg.Replay.CallTimeout == 0 {
		cfg.Replay.CallTimeout = v.GetDuration("replay.call_timeout")
	}
	if cfg.Replay.RunTimeout == 0 {
		cfg.Replay.RunTimeout = v.GetDuration("replay.run_timeout")
	}
	if cfg.Replay.MaxBodyBytes == 0 {
		cfg.Replay.MaxBodyBytes = v.GetInt64("replay.max_body_bytes")
	}

	// Mutation: bools always come from viper so that defaults and files agree
	cfg.Mutation.Enable = v.GetBool("mutation.enable")
	if cfg.Mutation.SystemSuffix == "" {
		cfg.Mutation.SystemSuffix = v.GetString("mutation.system_suffix")
	}
	if cfg.Mutation.SystemContent == "" {
		cfg.Mutation.SystemContent = v.GetString("mutation.system_content")
	}

	if cfg.Dispatch.ChatMarker == "" {
		cfg.Dispatch.ChatMarker = v.GetString("dispatch.chat_marker")
	}
	if cfg.Dispatch.EmbeddingMarker == "" {
		cfg.Dispatch.EmbeddingMarker = v.GetString("dispatch.embedding_marker")
	}
	if len(cfg.Dispatch.IgnorableTypes) == 0 {
		cfg.Dispatch.IgnorableTypes = v.GetStringSlice("dispatch.ignorable_types")
	}
	cfg.Dispatch.IgnorableTypes = normalizeList(cfg.Dispatch.IgnorableTypes)

	// Log configuration
	if cfg.Log.Level == "" {
		cfg.Log.Level = v.GetString("log.level")
	}
	cfg.Log.FileLogging.Enable = v.GetBool("log.file_logging.enable")
	cfg.Log.FileLogging.Compress = v.GetBool("log.file_logging.compress")
	if cfg.Log.FileLogging.Path == "" {
		cfg.Log.FileLogging.Path = v.GetString("log.file_logging.path")
	}
	if cfg.Log.FileLogging.MaxSizeMB == 0 {
		cfg.Log.FileLogging.MaxSizeMB = v.GetInt("log.file_logging.max_size_mb")
	}
	if cfg.Log.FileLogging.MaxBackups == 0 {
		cfg.Log.FileLogging.MaxBackups = v.GetInt("log.file_logging.max_backups")
	}
	if cfg.Log.FileLogging.MaxAgeDays == 0 {
		cfg.Log.FileLogging.MaxAgeDays = v.GetInt("log.file_logging.max_age_days")
	}

	// Output configuration
	if cfg.Output.Mode == "" {
		cfg.Output.Mode = v.GetString("output.mode")
	}
	cfg.Output.Silence = v.GetBool("output.silence")

	// Storage configuration
	cfg.Storage.Enable = v.GetBool("storage.enable")
	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = v.GetString("storage.driver")
	}
	if cfg.Storage.Path == "" {
		cfg.Storage.Path = v.GetString("storage.path")
	}
	if cfg.Storage.MaxRuns == 0 {
		cfg.Storage.MaxRuns = v.GetInt("storage.max_runs")
	}

	// Telemetry configuration
	cfg.Telemetry.Enable = v.GetBool("telemetry.enable")
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = v.GetString("telemetry.service_name")
	}
}

// setDefaults set default configuration values
func setDefaults(v *viper.Viper) {
	v.SetDefault("session.source_id", "")
	v.SetDefault("session.name", "Session Replay")

	v.SetDefault("helicone.query_url", "https://api.helicone.ai/v1/request/query")
	v.SetDefault("helicone.api_key", "")
	v.SetDefault("helicone.timeout", 30)
	v.SetDefault("helicone.query_limit", 0)
	v.SetDefault("helicone.max_response_bytes", int64(64*1024*1024))

	v.SetDefault("downstream.api_key", "")
	v.SetDefault("downstream.max_idle_conns", 20)
	v.SetDefault("downstream.max_idle_conns_per_host", 4)
	v.SetDefault("downstream.idle_conn_timeout", 90)
	v.SetDefault("downstream.response_header_timeout", 120)
	v.SetDefault("downstream.tls_handshake_timeout", 10)
	v.SetDefault("downstream.tls_insecure_skip_verify", false)
	v.SetDefault("downstream.url_strategy.mode", "passthrough")
	v.SetDefault("downstream.url_strategy.rules", []map[string]string{})

	v.SetDefault("replay.mode", ModeTree)
	v.SetDefault("replay.duplicate_anchor", "last")
	v.SetDefault("replay.sort_siblings", false)
	v.SetDefault("replay.on_failure", OnFailureContinue)
	v.SetDefault("replay.call_timeout", "2m")
	v.SetDefault("replay.run_timeout", "0s")
	v.SetDefault("replay.max_body_bytes", int64(32*1024*1024))
	v.SetDefault("replay.dry_run", false)

	v.SetDefault("mutation.enable", true)
	v.SetDefault("mutation.system_suffix", " Always answer in French.")
	v.SetDefault("mutation.system_content", "Always answer in French.")

	v.SetDefault("dispatch.chat_marker", "chat/completions")
	v.SetDefault("dispatch.embedding_marker", "embeddings")
	v.SetDefault("dispatch.ignorable_types", []string{"vector_db"})

	v.SetDefault("log.level", "info")
	v.SetDefault("log.file_logging.enable", false)
	v.SetDefault("log.file_logging.path", "./replaytap.log")
	v.SetDefault("log.file_logging.max_size_mb", 10)
	v.SetDefault("log.file_logging.max_backups", 5)
	v.SetDefault("log.file_logging.max_age_days", 30)
	v.SetDefault("log.file_logging.compress", true)

	v.SetDefault("output.mode", "console")
	v.SetDefault("output.silence", false)
	v.SetDefault("output.report", "")

	v.SetDefault("storage.enable", false)
	v.SetDefault("storage.driver", "sqlite")
	v.SetDefault("storage.path", "./data/replaytap.db")
	v.SetDefault("storage.max_runs", 500)

	v.SetDefault("telemetry.enable", false)
	v.SetDefault("telemetry.endpoint", "")
	v.SetDefault("telemetry.service_name", "replaytap")
}

// Validate checks structural configuration. Required inputs are checked
// separately by RequireSession and RequireCredentials since not every
// command needs them.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Helicone.QueryURL) == "" {
		return invalid("helicone.query_url", "cannot be empty")
	}
	if c.Helicone.Timeout < 0 {
		return invalid("helicone.timeout", "cannot be negative")
	}
	if c.Helicone.QueryLimit < 0 {
		return invalid("helicone.query_limit", "cannot be negative")
	}
	if c.Helicone.MaxResponseBytes < 0 {
		return invalid("helicone.max_response_bytes", "cannot be negative")
	}

	switch strings.ToLower(c.Downstream.URLStrategy.Mode) {
	case "", "passthrough":
		c.Downstream.URLStrategy.Mode = "passthrough"
	case "rewrite":
		if len(c.Downstream.URLStrategy.Rules) == 0 {
			return invalid("downstream.url_strategy.rules", "cannot be empty when mode is rewrite")
		}
		for i, rule := range c.Downstream.URLStrategy.Rules {
			if strings.TrimSpace(rule.Match) == "" {
				return invalid("downstream.url_strategy.rules", "rule %d match cannot be empty", i+1)
			}
		}
	default:
		return invalid("downstream.url_strategy.mode", "must be passthrough or rewrite")
	}

	switch c.Replay.Mode {
	case ModeTree, ModePathTime, ModeTime:
	default:
		return invalid("replay.mode", "must be %s, %s or %s", ModeTree, ModePathTime, ModeTime)
	}
	switch strings.ToLower(c.Replay.DuplicateAnchor) {
	case "first", "last":
		c.Replay.DuplicateAnchor = strings.ToLower(c.Replay.DuplicateAnchor)
	default:
		return invalid("replay.duplicate_anchor", "must be first or last")
	}
	switch strings.ToLower(c.Replay.OnFailure) {
	case OnFailureContinue, OnFailureSkipSubtree:
		c.Replay.OnFailure = strings.ToLower(c.Replay.OnFailure)
	default:
		return invalid("replay.on_failure", "must be %s or %s", OnFailureContinue, OnFailureSkipSubtree)
	}
	if c.Replay.CallTimeout < 0 {
		return invalid("replay.call_timeout", "cannot be negative")
	}
	if c.Replay.RunTimeout < 0 {
		return invalid("replay.run_timeout", "cannot be negative")
	}
	if c.Replay.MaxBodyBytes < 0 {
		return invalid("replay.max_body_bytes", "cannot be negative")
	}

	if c.Mutation.Enable {
		if c.Mutation.SystemSuffix == "" {
			return invalid("mutation.system_suffix", "cannot be empty when mutation is enabled")
		}
		if strings.TrimSpace(c.Mutation.SystemContent) == "" {
			return invalid("mutation.system_content", "cannot be empty when mutation is enabled")
		}
	}

	if strings.TrimSpace(c.Dispatch.ChatMarker) == "" {
		return invalid("dispatch.chat_marker", "cannot be empty")
	}
	if strings.TrimSpace(c.Dispatch.EmbeddingMarker) == "" {
		return invalid("dispatch.embedding_marker", "cannot be empty")
	}

	validLogLevels := map[string]bool{
		"trace": true, "debug": true, "info": true,
		"warn": true, "error": true, "fatal": true, "panic": true,
	}
	if !validLogLevels[c.Log.Level] {
		return invalid("log.level", "invalid log level: %s", c.Log.Level)
	}
	if c.Log.FileLogging.Enable {
		if c.Log.FileLogging.Path == "" {
			return invalid("log.file_logging.path", "cannot be empty when file logging is enabled")
		}
		if c.Log.FileLogging.MaxSizeMB < 1 {
			return invalid("log.file_logging.max_size_mb", "must be at least 1MB")
		}
		if c.Log.FileLogging.MaxBackups < 0 {
			return invalid("log.file_logging.max_backups", "cannot be negative")
		}
		if c.Log.FileLogging.MaxAgeDays < 0 {
			return invalid("log.file_logging.max_age_days", "cannot be negative")
		}
	}

	switch strings.ToLower(c.Output.Mode) {
	case "", "console":
		c.Output.Mode = "console"
	case "json":
		c.Output.Mode = "json"
	default:
		return invalid("output.mode", "must be 'console' or 'json'")
	}

	if c.Storage.Enable {
		switch strings.ToLower(strings.TrimSpace(c.Storage.Driver)) {
		case "", "sqlite", "sqlite3":
			c.Storage.Driver = "sqlite"
		default:
			return invalid("storage.driver", "must be sqlite")
		}
		if strings.TrimSpace(c.Storage.Path) == "" {
			return invalid("storage.path", "cannot be empty")
		}
	}
	if c.Storage.MaxRuns < 0 {
		return invalid("storage.max_runs", "cannot be negative")
	}

	if c.Telemetry.Enable && strings.TrimSpace(c.Telemetry.Endpoint) == "" {
		return invalid("telemetry.endpoint", "cannot be empty when telemetry is enabled")
	}

	return nil
}

// RequireSession fails when no source session id was provided.
func (c *Config) RequireSession() error {
	if strings.TrimSpace(c.Session.SourceID) == "" {
		return invalid("session.source_id", "is required (use --session or SESSION_ID)")
	}
	return nil
}

// RequireJournal fails when the run journal is disabled.
func (c *Config) RequireJournal() error {
	if !c.Storage.Enable {
		return invalid("storage.enable", "journal is disabled (use --storage-enable)")
	}
	return nil
}

// RequireCredentials fails when the log store key, or the downstream key
// when downstream is true, is missing.
func (c *Config) RequireCredentials(downstream bool) error {
	if strings.TrimSpace(c.Helicone.APIKey) == "" {
		return invalid("helicone.api_key", "is required (use HELICONE_API_KEY)")
	}
	if downstream && strings.TrimSpace(c.Downstream.APIKey) == "" {
		return invalid("downstream.api_key", "is required (use OPENAI_API_KEY)")
	}
	return nil
}

func normalizeList(list []string) []string {
	if len(list) == 0 {
		return list
	}
	set := make(map[string]struct{}, len(list))
	result := make([]string, 0, len(list))
	for _, item := range list {
		norm := strings.ToLower(strings.TrimSpace(item))
		if norm == "" {
			continue
		}
		if _, exists := set[norm]; exists {
			continue
		}
		set[norm] = struct{}{}
		result = append(result, norm)
	}
	return result
}
