package config

import (
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/leadsync/internal/model"
)

// Config holds the full application configuration.
type Config struct {
	Bitrix     BitrixConfig     `yaml:"bitrix" mapstructure:"bitrix"`
	Mapping    MappingConfig    `yaml:"mapping" mapstructure:"mapping"`
	Deal       DealConfig       `yaml:"deal" mapstructure:"deal"`
	Sync       SyncConfig       `yaml:"sync" mapstructure:"sync"`
	VK         VKConfig         `yaml:"vk" mapstructure:"vk"`
	Notion     NotionConfig     `yaml:"notion" mapstructure:"notion"`
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// BitrixConfig configures the CRM webhook client.
type BitrixConfig struct {
	WebhookURL  string        `yaml:"webhook_url" mapstructure:"webhook_url"`
	RateLimit   float64       `yaml:"rate_limit" mapstructure:"rate_limit"`
	TimeoutSecs int           `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	Retry       RetryConfig   `yaml:"retry" mapstructure:"retry"`
	Circuit     CircuitConfig `yaml:"circuit" mapstructure:"circuit"`
}

// RetryConfig configures transport retries.
type RetryConfig struct {
	MaxAttempts      int `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs int `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs     int `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
}

// CircuitConfig configures the transport circuit breaker.
type CircuitConfig struct {
	FailureThreshold int `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	ResetTimeoutSecs int `yaml:"reset_timeout_secs" mapstructure:"reset_timeout_secs"`
}

// MappingConfig configures answer-to-field mapping.
type MappingConfig struct {
	Dynamic    bool              `yaml:"dynamic" mapstructure:"dynamic"`
	Static     map[string]string `yaml:"static" mapstructure:"static"`
	StaticPath string            `yaml:"static_path" mapstructure:"static_path"`
}

// DealConfig configures deal defaults and routing.
type DealConfig struct {
	TitlePrefix        string        `yaml:"title_prefix" mapstructure:"title_prefix"`
	SourceID           string        `yaml:"source_id" mapstructure:"source_id"`
	SourceDescription  string        `yaml:"source_description" mapstructure:"source_description"`
	AssignedByID       int           `yaml:"assigned_by_id" mapstructure:"assigned_by_id"`
	CategoryID         int           `yaml:"category_id" mapstructure:"category_id"`
	StageID            string        `yaml:"stage_id" mapstructure:"stage_id"`
	DefaultContactName string        `yaml:"default_contact_name" mapstructure:"default_contact_name"`
	SummaryLabels      []model.Label `yaml:"summary_labels" mapstructure:"summary_labels"`
}

// SyncConfig configures the sync flow.
type SyncConfig struct {
	RequirePhone  bool   `yaml:"require_phone" mapstructure:"require_phone"`
	LinkContact   bool   `yaml:"link_contact" mapstructure:"link_contact"`
	OnLookupError string `yaml:"on_lookup_error" mapstructure:"on_lookup_error"`
}

// VKConfig configures the community messaging client.
type VKConfig struct {
	GroupToken  string  `yaml:"group_token" mapstructure:"group_token"`
	APIVersion  string  `yaml:"api_version" mapstructure:"api_version"`
	RateLimit   float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
	Header      string  `yaml:"header" mapstructure:"header"`
	ProjectsURL string  `yaml:"projects_url" mapstructure:"projects_url"`
	ReviewsURL  string  `yaml:"reviews_url" mapstructure:"reviews_url"`
	ErrorsURL   string  `yaml:"errors_url" mapstructure:"errors_url"`
}

// NotionConfig configures the Notion field table source.
type NotionConfig struct {
	Token   string `yaml:"token" mapstructure:"token"`
	FieldDB string `yaml:"field_db" mapstructure:"field_db"`
}

// StoreConfig configures the sync journal.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// MonitoringConfig configures journal health checks and alert delivery.
// Checks run inside serve when webhook_url is set and the journal is on.
type MonitoringConfig struct {
	WebhookURL               string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	CheckIntervalSecs        int     `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
	LookbackWindowHours      int     `yaml:"lookback_window_hours" mapstructure:"lookback_window_hours"`
	FailureRateThreshold     float64 `yaml:"failure_rate_threshold" mapstructure:"failure_rate_threshold"`
	MinSyncs                 int     `yaml:"min_syncs" mapstructure:"min_syncs"`
	UpstreamFailureThreshold int     `yaml:"upstream_failure_threshold" mapstructure:"upstream_failure_threshold"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from config.yaml (optional) and LEADSYNC_*
// environment variables.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix("LEADSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("bitrix.webhook_url", "")
	v.SetDefault("bitrix.rate_limit", 2.0)
	v.SetDefault("bitrix.timeout_secs", 30)
	v.SetDefault("bitrix.retry.max_attempts", 3)
	v.SetDefault("bitrix.retry.initial_backoff_ms", 500)
	v.SetDefault("bitrix.retry.max_backoff_ms", 10000)
	v.SetDefault("bitrix.circuit.failure_threshold", 5)
	v.SetDefault("bitrix.circuit.reset_timeout_secs", 30)
	v.SetDefault("mapping.dynamic", true)
	v.SetDefault("mapping.static_path", "")
	v.SetDefault("deal.title_prefix", "New lead from")
	v.SetDefault("deal.source_id", "WEB")
	v.SetDefault("deal.stage_id", "")
	v.SetDefault("deal.assigned_by_id", 0)
	v.SetDefault("deal.category_id", 0)
	v.SetDefault("deal.default_contact_name", "No name")
	v.SetDefault("sync.require_phone", true)
	v.SetDefault("sync.link_contact", false)
	v.SetDefault("sync.on_lookup_error", "abort")
	v.SetDefault("vk.group_token", "")
	v.SetDefault("vk.api_version", "5.199")
	v.SetDefault("vk.rate_limit", 20.0)
	v.SetDefault("notion.token", "")
	v.SetDefault("notion.field_db", "")
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "leadsync.db")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("monitoring.webhook_url", "")
	v.SetDefault("monitoring.check_interval_secs", 300)
	v.SetDefault("monitoring.lookback_window_hours", 24)
	v.SetDefault("monitoring.failure_rate_threshold", 0.2)
	v.SetDefault("monitoring.min_syncs", 5)
	v.SetDefault("monitoring.upstream_failure_threshold", 3)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	if path := v.ConfigFileUsed(); path != "" {
		static, err := readStaticMapping(path)
		if err != nil {
			return nil, err
		}
		if len(static) > 0 {
			cfg.Mapping.Static = static
		}
	}

	return &cfg, nil
}

// readStaticMapping reads mapping.static from the config file with its key
// case intact. Viper lowercases map keys, which breaks answer keys such as
// phoneE164.
func readStaticMapping(path string) (map[string]string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "config: read file")
	}
	var doc struct {
		Mapping struct {
			Static map[string]string `yaml:"static"`
		} `yaml:"mapping"`
	}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, eris.Wrap(err, "config: read mapping.static")
	}
	return doc.Mapping.Static, nil
}

// Validate checks the values a command needs. Modes: "sync" (CRM access),
// "serve" (CRM access and a port), "welcome" (VK token), "journal" (a
// store).
func (c *Config) Validate(mode string) error {
	var missing []string
	switch mode {
	case "sync":
		missing = c.requireSync(missing)
	case "serve":
		missing = c.requireSync(missing)
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			return eris.Errorf("config: server.port must be > 0 and <= 65535, got %d", c.Server.Port)
		}
	case "welcome":
		if c.VK.GroupToken == "" {
			missing = append(missing, "vk.group_token")
		}
	case "journal":
		if d := strings.ToLower(c.Store.Driver); d == "" || d == "none" {
			return eris.New("config: store.driver is disabled, the journal is unavailable")
		}
		if c.Store.DatabaseURL == "" {
			missing = append(missing, "store.database_url")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}
	if len(missing) > 0 {
		return eris.Errorf("config: missing required values: %s", strings.Join(missing, ", "))
	}
	return nil
}

func (c *Config) requireSync(missing []string) []string {
	if c.Bitrix.WebhookURL == "" {
		missing = append(missing, "bitrix.webhook_url")
	}
	switch strings.ToLower(c.Sync.OnLookupError) {
	case "", "abort", "create":
	default:
		missing = append(missing, "sync.on_lookup_error (abort|create)")
	}
	return missing
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
