package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. HELPDESK_DISCORD_TOKEN.
const EnvPrefix = "HELPDESK"

// Config is the top-level helpdesk configuration.
type Config struct {
	Discord   DiscordConfig   `mapstructure:"discord" json:"discord"`
	Store     StoreConfig     `mapstructure:"store" json:"store"`
	Desk      DeskConfig      `mapstructure:"desk" json:"desk"`
	Scheduler SchedulerConfig `mapstructure:"scheduler" json:"scheduler"`
	API       APIConfig       `mapstructure:"api" json:"api"`
	Notify    NotifyConfig    `mapstructure:"notify" json:"notify"`
}

// DiscordConfig holds bot credentials and the support channel.
type DiscordConfig struct {
	Token            string `mapstructure:"token" json:"token"`
	GuildID          string `mapstructure:"guild_id" json:"guild_id,omitempty"`
	SupportChannelID string `mapstructure:"support_channel_id" json:"support_channel_id"`
}

// StoreConfig holds ticket database settings.
type StoreConfig struct {
	Path string `mapstructure:"path" json:"path"`
}

// DeskConfig holds event handling settings.
type DeskConfig struct {
	GuardTTL              time.Duration `mapstructure:"guard_ttl" json:"guard_ttl"`
	ResolveArchiveDelay   time.Duration `mapstructure:"resolve_archive_delay" json:"resolve_archive_delay"`
	AutoCloseArchiveDelay time.Duration `mapstructure:"auto_close_archive_delay" json:"auto_close_archive_delay"`
	NoticeTTL             time.Duration `mapstructure:"notice_ttl" json:"notice_ttl"`
	AttachmentTimeout     time.Duration `mapstructure:"attachment_timeout" json:"attachment_timeout"`
	AttachmentMaxBytes    int64         `mapstructure:"attachment_max_bytes" json:"attachment_max_bytes"`
}

// SchedulerConfig holds stale-thread sweep thresholds.
type SchedulerConfig struct {
	Interval       time.Duration `mapstructure:"interval" json:"interval"`
	RemindAfter    time.Duration `mapstructure:"remind_after" json:"remind_after"`
	AutoCloseAfter time.Duration `mapstructure:"auto_close_after" json:"auto_close_after"`
}

// APIConfig holds admin API server settings. Port 0 disables the server.
type APIConfig struct {
	Host string `mapstructure:"host" json:"host"`
	Port int    `mapstructure:"port" json:"port"`
	Key  string `mapstructure:"api_key" json:"api_key"`
}

// NotifyConfig holds staff escalation settings.
type NotifyConfig struct {
	SlackWebhookURL string `mapstructure:"slack_webhook_url" json:"slack_webhook_url,omitempty"`
	WebhookURL      string `mapstructure:"webhook_url" json:"webhook_url,omitempty"`
	WebhookSecret   string `mapstructure:"webhook_secret" json:"webhook_secret,omitempty"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("discord.token", "")
	v.SetDefault("discord.guild_id", "")
	v.SetDefault("discord.support_channel_id", "")

	v.SetDefault("store.path", "/data/helpdesk.db")

	v.SetDefault("desk.guard_ttl", 60*time.Second)
	v.SetDefault("desk.resolve_archive_delay", 5*time.Second)
	v.SetDefault("desk.auto_close_archive_delay", 3*time.Second)
	v.SetDefault("desk.notice_ttl", 5*time.Second)
	v.SetDefault("desk.attachment_timeout", 10*time.Second)
	v.SetDefault("desk.attachment_max_bytes", 2<<20)

	v.SetDefault("scheduler.interval", time.Hour)
	v.SetDefault("scheduler.remind_after", 72*time.Hour)
	v.SetDefault("scheduler.auto_close_after", 120*time.Hour)

	v.SetDefault("api.host", "0.0.0.0")
	v.SetDefault("api.port", 8080)
	v.SetDefault("api.api_key", "")

	v.SetDefault("notify.slack_webhook_url", "")
	v.SetDefault("notify.webhook_url", "")
	v.SetDefault("notify.webhook_secret", "")
}

func newViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads configuration from a JSON or YAML file. Environment variables
// override file values.
func Load(path string) (*Config, error) {
	v := newViper()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return decode(v)
}

// LoadFromEnv builds the config from defaults and HELPDESK_ variables only.
func LoadFromEnv() (*Config, error) {
	return decode(newViper())
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks for required fields and coherent thresholds.
func (c *Config) Validate() error {
	var errs []string

	if c.Discord.Token == "" {
		errs = append(errs, "discord.token is required")
	}
	if c.Discord.SupportChannelID == "" {
		errs = append(errs, "discord.support_channel_id is required")
	}
	if c.Store.Path == "" {
		errs = append(errs, "store.path is required")
	}

	for _, d := range []struct {
		key string
		val time.Duration
	}{
		{"desk.guard_ttl", c.Desk.GuardTTL},
		{"scheduler.interval", c.Scheduler.Interval},
		{"scheduler.remind_after", c.Scheduler.RemindAfter},
		{"scheduler.auto_close_after", c.Scheduler.AutoCloseAfter},
	} {
		if d.val <= 0 {
			errs = append(errs, d.key+" must be positive")
		}
	}
	if c.Scheduler.Interval > 0 && c.Scheduler.Interval < time.Second {
		errs = append(errs, "scheduler.interval must be at least 1s")
	}
	if c.Scheduler.RemindAfter >= c.Scheduler.AutoCloseAfter {
		errs = append(errs, "scheduler.remind_after must be shorter than scheduler.auto_close_after")
	}
	if c.Desk.ResolveArchiveDelay < 0 || c.Desk.AutoCloseArchiveDelay < 0 {
		errs = append(errs, "desk archive delays must not be negative")
	}

	if c.API.Port < 0 || c.API.Port > 65535 {
		errs = append(errs, fmt.Sprintf("api.port %d is out of range", c.API.Port))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// APIAddr returns host:port for the admin API.
func (c *Config) APIAddr() string {
	return fmt.Sprintf("%s:%d", c.API.Host, c.API.Port)
}
