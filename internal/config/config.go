package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type RateConfig struct {
	MessagesPerSecond float64 `mapstructure:"messages_per_second"`
	Burst             int     `mapstructure:"burst"`
}

type PushConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	Endpoint    string        `mapstructure:"endpoint"`
	AccessToken string        `mapstructure:"access_token"`
	Timeout     time.Duration `mapstructure:"timeout"`
	Workers     int           `mapstructure:"workers"`
	QueueSize   int           `mapstructure:"queue_size"`
}

type CallLogConfig struct {
	Driver   string `mapstructure:"driver"`
	Path     string `mapstructure:"path"`
	Capacity int    `mapstructure:"capacity"`
}

type Config struct {
	Mode        string        `mapstructure:"mode"`
	Port        int           `mapstructure:"port"`
	LogLevel    string        `mapstructure:"log_level"`
	Secret      string        `mapstructure:"secret"`
	ReadLimit   int64         `mapstructure:"read_limit"`
	PingPeriod  time.Duration `mapstructure:"ping_period"`
	PongWait    time.Duration `mapstructure:"pong_wait"`
	SendBuffer  int           `mapstructure:"send_buffer"`
	RingTimeout time.Duration `mapstructure:"ring_timeout"`

	// Backpressure is kick or drop.
	Backpressure string `mapstructure:"backpressure"`

	Rate    RateConfig    `mapstructure:"rate"`
	ICE     ICEConfig     `mapstructure:"ice"`
	Push    PushConfig    `mapstructure:"push"`
	CallLog CallLogConfig `mapstructure:"calllog"`
}

func setServerDefaults(v *viper.Viper) {
	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("log_level", "info")
	v.SetDefault("secret", "change-me")
	v.SetDefault("read_limit", 65536)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("pong_wait", "60s")
	v.SetDefault("send_buffer", 32)
	v.SetDefault("ring_timeout", "45s")
	v.SetDefault("backpressure", "kick")

	v.SetDefault("rate.messages_per_second", 20.0)
	v.SetDefault("rate.burst", 40)

	v.SetDefault("ice.servers", defaultICEServerMaps())
	v.SetDefault("ice.turn_secret", "")
	v.SetDefault("ice.turn_urls", []string{})
	v.SetDefault("ice.turn_ttl", "12h")

	v.SetDefault("push.enabled", false)
	v.SetDefault("push.endpoint", "https://exp.host/--/api/v2/push/send")
	v.SetDefault("push.access_token", "")
	v.SetDefault("push.timeout", "10s")
	v.SetDefault("push.workers", 4)
	v.SetDefault("push.queue_size", 256)

	v.SetDefault("calllog.driver", "memory")
	v.SetDefault("calllog.path", "calls.db")
	v.SetDefault("calllog.capacity", 500)
}

// Load reads config/config.<CONFIG_ENV>.yaml (dev by default). Missing files
// fall back to defaults; CALL_* environment variables override both.
func Load() (*Config, error) {
	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	return LoadFile(fmt.Sprintf("config/config.%s.yaml", env))
}

func LoadFile(fileName string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetConfigFile(fileName)
	v.SetEnvPrefix("CALL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setServerDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log.Info().Str("module", "config").Str("mode", cfg.Mode).Int("port", cfg.Port).Str("calllog", cfg.CallLog.Driver).
		Bool("push", cfg.Push.Enabled).Msg("config ready")
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("port out of range: %d", c.Port)
	}
	if c.SendBuffer < 1 {
		return fmt.Errorf("send_buffer must be positive: %d", c.SendBuffer)
	}
	if c.PongWait <= c.PingPeriod {
		return fmt.Errorf("pong_wait (%s) must exceed ping_period (%s)", c.PongWait, c.PingPeriod)
	}
	switch c.Backpressure {
	case "", "kick", "drop":
	default:
		return fmt.Errorf("unknown backpressure policy %q", c.Backpressure)
	}
	switch c.CallLog.Driver {
	case "memory", "sqlite":
	default:
		return fmt.Errorf("unknown calllog driver %q", c.CallLog.Driver)
	}
	if _, err := c.ICE.WebRTCServers(); err != nil {
		return fmt.Errorf("ice: %w", err)
	}
	return nil
}
