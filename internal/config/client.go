package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Client is the configuration of the headless call client.
type Client struct {
	Server            string        `mapstructure:"server"`
	ID                string        `mapstructure:"id"`
	Name              string        `mapstructure:"name"`
	Video             bool          `mapstructure:"video"`
	PushToken         string        `mapstructure:"push_token"`
	ReconnectAttempts int           `mapstructure:"reconnect_attempts"`
	ReconnectDelay    time.Duration `mapstructure:"reconnect_delay"`
	DisconnectGrace   time.Duration `mapstructure:"disconnect_grace"`
	MaxRestarts       int           `mapstructure:"max_restarts"`
	RestartTimeout    time.Duration `mapstructure:"restart_timeout"`
	ICEServers        []ICEServer   `mapstructure:"ice_servers"`
}

func SetClientDefaults(v *viper.Viper) {
	v.SetDefault("server", "ws://localhost:8080/api/ws/signal")
	v.SetDefault("video", false)
	v.SetDefault("reconnect_attempts", 5)
	v.SetDefault("reconnect_delay", "1s")
	v.SetDefault("disconnect_grace", "3s")
	v.SetDefault("max_restarts", 3)
	v.SetDefault("restart_timeout", "10s")
	v.SetDefault("ice_servers", defaultICEServerMaps())
}

func LoadClient(v *viper.Viper) (*Client, error) {
	var c Client
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("failed to parse client config: %w", err)
	}
	if c.Server == "" {
		return nil, errors.New("server url is required")
	}
	if c.ID == "" {
		return nil, errors.New("identity id is required")
	}
	if c.Name == "" {
		c.Name = c.ID
	}
	if _, err := ToWebRTC(c.ICEServers); err != nil {
		return nil, fmt.Errorf("ice_servers: %w", err)
	}
	return &c, nil
}
