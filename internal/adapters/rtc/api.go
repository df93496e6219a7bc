package rtc

import (
	"time"

	"github.com/pion/interceptor"
	"github.com/pion/webrtc/v4"
)

// Config binds an engine to its relay descriptors and recovery policy.
type Config struct {
	ICEServers      []webrtc.ICEServer
	DisconnectGrace time.Duration
	MaxRestarts     int
	// RestartTimeout bounds one restart attempt; an attempt that has not
	// reconnected by then counts as failed.
	RestartTimeout  time.Duration

	// ICE agent timeouts; zero keeps the defaults below.
	ICEDisconnectedTimeout time.Duration
	ICEFailedTimeout       time.Duration
	ICEKeepalive           time.Duration
}

func DefaultConfig() Config {
	return Config{
		ICEServers: []webrtc.ICEServer{
			{URLs: []string{"stun:stun.l.google.com:19302"}},
		},
		DisconnectGrace: 3 * time.Second,
		MaxRestarts:     3,
		RestartTimeout:  10 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	if c.DisconnectGrace <= 0 {
		c.DisconnectGrace = 3 * time.Second
	}
	if c.RestartTimeout <= 0 {
		c.RestartTimeout = 10 * time.Second
	}
	if c.MaxRestarts < 0 {
		c.MaxRestarts = 0
	}
	if c.ICEDisconnectedTimeout <= 0 {
		c.ICEDisconnectedTimeout = 5 * time.Second
	}
	if c.ICEFailedTimeout <= 0 {
		c.ICEFailedTimeout = 25 * time.Second
	}
	if c.ICEKeepalive <= 0 {
		c.ICEKeepalive = 2 * time.Second
	}
	return c
}

// newAPI builds the pion API with the device's codecs and the default
// interceptors (NACK, RTCP reports, TWCC).
func newAPI(cfg Config, dev Device) (*webrtc.API, error) {
	mediaEngine := &webrtc.MediaEngine{}
	if err := dev.Populate(mediaEngine); err != nil {
		return nil, err
	}

	interceptorRegistry := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(mediaEngine, interceptorRegistry); err != nil {
		return nil, err
	}

	se := webrtc.SettingEngine{}
	se.SetICETimeouts(cfg.ICEDisconnectedTimeout, cfg.ICEFailedTimeout, cfg.ICEKeepalive)

	return webrtc.NewAPI(
		webrtc.WithMediaEngine(mediaEngine),
		webrtc.WithInterceptorRegistry(interceptorRegistry),
		webrtc.WithSettingEngine(se),
	), nil
}
