package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pion/webrtc/v4"
)

type ICEServer struct {
	URLs       []string `mapstructure:"urls" json:"urls"`
	Username   string   `mapstructure:"username" json:"username,omitempty"`
	Credential string   `mapstructure:"credential" json:"credential,omitempty"`
}

// ICEConfig is the relay descriptor set handed to clients. With TurnSecret
// set, TurnURLs get short-lived credentials minted per request.
type ICEConfig struct {
	Servers    []ICEServer   `mapstructure:"servers"`
	TurnSecret string        `mapstructure:"turn_secret"`
	TurnURLs   []string      `mapstructure:"turn_urls"`
	TurnTTL    time.Duration `mapstructure:"turn_ttl"`
}

// DefaultICEServers is the public STUN/TURN set the mobile client shipped with.
func DefaultICEServers() []ICEServer {
	return []ICEServer{
		{URLs: []string{"stun:stun.l.google.com:19302"}},
		{URLs: []string{"stun:stun1.l.google.com:19302"}},
		{URLs: []string{"stun:stun2.l.google.com:19302"}},
		{URLs: []string{"turn:openrelay.metered.ca:80"}, Username: "openrelayproject", Credential: "openrelayproject"},
		{URLs: []string{"turn:openrelay.metered.ca:443"}, Username: "openrelayproject", Credential: "openrelayproject"},
		{URLs: []string{"turn:openrelay.metered.ca:443?transport=tcp"}, Username: "openrelayproject", Credential: "openrelayproject"},
	}
}

func defaultICEServerMaps() []map[string]any {
	servers := DefaultICEServers()
	out := make([]map[string]any, 0, len(servers))
	for _, s := range servers {
		out = append(out, map[string]any{
			"urls":       s.URLs,
			"username":   s.Username,
			"credential": s.Credential,
		})
	}
	return out
}

// WebRTCServers validates the static servers and converts them to pion's type.
func (c ICEConfig) WebRTCServers() ([]webrtc.ICEServer, error) {
	return ToWebRTC(c.Servers)
}

func ToWebRTC(servers []ICEServer) ([]webrtc.ICEServer, error) {
	out := make([]webrtc.ICEServer, 0, len(servers))
	for i, s := range servers {
		urls := make([]string, 0, len(s.URLs))
		for _, u := range s.URLs {
			if u = strings.TrimSpace(u); u != "" {
				urls = append(urls, u)
			}
		}
		server := webrtc.ICEServer{URLs: urls, Username: strings.TrimSpace(s.Username)}
		if s.Credential != "" {
			server.Credential = s.Credential
		}
		if err := ValidateICEServer(server); err != nil {
			return nil, fmt.Errorf("servers[%d]: %w", i, err)
		}
		out = append(out, server)
	}
	return out, nil
}

// ValidateICEServer checks URL schemes and that TURN entries carry credentials.
func ValidateICEServer(server webrtc.ICEServer) error {
	if len(server.URLs) == 0 {
		return errors.New("missing urls")
	}
	needsCreds := false
	for _, u := range server.URLs {
		switch {
		case strings.HasPrefix(u, "stun:"), strings.HasPrefix(u, "stuns:"):
		case strings.HasPrefix(u, "turn:"), strings.HasPrefix(u, "turns:"):
			needsCreds = true
		default:
			return fmt.Errorf("unsupported url scheme: %q", u)
		}
	}
	if !needsCreds {
		return nil
	}
	if server.Username == "" {
		return errors.New("turn urls require username")
	}
	if cred, ok := server.Credential.(string); !ok || strings.TrimSpace(cred) == "" {
		return errors.New("turn urls require credential")
	}
	return nil
}
