package commands

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/mmutlucod/realtime-call-app/internal/adapters/rtc"
	"github.com/mmutlucod/realtime-call-app/internal/adapters/wsclient"
	"github.com/mmutlucod/realtime-call-app/internal/app/phone"
	"github.com/mmutlucod/realtime-call-app/internal/config"
)

// session is one signed-in client: the signaling connection and the phone
// driving it.
type session struct {
	sig   *wsclient.Client
	phone *phone.Phone
}

func engineConfig(c *config.Client) (rtc.Config, error) {
	servers, err := config.ToWebRTC(c.ICEServers)
	if err != nil {
		return rtc.Config{}, err
	}
	return rtc.Config{
		ICEServers:      servers,
		DisconnectGrace: c.DisconnectGrace,
		MaxRestarts:     c.MaxRestarts,
		RestartTimeout:  c.RestartTimeout,
	}, nil
}

func openSession(ctx context.Context, c *config.Client) (*session, error) {
	ec, err := engineConfig(c)
	if err != nil {
		return nil, err
	}
	dev, err := newDevice()
	if err != nil {
		return nil, err
	}

	sig := wsclient.New(wsclient.Options{
		URL:               c.Server,
		ReconnectAttempts: c.ReconnectAttempts,
		ReconnectDelay:    c.ReconnectDelay,
	})
	p, err := phone.New(phone.Options{ID: c.ID, Name: c.Name, PushToken: c.PushToken}, sig, func() (*rtc.Engine, error) {
		return rtc.NewEngine(ec, dev)
	})
	if err != nil {
		return nil, err
	}
	sig.OnDisconnect(func(err error) {
		log.Warn().Str("module", "callctl").Err(err).Msg("signaling lost, reconnecting")
	})
	if err := sig.Connect(ctx); err != nil {
		p.Close()
		return nil, err
	}
	return &session{sig: sig, phone: p}, nil
}

func (s *session) Close() {
	s.phone.Close()
	_ = s.sig.Close()
}
