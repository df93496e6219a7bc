package rtc

import (
	"context"
	"fmt"
)

func (e *Engine) SetAudioEnabled(on bool) error {
	m, err := e.localMedia()
	if err != nil {
		return err
	}
	if m.Audio == nil {
		return ErrNoLocalTrack
	}
	return m.Audio.setEnabled(on)
}

func (e *Engine) SetVideoEnabled(on bool) error {
	m, err := e.localMedia()
	if err != nil {
		return err
	}
	if m.Video == nil {
		return ErrNoLocalTrack
	}
	return m.Video.setEnabled(on)
}

// SwitchCamera moves the video sender onto the next capture device.
func (e *Engine) SwitchCamera(ctx context.Context) error {
	m, err := e.localMedia()
	if err != nil {
		return err
	}
	if m.Video == nil {
		return ErrNoLocalTrack
	}
	src, err := e.device.NextCamera(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMediaAcquisition, err)
	}
	if err := m.Video.replace(src); err != nil {
		return err
	}
	e.logger.Info().Str("track_id", src.Track().ID()).Msg("camera switched")
	return nil
}

func (e *Engine) localMedia() (*LocalMedia, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == StateClosed {
		return nil, ErrClosed
	}
	if e.media == nil {
		return nil, ErrNoLocalTrack
	}
	return e.media, nil
}
