package rtc

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/pion/webrtc/v4"
)

// Source is one captured local track. Stop releases the capture device.
type Source interface {
	Track() webrtc.TrackLocal
	Kind() webrtc.RTPCodecType
	Stop() error
}

// Device acquires local media and registers the codecs its tracks produce.
type Device interface {
	Capture(ctx context.Context, wantVideo bool) ([]Source, error)
	// NextCamera opens the capture device after the current one.
	NextCamera(ctx context.Context) (Source, error)
	Populate(me *webrtc.MediaEngine) error
}

type TrackState int32

const (
	TrackLive TrackState = iota
	TrackDisabled
	TrackStopped
)

// LocalTrack is one outgoing track and the sender carrying it.
type LocalTrack struct {
	mu     sync.Mutex
	src    Source
	sender *webrtc.RTPSender
	state  atomic.Int32 // Zero by default (TrackLive)
}

func newLocalTrack(src Source) *LocalTrack {
	return &LocalTrack{src: src}
}

func (t *LocalTrack) Kind() webrtc.RTPCodecType { return t.src.Kind() }

func (t *LocalTrack) State() TrackState {
	return TrackState(t.state.Load())
}

func (t *LocalTrack) Enabled() bool { return t.State() == TrackLive }

func (t *LocalTrack) bind(sender *webrtc.RTPSender) {
	t.mu.Lock()
	t.sender = sender
	t.mu.Unlock()
}

// setEnabled swaps the sender's track without renegotiation. A disabled
// track keeps its transceiver and sends nothing.
func (t *LocalTrack) setEnabled(on bool) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.State() == TrackStopped {
		return ErrClosed
	}
	if t.sender != nil {
		var next webrtc.TrackLocal
		if on {
			next = t.src.Track()
		}
		if err := t.sender.ReplaceTrack(next); err != nil {
			return err
		}
	}
	if on {
		t.state.Store(int32(TrackLive))
	} else {
		t.state.Store(int32(TrackDisabled))
	}
	return nil
}

// replace moves the sender onto src and stops the previous source.
func (t *LocalTrack) replace(src Source) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.State() == TrackStopped {
		_ = src.Stop()
		return ErrClosed
	}
	if t.sender != nil && t.State() == TrackLive {
		if err := t.sender.ReplaceTrack(src.Track()); err != nil {
			_ = src.Stop()
			return err
		}
	}
	old := t.src
	t.src = src
	return old.Stop()
}

func (t *LocalTrack) stop() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.State() == TrackStopped {
		return nil
	}
	t.state.Store(int32(TrackStopped))
	return t.src.Stop()
}

// LocalMedia is the handle returned by StartLocalMedia.
type LocalMedia struct {
	Audio *LocalTrack
	Video *LocalTrack
}

func newLocalMedia(srcs []Source) *LocalMedia {
	m := &LocalMedia{}
	for _, s := range srcs {
		switch s.Kind() {
		case webrtc.RTPCodecTypeAudio:
			if m.Audio == nil {
				m.Audio = newLocalTrack(s)
				continue
			}
		case webrtc.RTPCodecTypeVideo:
			if m.Video == nil {
				m.Video = newLocalTrack(s)
				continue
			}
		}
		_ = s.Stop()
	}
	return m
}

func (m *LocalMedia) HasVideo() bool { return m != nil && m.Video != nil }

func (m *LocalMedia) tracks() []*LocalTrack {
	if m == nil {
		return nil
	}
	var out []*LocalTrack
	if m.Audio != nil {
		out = append(out, m.Audio)
	}
	if m.Video != nil {
		out = append(out, m.Video)
	}
	return out
}

// Stop releases every capture source.
func (m *LocalMedia) Stop() error {
	if m == nil {
		return nil
	}
	var errs []error
	for _, t := range m.tracks() {
		if err := t.stop(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
