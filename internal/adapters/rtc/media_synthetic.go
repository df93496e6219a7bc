package rtc

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
)

var (
	opusSilence = []byte{0xf8, 0xff, 0xfe}
	vp8Filler   = []byte{0x10, 0x02, 0x00, 0x9d, 0x01, 0x2a, 0x10, 0x00, 0x10, 0x00, 0x00, 0x47, 0x08, 0x85, 0x85, 0x88}
)

const (
	audioFrame = 20 * time.Millisecond
	videoFrame = 33 * time.Millisecond
)

// SyntheticDevice produces opus silence and VP8 filler frames. It stands in
// for a camera and microphone on headless hosts.
type SyntheticDevice struct {
	StreamID string
	cameras  atomic.Int32
}

func NewSyntheticDevice() *SyntheticDevice {
	return &SyntheticDevice{StreamID: "local-" + uuid.NewString()[:8]}
}

func (d *SyntheticDevice) Populate(me *webrtc.MediaEngine) error {
	return me.RegisterDefaultCodecs()
}

func (d *SyntheticDevice) Capture(ctx context.Context, wantVideo bool) ([]Source, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	audio, err := newSyntheticSource(webrtc.RTPCodecCapability{
		MimeType:  webrtc.MimeTypeOpus,
		ClockRate: 48000,
		Channels:  2,
	}, "audio", d.StreamID, opusSilence, audioFrame)
	if err != nil {
		return nil, err
	}
	srcs := []Source{audio}
	if wantVideo {
		video, err := d.NextCamera(ctx)
		if err != nil {
			_ = audio.Stop()
			return nil, err
		}
		srcs = append(srcs, video)
	}
	return srcs, nil
}

func (d *SyntheticDevice) NextCamera(ctx context.Context) (Source, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	n := d.cameras.Add(1)
	return newSyntheticSource(webrtc.RTPCodecCapability{
		MimeType:  webrtc.MimeTypeVP8,
		ClockRate: 90000,
	}, fmt.Sprintf("video-%d", n), d.StreamID, vp8Filler, videoFrame)
}

type syntheticSource struct {
	track    *webrtc.TrackLocalStaticSample
	cancel   context.CancelFunc
	done     chan struct{}
	stopOnce sync.Once
}

func newSyntheticSource(codec webrtc.RTPCodecCapability, id, streamID string, frame []byte, every time.Duration) (*syntheticSource, error) {
	track, err := webrtc.NewTrackLocalStaticSample(codec, id, streamID)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &syntheticSource{track: track, cancel: cancel, done: make(chan struct{})}
	go s.pump(ctx, frame, every)
	return s, nil
}

func (s *syntheticSource) pump(ctx context.Context, frame []byte, every time.Duration) {
	defer close(s.done)
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// Writes before the track is bound are discarded by pion.
			_ = s.track.WriteSample(media.Sample{Data: frame, Duration: every})
		}
	}
}

func (s *syntheticSource) Track() webrtc.TrackLocal  { return s.track }
func (s *syntheticSource) Kind() webrtc.RTPCodecType { return s.track.Kind() }

func (s *syntheticSource) Stop() error {
	s.stopOnce.Do(func() {
		s.cancel()
		<-s.done
	})
	return nil
}
