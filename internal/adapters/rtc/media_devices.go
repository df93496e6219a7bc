//go:build mediadevices

package rtc

import (
	"context"
	"fmt"
	"sync"

	"github.com/pion/mediadevices"
	"github.com/pion/mediadevices/pkg/codec/opus"
	"github.com/pion/mediadevices/pkg/codec/vpx"
	_ "github.com/pion/mediadevices/pkg/driver/camera"
	_ "github.com/pion/mediadevices/pkg/driver/microphone"
	"github.com/pion/mediadevices/pkg/frame"
	"github.com/pion/mediadevices/pkg/prop"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

// CaptureDevice reads the host camera and microphone via pion/mediadevices.
type CaptureDevice struct {
	selector *mediadevices.CodecSelector

	mu     sync.Mutex
	camera string
}

func NewCaptureDevice() (*CaptureDevice, error) {
	vpxParams, err := vpx.NewVP8Params()
	if err != nil {
		return nil, err
	}
	vpxParams.BitRate = 1_000_000

	opusParams, err := opus.NewParams()
	if err != nil {
		return nil, err
	}

	return &CaptureDevice{
		selector: mediadevices.NewCodecSelector(
			mediadevices.WithVideoEncoders(&vpxParams),
			mediadevices.WithAudioEncoders(&opusParams),
		),
	}, nil
}

func (d *CaptureDevice) Populate(me *webrtc.MediaEngine) error {
	d.selector.Populate(me)
	return nil
}

func (d *CaptureDevice) Capture(ctx context.Context, wantVideo bool) ([]Source, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	constraints := mediadevices.MediaStreamConstraints{
		Codec: d.selector,
		Audio: func(_ *mediadevices.MediaTrackConstraints) {},
	}
	if wantVideo {
		cameras := videoInputs()
		if len(cameras) == 0 {
			return nil, fmt.Errorf("no camera found")
		}
		d.mu.Lock()
		d.camera = cameras[0]
		d.mu.Unlock()
		constraints.Video = videoConstraints(cameras[0])
	}

	stream, err := mediadevices.GetUserMedia(constraints)
	if err != nil {
		return nil, err
	}
	var srcs []Source
	for _, t := range stream.GetTracks() {
		srcs = append(srcs, &deviceSource{track: t})
	}
	return srcs, nil
}

func (d *CaptureDevice) NextCamera(ctx context.Context) (Source, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	cameras := videoInputs()
	if len(cameras) == 0 {
		return nil, ErrNoLocalTrack
	}

	d.mu.Lock()
	next := cameras[0]
	for i, id := range cameras {
		if id == d.camera {
			next = cameras[(i+1)%len(cameras)]
			break
		}
	}
	d.camera = next
	d.mu.Unlock()

	stream, err := mediadevices.GetUserMedia(mediadevices.MediaStreamConstraints{
		Codec: d.selector,
		Video: videoConstraints(next),
	})
	if err != nil {
		return nil, err
	}
	tracks := stream.GetVideoTracks()
	if len(tracks) == 0 {
		return nil, ErrNoLocalTrack
	}
	log.Info().Str("module", "rtc.media").Str("camera", next).Msg("camera switched")
	return &deviceSource{track: tracks[0]}, nil
}

func videoInputs() []string {
	var ids []string
	for _, dev := range mediadevices.EnumerateDevices() {
		if dev.Kind == mediadevices.VideoInput {
			ids = append(ids, dev.DeviceID)
		}
	}
	return ids
}

func videoConstraints(deviceID string) mediadevices.MediaOption {
	return func(c *mediadevices.MediaTrackConstraints) {
		c.DeviceID = prop.String(deviceID)
		c.FrameFormat = prop.FrameFormatOneOf{
			frame.FormatYUYV,
			frame.FormatI420,
			frame.FormatRGBA,
		}
		c.Width = prop.IntRanged{Max: 640}
		c.Height = prop.IntRanged{Max: 480}
	}
}

type deviceSource struct {
	track mediadevices.Track
	once  sync.Once
	err   error
}

func (s *deviceSource) Track() webrtc.TrackLocal  { return s.track }
func (s *deviceSource) Kind() webrtc.RTPCodecType { return s.track.Kind() }

func (s *deviceSource) Stop() error {
	s.once.Do(func() { s.err = s.track.Close() })
	return s.err
}
