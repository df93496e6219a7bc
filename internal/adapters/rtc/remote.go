package rtc

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
)

// RemoteTrack is one inbound track with running packet counters.
type RemoteTrack struct {
	Src *webrtc.TrackRemote

	packets atomic.Uint64
	bytes   atomic.Uint64
	lastSeq atomic.Uint32
}

func (t *RemoteTrack) Kind() webrtc.RTPCodecType { return t.Src.Kind() }
func (t *RemoteTrack) Packets() uint64           { return t.packets.Load() }
func (t *RemoteTrack) Bytes() uint64             { return t.bytes.Load() }

func (t *RemoteTrack) account(pkt *rtp.Packet) {
	t.packets.Add(1)
	t.bytes.Add(uint64(pkt.MarshalSize()))
	t.lastSeq.Store(uint32(pkt.SequenceNumber))
}

// loop reads RTP from the source until ctx ends or the track is gone.
func (t *RemoteTrack) loop(ctx context.Context, logger *zerolog.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		pkt, _, err := t.Src.ReadRTP()
		if err != nil {
			logger.Debug().Err(err).Str("track_id", t.Src.ID()).Msg("remote track ended")
			return
		}
		t.account(pkt)
	}
}

// RemoteStream is the media received from the peer.
type RemoteStream struct {
	ID string

	mu     sync.RWMutex
	tracks []*RemoteTrack
}

func newRemoteStream(id string) *RemoteStream {
	return &RemoteStream{ID: id}
}

func (s *RemoteStream) add(t *RemoteTrack) {
	s.mu.Lock()
	s.tracks = append(s.tracks, t)
	s.mu.Unlock()
}

func (s *RemoteStream) Tracks() []*RemoteTrack {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*RemoteTrack, len(s.tracks))
	copy(out, s.tracks)
	return out
}

// Track returns the first track of the given kind.
func (s *RemoteStream) Track(kind webrtc.RTPCodecType) *RemoteTrack {
	for _, t := range s.Tracks() {
		if t.Kind() == kind {
			return t
		}
	}
	return nil
}

func (s *RemoteStream) Packets() uint64 {
	var n uint64
	for _, t := range s.Tracks() {
		n += t.Packets()
	}
	return n
}
