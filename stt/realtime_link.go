package stt

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	opuscodec "github.com/jj11hh/opus"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
)

// rtcSampleRate is fixed by the Opus track the peer expects.
const rtcSampleRate = 48000

// rtcLink is one WebRTC connection to the realtime transcription API:
// an outbound Opus audio track plus the oai-events data channel.
type rtcLink struct {
	broker *sessionBroker

	pc    *webrtc.PeerConnection
	dc    *webrtc.DataChannel
	track *webrtc.TrackLocalStaticSample
	enc   *opuscodec.Encoder

	events chan serverEvent
	errs   chan error

	mu     sync.Mutex
	closed bool
}

func newRTCLink(apiKey string) *rtcLink {
	return &rtcLink{
		broker: newSessionBroker(apiKey),
		events: make(chan serverEvent, 100),
		errs:   make(chan error, 1),
	}
}

// connect mints an ephemeral session and establishes the peer connection.
func (l *rtcLink) connect(ctx context.Context, language string) error {
	secret, err := l.broker.mint(ctx, language)
	if err != nil {
		return fmt.Errorf("mint session: %w", err)
	}
	slog.Debug("realtime session minted", "expires", time.Unix(secret.expiresAt, 0))

	mediaEngine := &webrtc.MediaEngine{}
	if err := mediaEngine.RegisterDefaultCodecs(); err != nil {
		return fmt.Errorf("register codecs: %w", err)
	}
	api := webrtc.NewAPI(webrtc.WithMediaEngine(mediaEngine))

	pc, err := api.NewPeerConnection(webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{
			{URLs: []string{"stun:stun.l.google.com:19302"}},
		},
	})
	if err != nil {
		return fmt.Errorf("create peer connection: %w", err)
	}
	l.pc = pc

	// The track must exist before the offer so it lands in the SDP.
	// Opus over WebRTC is 48kHz stereo.
	track, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{
			MimeType:  webrtc.MimeTypeOpus,
			ClockRate: rtcSampleRate,
			Channels:  2,
		},
		"audio",
		"voxtype-audio",
	)
	if err != nil {
		return fmt.Errorf("create audio track: %w", err)
	}
	l.track = track

	if _, err := pc.AddTrack(track); err != nil {
		return fmt.Errorf("add audio track: %w", err)
	}

	enc, err := opuscodec.NewEncoder(rtcSampleRate, 2, opuscodec.AppVoIP)
	if err != nil {
		return fmt.Errorf("create opus encoder: %w", err)
	}
	l.enc = enc

	dc, err := pc.CreateDataChannel("oai-events", nil)
	if err != nil {
		return fmt.Errorf("create data channel: %w", err)
	}
	l.dc = dc

	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		var ev serverEvent
		if err := json.Unmarshal(msg.Data, &ev); err != nil {
			slog.Error("unmarshal realtime event", "error", err)
			return
		}
		select {
		case l.events <- ev:
		case <-time.After(100 * time.Millisecond):
			slog.Warn("event channel full, dropping", "type", ev.Type)
		}
	})

	// The session may answer with an audio track; drain and discard it,
	// only the data channel text matters here.
	pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		go func() {
			for {
				if _, _, err := track.ReadRTP(); err != nil {
					return
				}
			}
		}()
	})

	pc.OnICEConnectionStateChange(func(state webrtc.ICEConnectionState) {
		slog.Debug("ICE connection state", "state", state.String())
		if state == webrtc.ICEConnectionStateFailed || state == webrtc.ICEConnectionStateClosed {
			select {
			case l.errs <- fmt.Errorf("ICE connection %s", state.String()):
			default:
			}
		}
	})

	offer, err := pc.CreateOffer(nil)
	if err != nil {
		return fmt.Errorf("create offer: %w", err)
	}
	if err := pc.SetLocalDescription(offer); err != nil {
		return fmt.Errorf("set local description: %w", err)
	}

	// Wait for ICE gathering so candidates are part of the offer.
	<-webrtc.GatheringCompletePromise(pc)

	answerSDP, err := l.broker.exchangeSDP(ctx, pc.LocalDescription().SDP, secret)
	if err != nil {
		return fmt.Errorf("exchange SDP: %w", err)
	}

	answer := webrtc.SessionDescription{
		Type: webrtc.SDPTypeAnswer,
		SDP:  answerSDP,
	}
	if err := pc.SetRemoteDescription(answer); err != nil {
		return fmt.Errorf("set remote description: %w", err)
	}

	slog.Debug("realtime connection established")
	return nil
}

// send marshals a control event onto the data channel.
func (l *rtcLink) send(event any) error {
	l.mu.Lock()
	dc := l.dc
	l.mu.Unlock()

	if dc == nil {
		return fmt.Errorf("data channel not initialized")
	}
	if state := dc.ReadyState(); state != webrtc.DataChannelStateOpen {
		return fmt.Errorf("data channel not ready: %s", state.String())
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	return dc.Send(data)
}

// sendAudio encodes mono 48kHz samples to Opus and writes them to the
// outbound track.
func (l *rtcLink) sendAudio(samples []float32) error {
	l.mu.Lock()
	track, enc := l.track, l.enc
	l.mu.Unlock()

	if track == nil || enc == nil {
		return fmt.Errorf("audio track not ready")
	}

	// Duplicate mono into both channels.
	stereo := make([]float32, len(samples)*2)
	for i, s := range samples {
		stereo[i*2] = s
		stereo[i*2+1] = s
	}

	// 1275 bytes is the maximum Opus frame payload.
	packet := make([]byte, 1275)
	n, err := enc.EncodeFloat32(stereo, packet)
	if err != nil {
		return fmt.Errorf("opus encode: %w", err)
	}

	return track.WriteSample(media.Sample{
		Data:     packet[:n],
		Duration: time.Duration(len(samples)) * time.Second / rtcSampleRate,
	})
}

func (l *rtcLink) close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil
	}
	l.closed = true

	if l.dc != nil {
		_ = l.dc.Close()
	}
	if l.pc != nil {
		return l.pc.Close()
	}
	return nil
}
