package rtc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"

	"github.com/engaging-workplace/clarity/internal/observability"
	"github.com/engaging-workplace/clarity/internal/realtime"
	"github.com/engaging-workplace/clarity/internal/session"
)

// Options configures a Dialer.
type Options struct {
	BaseURL    string
	Model      string
	ICEServers []string
	HTTPClient *http.Client
	// DisconnectGrace is how long a disconnected link may take to recover
	// before the session is treated as closed. Zero means 5s.
	DisconnectGrace time.Duration

	// Source opens the participant audio for one session. Nil means silence.
	Source func() (AudioSource, error)
	// Sink opens the agent audio destination for one session. Nil discards.
	Sink func() (Sink, error)
}

// Dialer opens WebRTC sessions with the realtime vendor.
type Dialer struct {
	opts Options
	log  zerolog.Logger
}

func NewDialer(opts Options) *Dialer {
	if opts.BaseURL == "" {
		opts.BaseURL = "https://api.openai.com"
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if opts.DisconnectGrace <= 0 {
		opts.DisconnectGrace = 5 * time.Second
	}
	if opts.Source == nil {
		opts.Source = func() (AudioSource, error) { return SilenceSource{}, nil }
	}
	if opts.Sink == nil {
		opts.Sink = func() (Sink, error) { return DiscardSink{}, nil }
	}
	return &Dialer{opts: opts, log: observability.Component("rtc")}
}

func opusCapability() webrtc.RTPCodecCapability {
	return webrtc.RTPCodecCapability{
		MimeType:    webrtc.MimeTypeOpus,
		ClockRate:   opusClockRate,
		Channels:    opusChannels,
		SDPFmtpLine: "minptime=10;useinbandfec=1",
	}
}

func (d *Dialer) newPeerConnection() (*webrtc.PeerConnection, error) {
	mediaEngine := &webrtc.MediaEngine{}
	if err := mediaEngine.RegisterCodec(webrtc.RTPCodecParameters{
		RTPCodecCapability: opusCapability(),
		PayloadType:        111,
	}, webrtc.RTPCodecTypeAudio); err != nil {
		return nil, fmt.Errorf("register opus: %w", err)
	}

	var config webrtc.Configuration
	if len(d.opts.ICEServers) > 0 {
		config.ICEServers = []webrtc.ICEServer{{URLs: d.opts.ICEServers}}
	}
	api := webrtc.NewAPI(webrtc.WithMediaEngine(mediaEngine))
	return api.NewPeerConnection(config)
}

// Dial negotiates a peer connection using the ephemeral secret. It returns
// after the answer is applied; h.OnOpen fires when the event channel opens.
func (d *Dialer) Dial(ctx context.Context, secret string, h session.Handlers) (session.Transport, error) {
	source, err := d.opts.Source()
	if err != nil {
		return nil, fmt.Errorf("open audio source: %w", err)
	}
	sink, err := d.opts.Sink()
	if err != nil {
		_ = source.Close()
		return nil, fmt.Errorf("open audio sink: %w", err)
	}

	pc, err := d.newPeerConnection()
	if err != nil {
		_ = source.Close()
		_ = sink.Close()
		return nil, fmt.Errorf("create peer connection: %w", err)
	}

	pumpCtx, cancel := context.WithCancel(context.Background())
	t := &Transport{pc: pc, source: source, sink: sink, cancel: cancel, log: d.log}

	fail := func(err error) (session.Transport, error) {
		_ = t.Close()
		return nil, err
	}

	track, err := webrtc.NewTrackLocalStaticSample(opusCapability(), "audio", "clarity")
	if err != nil {
		return fail(fmt.Errorf("create audio track: %w", err))
	}
	sender, err := pc.AddTrack(track)
	if err != nil {
		return fail(fmt.Errorf("add audio track: %w", err))
	}
	go func() {
		buf := make([]byte, 1500)
		for {
			if _, _, err := sender.Read(buf); err != nil {
				return
			}
		}
	}()

	pc.OnTrack(func(remote *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		d.log.Debug().Str("codec", remote.Codec().MimeType).Msg("agent audio track received")
		go t.receive(remote)
	})
	t.link = newLinkMonitor(d.opts.DisconnectGrace, func() {
		if !t.closed.Load() && h.OnClose != nil {
			h.OnClose()
		}
	})
	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		d.log.Debug().Str("state", state.String()).Msg("peer connection state")
		t.link.observe(state)
	})

	dc, err := pc.CreateDataChannel(realtime.DataChannelLabel, nil)
	if err != nil {
		return fail(fmt.Errorf("create data channel: %w", err))
	}
	t.dc = dc
	dc.OnOpen(func() {
		go t.pump(pumpCtx, track)
		if h.OnOpen != nil {
			h.OnOpen()
		}
	})
	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		if h.OnMessage != nil {
			h.OnMessage(msg.Data)
		}
	})

	offer, err := pc.CreateOffer(nil)
	if err != nil {
		return fail(fmt.Errorf("create offer: %w", err))
	}
	gathered := webrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(offer); err != nil {
		return fail(fmt.Errorf("set local description: %w", err))
	}
	select {
	case <-gathered:
	case <-ctx.Done():
		return fail(fmt.Errorf("gather ice candidates: %w", ctx.Err()))
	}

	answer, err := exchangeSDP(ctx, d.opts.HTTPClient, d.opts.BaseURL, d.opts.Model, secret, pc.LocalDescription().SDP)
	if err != nil {
		return fail(err)
	}
	if err := pc.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: answer}); err != nil {
		return fail(fmt.Errorf("set remote description: %w", err))
	}
	return t, nil
}

// Transport is one negotiated peer connection.
type Transport struct {
	pc     *webrtc.PeerConnection
	dc     *webrtc.DataChannel
	source AudioSource
	sink   Sink
	cancel context.CancelFunc
	link   *linkMonitor
	log    zerolog.Logger

	muted     atomic.Bool
	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

func (t *Transport) Send(msg []byte) error {
	if t.closed.Load() || t.dc == nil {
		return errors.New("transport closed")
	}
	return t.dc.SendText(string(msg))
}

func (t *Transport) SetMuted(muted bool) {
	t.muted.Store(muted)
}

func (t *Transport) Close() error {
	t.closeOnce.Do(func() {
		t.closed.Store(true)
		t.cancel()
		if t.link != nil {
			t.link.stop()
		}

		var errs []error
		if t.dc != nil {
			if err := t.dc.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close data channel: %w", err))
			}
		}
		if err := t.pc.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close peer connection: %w", err))
		}
		if err := t.sink.Close(); err != nil {
			errs = append(errs, err)
		}
		if err := t.source.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close audio source: %w", err))
		}
		t.closeErr = errors.Join(errs...)
	})
	return t.closeErr
}

// receive forwards the agent's audio to the sink until the track ends.
// Packets are dropped while muted.
func (t *Transport) receive(remote *webrtc.TrackRemote) {
	for {
		pkt, _, err := remote.ReadRTP()
		if err != nil {
			return
		}
		if t.muted.Load() || t.closed.Load() {
			continue
		}
		if err := t.sink.WriteRTP(pkt); err != nil {
			t.log.Warn().Err(err).Msg("write agent audio")
		}
	}
}

// pump paces source samples onto the outbound track. An exhausted source
// is followed by silence so the session keeps a live input.
func (t *Transport) pump(ctx context.Context, track *webrtc.TrackLocalStaticSample) {
	var src AudioSource = t.source
	for {
		sample, err := src.ReadSample()
		if errors.Is(err, io.EOF) {
			t.log.Info().Msg("audio source exhausted; sending silence")
			src = SilenceSource{}
			continue
		}
		if err != nil {
			t.log.Warn().Err(err).Msg("read audio source")
			src = SilenceSource{}
			continue
		}
		if err := track.WriteSample(sample); err != nil {
			t.log.Debug().Err(err).Msg("write audio sample")
		}

		wait := sample.Duration
		if wait <= 0 {
			wait = frameDuration
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
	}
}
