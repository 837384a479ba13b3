package streaming

import (
	"github.com/pion/interceptor"
	"github.com/pion/interceptor/pkg/nack"
	"github.com/pion/interceptor/pkg/report"
	"github.com/pion/interceptor/pkg/stats"
	"github.com/pion/interceptor/pkg/twcc"
	"github.com/pion/rtcp"
	pion "github.com/pion/webrtc/v4"
)

// NACKBufferSize is the number of sent packets kept for retransmission.
const NACKBufferSize = 8192

// SRTPReplayProtectionWindow must be at least NACKBufferSize.
const SRTPReplayProtectionWindow = 10000

// h264Profiles are the profile-level-ids offered to browsers, the encoder's
// own High 4.2 first. Packets are forwarded without transcoding, so the
// others only widen what a browser may accept during negotiation.
var h264Profiles = []string{"64002a", "640028", "64001f", "42e01f"}

// NewWebRTCAPI creates a pion API for viewers of mount whose interceptors
// count RTCP feedback per mount.
func NewWebRTCAPI(mount string) (*pion.API, error) {
	m := &pion.MediaEngine{}
	if err := registerCodecs(m); err != nil {
		return nil, err
	}

	i := &interceptor.Registry{}
	if err := configureInterceptors(m, i); err != nil {
		return nil, err
	}
	i.Add(&feedbackInterceptorFactory{mount: mount})

	s := pion.SettingEngine{}
	s.SetDTLSInsecureSkipHelloVerify(true)
	s.SetSRTPReplayProtectionWindow(SRTPReplayProtectionWindow)

	return pion.NewAPI(
		pion.WithMediaEngine(m),
		pion.WithInterceptorRegistry(i),
		pion.WithSettingEngine(s),
	), nil
}

// registerCodecs registers H.264 only: the camera has no audio.
func registerCodecs(m *pion.MediaEngine) error {
	feedback := []pion.RTCPFeedback{
		{Type: "goog-remb"},
		{Type: "ccm", Parameter: "fir"},
		{Type: "nack"},
		{Type: "nack", Parameter: "pli"},
	}
	for i, profile := range h264Profiles {
		codec := pion.RTPCodecParameters{
			RTPCodecCapability: pion.RTPCodecCapability{
				MimeType:     pion.MimeTypeH264,
				ClockRate:    90000,
				SDPFmtpLine:  "level-asymmetry-allowed=1;packetization-mode=1;profile-level-id=" + profile,
				RTCPFeedback: feedback,
			},
			PayloadType: pion.PayloadType(96 + i),
		}
		if err := m.RegisterCodec(codec, pion.RTPCodecTypeVideo); err != nil {
			return err
		}
	}
	return nil
}

// configureInterceptors sets up NACK, RTCP reports, and TWCC with optimized
// buffer sizes for high-bitrate streaming.
func configureInterceptors(m *pion.MediaEngine, i *interceptor.Registry) error {
	// NACK generator (for requesting retransmissions)
	generator, err := nack.NewGeneratorInterceptor()
	if err != nil {
		return err
	}

	// NACK responder with large buffer for high-bitrate streams
	responder, err := nack.NewResponderInterceptor(
		nack.ResponderSize(NACKBufferSize),
	)
	if err != nil {
		return err
	}

	m.RegisterFeedback(pion.RTCPFeedback{Type: "nack"}, pion.RTPCodecTypeVideo)
	m.RegisterFeedback(pion.RTCPFeedback{Type: "nack", Parameter: "pli"}, pion.RTPCodecTypeVideo)
	i.Add(responder)
	i.Add(generator)

	// RTCP sender/receiver reports
	receiver, err := report.NewReceiverInterceptor()
	if err != nil {
		return err
	}
	sender, err := report.NewSenderInterceptor()
	if err != nil {
		return err
	}
	i.Add(receiver)
	i.Add(sender)

	// Stats interceptor
	statsInterceptor, err := stats.NewInterceptor()
	if err != nil {
		return err
	}
	i.Add(statsInterceptor)

	// TWCC for congestion control
	m.RegisterFeedback(pion.RTCPFeedback{Type: pion.TypeRTCPFBTransportCC}, pion.RTPCodecTypeVideo)

	twccGenerator, err := twcc.NewSenderInterceptor()
	if err != nil {
		return err
	}
	i.Add(twccGenerator)

	return nil
}

type feedbackInterceptorFactory struct {
	mount string
}

func (f *feedbackInterceptorFactory) NewInterceptor(_ string) (interceptor.Interceptor, error) {
	return &feedbackInterceptor{mount: f.mount}, nil
}

// feedbackInterceptor counts the RTCP a browser sends back.
type feedbackInterceptor struct {
	interceptor.NoOp
	mount string
}

func (r *feedbackInterceptor) BindRTCPReader(reader interceptor.RTCPReader) interceptor.RTCPReader {
	return interceptor.RTCPReaderFunc(func(b []byte, a interceptor.Attributes) (int, interceptor.Attributes, error) {
		n, attr, err := reader.Read(b, a)
		if err != nil {
			return n, attr, err
		}
		if packets, parseErr := rtcp.Unmarshal(b[:n]); parseErr == nil {
			for _, pkt := range packets {
				recordFeedback(r.mount, pkt)
			}
		}
		return n, attr, nil
	})
}
