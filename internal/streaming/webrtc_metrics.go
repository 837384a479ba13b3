package streaming

import (
	"github.com/pion/rtcp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// WebRTC series are labelled by mount, not by pipeline stream id, so they
// survive pipeline restarts.
var (
	webrtcPacketsSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rtspcam",
		Subsystem: "webrtc",
		Name:      "rtp_packets_sent_total",
		Help:      "RTP packets forwarded to browsers",
	}, []string{"mount"})

	webrtcBytesSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rtspcam",
		Subsystem: "webrtc",
		Name:      "rtp_bytes_sent_total",
		Help:      "RTP bytes forwarded to browsers",
	}, []string{"mount"})

	webrtcFeedback = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rtspcam",
		Subsystem: "webrtc",
		Name:      "rtcp_feedback_total",
		Help:      "RTCP packets received from browsers by type",
	}, []string{"mount", "type"})

	webrtcLostPackets = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rtspcam",
		Subsystem: "webrtc",
		Name:      "nacked_packets_total",
		Help:      "Packets browsers reported lost via NACK",
	}, []string{"mount"})

	webrtcActivePeers = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "rtspcam",
		Subsystem: "webrtc",
		Name:      "active_peers",
		Help:      "Open WebRTC peer connections",
	})
)

func recordSent(mount string, bytes int) {
	webrtcPacketsSent.WithLabelValues(mount).Inc()
	webrtcBytesSent.WithLabelValues(mount).Add(float64(bytes))
}

// recordFeedback counts one RTCP packet from a browser.
func recordFeedback(mount string, pkt rtcp.Packet) {
	switch p := pkt.(type) {
	case *rtcp.TransportLayerNack:
		webrtcFeedback.WithLabelValues(mount, "nack").Inc()
		lost := 0
		for _, pair := range p.Nacks {
			lost += len(pair.PacketList())
		}
		webrtcLostPackets.WithLabelValues(mount).Add(float64(lost))
	case *rtcp.PictureLossIndication:
		webrtcFeedback.WithLabelValues(mount, "pli").Inc()
	case *rtcp.FullIntraRequest:
		webrtcFeedback.WithLabelValues(mount, "fir").Inc()
	case *rtcp.ReceiverReport:
		webrtcFeedback.WithLabelValues(mount, "rr").Inc()
	default:
		webrtcFeedback.WithLabelValues(mount, "other").Inc()
	}
}

func setActivePeers(count int) {
	webrtcActivePeers.Set(float64(count))
}
