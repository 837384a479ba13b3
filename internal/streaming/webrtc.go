package streaming

import (
	"context"
	"log/slog"
	"sync"

	"github.com/AlexxIT/go2rtc/pkg/core"
	"github.com/AlexxIT/go2rtc/pkg/webrtc"
	pion "github.com/pion/webrtc/v4"
)

// WebRTCConfig holds configuration for WebRTC connections.
type WebRTCConfig struct {
	// ICEServers for STUN/TURN (empty for LAN-only)
	ICEServers []pion.ICEServer
}

// WebRTCManager manages WebRTC peer connections. Each peer is a session
// on the same shared media RTSP viewers use.
type WebRTCManager struct {
	sessions    *Sessions
	config      WebRTCConfig
	peers       map[string]*webrtc.Conn
	streamPeers map[string]map[string]bool // streamID -> set of peerIDs
	mu          sync.RWMutex
	logger      *slog.Logger
}

// NewWebRTCManager creates a new WebRTC manager.
func NewWebRTCManager(sessions *Sessions, config WebRTCConfig, logger *slog.Logger) *WebRTCManager {
	m := &WebRTCManager{
		sessions:    sessions,
		config:      config,
		peers:       make(map[string]*webrtc.Conn),
		streamPeers: make(map[string]map[string]bool),
		logger:      logger,
	}
	sessions.Hub().SetOnProducerReplaced(m.CloseStreamConsumers)
	return m
}

// CreateConsumer attaches a browser to mount. It takes the SDP offer and
// returns the SDP answer.
func (m *WebRTCManager) CreateConsumer(ctx context.Context, mount, offer, remote string) (string, error) {
	sess, err := m.sessions.Open(ctx, mount, "webrtc", remote)
	if err != nil {
		return "", err
	}
	streamID := sess.StreamID()

	api, err := NewWebRTCAPI(sess.Mount)
	if err != nil {
		sess.Close()
		return "", err
	}

	pc, err := api.NewPeerConnection(pion.Configuration{
		ICEServers: m.config.ICEServers,
	})
	if err != nil {
		sess.Close()
		return "", err
	}

	conn := webrtc.NewConn(pc)
	conn.Mode = core.ModePassiveConsumer

	fail := func(err error) (string, error) {
		_ = pc.Close()
		sess.Close()
		return "", err
	}

	if err := conn.SetOffer(offer); err != nil {
		return fail(err)
	}
	if err := sess.Wire(conn); err != nil {
		return fail(err)
	}

	answer, err := conn.GetCompleteAnswer(nil, nil)
	if err != nil {
		_ = conn.Stop()
		return fail(err)
	}

	peerID := sess.ID
	m.mu.Lock()
	m.peers[peerID] = conn
	if m.streamPeers[streamID] == nil {
		m.streamPeers[streamID] = make(map[string]bool)
	}
	m.streamPeers[streamID][peerID] = true
	peerCount := len(m.peers)
	m.mu.Unlock()

	setActivePeers(peerCount)
	m.logger.Debug("WebRTC consumer created", "mount", sess.Mount, "stream_id", streamID, "peer_id", peerID, "total_peers", peerCount)

	conn.Listen(func(msg any) {
		state, ok := msg.(pion.PeerConnectionState)
		if !ok {
			return
		}
		switch state {
		case pion.PeerConnectionStateConnected:
			// RTCP must be drained for the interceptors to see NACK/PLI.
			for _, sender := range pc.GetSenders() {
				go func(s *pion.RTPSender) {
					for {
						if _, _, readErr := s.ReadRTCP(); readErr != nil {
							return
						}
					}
				}(sender)
			}
		case pion.PeerConnectionStateDisconnected,
			pion.PeerConnectionStateFailed,
			pion.PeerConnectionStateClosed:
			_ = conn.Stop()
			m.mu.Lock()
			delete(m.peers, peerID)
			if m.streamPeers[streamID] != nil {
				delete(m.streamPeers[streamID], peerID)
				if len(m.streamPeers[streamID]) == 0 {
					delete(m.streamPeers, streamID)
				}
			}
			remainingPeers := len(m.peers)
			m.mu.Unlock()
			setActivePeers(remainingPeers)
			sess.Close()
			m.logger.Debug("WebRTC consumer disconnected", "peer_id", peerID, "stream_id", streamID, "state", state.String(), "remaining_peers", remainingPeers)
		}
	})

	return answer, nil
}

// Stop closes all peer connections.
func (m *WebRTCManager) Stop() {
	m.mu.Lock()
	conns := make([]*webrtc.Conn, 0, len(m.peers))
	for id, conn := range m.peers {
		conns = append(conns, conn)
		delete(m.peers, id)
	}
	m.mu.Unlock()

	for _, conn := range conns {
		_ = conn.Stop()
	}
	setActivePeers(0)
}

// PeerCount returns the number of active WebRTC peers.
func (m *WebRTCManager) PeerCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.peers)
}

// CloseStreamConsumers closes all WebRTC peers reading streamID. Browsers
// reconnect and land on whatever pipeline then serves their mount.
func (m *WebRTCManager) CloseStreamConsumers(streamID string) {
	m.mu.Lock()
	peerIDs := m.streamPeers[streamID]
	toClose := make([]*webrtc.Conn, 0, len(peerIDs))
	for peerID := range peerIDs {
		if conn, ok := m.peers[peerID]; ok {
			toClose = append(toClose, conn)
		}
	}
	m.mu.Unlock()

	if len(toClose) == 0 {
		return
	}
	m.logger.Info("Closing WebRTC consumers", "stream_id", streamID, "peer_count", len(toClose))
	for _, conn := range toClose {
		_ = conn.Stop()
	}
}
