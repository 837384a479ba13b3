package streaming

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/AlexxIT/go2rtc/pkg/core"
	"github.com/AlexxIT/go2rtc/pkg/rtsp"
	"github.com/AlexxIT/go2rtc/pkg/webrtc"
	"github.com/pion/rtp"
)

var (
	// ErrStreamNotFound is returned when a requested stream has no producer.
	ErrStreamNotFound = errors.New("stream not found")

	// ErrProducerTimeout is returned when a pipeline did not start
	// publishing in time.
	ErrProducerTimeout = errors.New("timed out waiting for producer")
)

// Producer is a published stream, normally the RTSP connection of an
// ffmpeg process pushing with ANNOUNCE/RECORD.
type Producer interface {
	Tracks() []*core.Receiver
	Stop() error
}

type rtspProducer struct {
	conn *rtsp.Conn
}

func (p rtspProducer) Tracks() []*core.Receiver { return p.conn.Receivers }
func (p rtspProducer) Stop() error              { return p.conn.Stop() }

// Hub routes consumers to producers keyed by stream ID.
// Consumers wired onto a producer are stopped when the producer goes away,
// which ends their session.
type Hub struct {
	producers          map[string]Producer
	consumers          map[string][]core.Consumer
	waiters            map[string][]chan struct{}
	mu                 sync.RWMutex
	logger             *slog.Logger
	onProducerReplaced func(streamID string)
}

// NewHub creates a new stream hub.
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		producers: make(map[string]Producer),
		consumers: make(map[string][]core.Consumer),
		waiters:   make(map[string][]chan struct{}),
		logger:    logger,
	}
}

// SetOnProducerReplaced sets the callback invoked when a producer is replaced or removed.
func (h *Hub) SetOnProducerReplaced(callback func(streamID string)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onProducerReplaced = callback
}

// AddProducer registers a producer and wakes everyone waiting for it.
func (h *Hub) AddProducer(streamID string, prod Producer) {
	h.mu.Lock()

	var callback func(streamID string)
	var stale []core.Consumer
	if existing, ok := h.producers[streamID]; ok {
		h.logger.Info("Replacing existing producer", "stream_id", streamID)
		_ = existing.Stop()
		stale = h.consumers[streamID]
		delete(h.consumers, streamID)
		callback = h.onProducerReplaced
	}

	h.producers[streamID] = prod
	for _, ch := range h.waiters[streamID] {
		close(ch)
	}
	delete(h.waiters, streamID)
	h.mu.Unlock()

	h.logger.Info("Producer added", "stream_id", streamID, "tracks", len(prod.Tracks()))
	for _, r := range prod.Tracks() {
		if r.Codec != nil && r.Codec.Name == core.CodecH264 {
			h.logger.Debug("H264 track", "stream_id", streamID, "profile", fmt.Sprintf("0x%02X", h264ProfileFromFmtp(r.Codec.FmtpLine)))
		}
	}

	stopConsumers(stale)
	if callback != nil {
		go callback(streamID)
	}
}

// RemoveProducer stops a producer and every consumer wired onto it.
func (h *Hub) RemoveProducer(streamID string) {
	h.mu.Lock()

	var callback func(streamID string)
	var stale []core.Consumer
	if prod, ok := h.producers[streamID]; ok {
		_ = prod.Stop()
		delete(h.producers, streamID)
		stale = h.consumers[streamID]
		delete(h.consumers, streamID)
		callback = h.onProducerReplaced
		h.logger.Info("Producer removed", "stream_id", streamID)
	}
	h.mu.Unlock()

	stopConsumers(stale)
	if callback != nil {
		go callback(streamID)
	}
}

// GetProducer returns the producer for a stream ID.
func (h *Hub) GetProducer(streamID string) Producer {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.producers[streamID]
}

// HasProducer checks if a producer exists for the given stream ID.
func (h *Hub) HasProducer(streamID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.producers[streamID]
	return ok
}

// WaitProducer blocks until streamID has a producer or ctx ends.
func (h *Hub) WaitProducer(ctx context.Context, streamID string) (Producer, error) {
	for {
		h.mu.Lock()
		if prod, ok := h.producers[streamID]; ok {
			h.mu.Unlock()
			return prod, nil
		}
		ch := make(chan struct{})
		h.waiters[streamID] = append(h.waiters[streamID], ch)
		h.mu.Unlock()

		select {
		case <-ch:
			// The producer may already be gone again; look it up once more.
		case <-ctx.Done():
			h.dropWaiter(streamID, ch)
			return nil, fmt.Errorf("%w: %s", ErrProducerTimeout, streamID)
		}
	}
}

func (h *Hub) dropWaiter(streamID string, ch chan struct{}) {
	h.mu.Lock()
	defer h.mu.Unlock()
	list := h.waiters[streamID]
	for i, c := range list {
		if c == ch {
			list = append(list[:i], list[i+1:]...)
			break
		}
	}
	if len(list) == 0 {
		delete(h.waiters, streamID)
	} else {
		h.waiters[streamID] = list
	}
}

// Waiting returns how many callers are blocked in WaitProducer for streamID.
func (h *Hub) Waiting(streamID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.waiters[streamID])
}

// WireConsumer connects a consumer watching mount to a producer's tracks.
func (h *Hub) WireConsumer(streamID, mount string, cons core.Consumer) error {
	h.mu.Lock()
	prod := h.producers[streamID]
	if prod == nil {
		h.mu.Unlock()
		return ErrStreamNotFound
	}
	h.consumers[streamID] = append(h.consumers[streamID], cons)
	h.mu.Unlock()

	consumerMedias := cons.GetMedias()
	h.logger.Debug("WireConsumer", "stream_id", streamID, "consumer_medias_count", len(consumerMedias))

	// RTSP playback: the consumer takes every producer track as is.
	if len(consumerMedias) == 0 {
		for _, receiver := range prod.Tracks() {
			media := &core.Media{
				Kind:      core.GetKind(receiver.Codec.Name),
				Direction: core.DirectionRecvonly,
				Codecs:    []*core.Codec{receiver.Codec},
			}
			if err := cons.AddTrack(media, receiver.Codec, receiver); err != nil {
				h.logger.Warn("Failed to add track", "stream_id", streamID, "error", err)
			}
		}
		return nil
	}

	webrtcConn, isWebRTC := cons.(*webrtc.Conn)

	for _, receiver := range prod.Tracks() {
		matchedMedia, consumerCodec := matchTrack(consumerMedias, receiver.Codec)
		if matchedMedia == nil {
			continue
		}
		if consumerCodec == nil {
			h.logger.Warn("No matching codec", "stream_id", streamID, "codec", receiver.Codec.Name)
			continue
		}

		var senderCountBefore int
		if isWebRTC {
			senderCountBefore = len(webrtcConn.Senders)
		}

		if err := cons.AddTrack(matchedMedia, consumerCodec, receiver); err != nil {
			h.logger.Warn("Failed to add track", "stream_id", streamID, "error", err)
			continue
		}

		// H264 over RTP is forwarded without depay/repay.
		if isWebRTC && receiver.Codec.IsRTP() &&
			receiver.Codec.Name == core.CodecH264 &&
			len(webrtcConn.Senders) > senderCountBefore {
			sender := webrtcConn.Senders[len(webrtcConn.Senders)-1]
			localTrack := webrtcConn.GetSenderTrack(matchedMedia.ID)
			payloadType := consumerCodec.PayloadType

			if localTrack != nil {
				pass := newH264Passthrough(receiver.Codec, func(packet *rtp.Packet) {
					size := packet.MarshalSize()
					webrtcConn.Send += size
					recordSent(mount, size)
					_ = localTrack.WriteRTP(payloadType, packet)
				})
				sender.Handler = pass.forward
			}
		}
	}

	return nil
}

// UnwireConsumer forgets a consumer without stopping it.
func (h *Hub) UnwireConsumer(streamID string, cons core.Consumer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	list := h.consumers[streamID]
	for i, c := range list {
		if c == cons {
			list = append(list[:i], list[i+1:]...)
			break
		}
	}
	if len(list) == 0 {
		delete(h.consumers, streamID)
	} else {
		h.consumers[streamID] = list
	}
}

// Consumers returns the number of consumers wired onto streamID.
func (h *Hub) Consumers(streamID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.consumers[streamID])
}

// ListStreams returns the IDs of all streams with a producer, sorted.
func (h *Hub) ListStreams() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	streams := make([]string, 0, len(h.producers))
	for id := range h.producers {
		streams = append(streams, id)
	}
	sort.Strings(streams)
	return streams
}

// Stop closes all producers and their consumers.
func (h *Hub) Stop() {
	h.mu.Lock()
	var stale []core.Consumer
	for id, prod := range h.producers {
		_ = prod.Stop()
		delete(h.producers, id)
	}
	for id, list := range h.consumers {
		stale = append(stale, list...)
		delete(h.consumers, id)
	}
	h.mu.Unlock()

	stopConsumers(stale)
	h.logger.Info("Hub stopped")
}

// matchTrack finds the sendonly consumer media of the codec's kind and the
// consumer codec with the same name.
func matchTrack(medias []*core.Media, codec *core.Codec) (*core.Media, *core.Codec) {
	kind := core.GetKind(codec.Name)
	for _, m := range medias {
		if m.Kind != kind || m.Direction != core.DirectionSendonly {
			continue
		}
		for _, c := range m.Codecs {
			if c.Name == codec.Name {
				return m, c
			}
		}
		return m, nil
	}
	return nil, nil
}

func stopConsumers(list []core.Consumer) {
	for _, cons := range list {
		_ = cons.Stop()
	}
}
