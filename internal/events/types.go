package events

// Event type constants for kelindar/event.
const (
	TypePipelineInstantiated uint32 = iota + 1
	TypePipelineConfigured
	TypePipelineTeardown
	TypePipelineExited
	TypeSessionOpened
	TypeSessionClosed
	TypeConfigReloaded
	TypePipelineStats
)

// Event interface required by kelindar/event.
type Event interface {
	Type() uint32
}

// PipelineInstantiatedEvent is published when a mount's shared pipeline
// starts playing.
type PipelineInstantiatedEvent struct {
	Mount     string `json:"mount" example:"/main" doc:"Mount path"`
	HandleID  uint64 `json:"handle_id" example:"1" doc:"Pipeline instance id"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for PipelineInstantiatedEvent.
func (e PipelineInstantiatedEvent) Type() uint32 { return TypePipelineInstantiated }

// PipelineConfiguredEvent is published from the configured callback.
type PipelineConfiguredEvent struct {
	Mount           string `json:"mount" example:"/main" doc:"Mount path"`
	HandleID        uint64 `json:"handle_id" example:"1" doc:"Pipeline instance id"`
	OverlayAttached bool   `json:"overlay_attached" doc:"Whether the overlay element was found"`
	Timestamp       string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for PipelineConfiguredEvent.
func (e PipelineConfiguredEvent) Type() uint32 { return TypePipelineConfigured }

// PipelineTeardownEvent is published when a shared pipeline is torn down.
type PipelineTeardownEvent struct {
	Mount     string `json:"mount" example:"/main" doc:"Mount path"`
	HandleID  uint64 `json:"handle_id" example:"1" doc:"Pipeline instance id"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for PipelineTeardownEvent.
func (e PipelineTeardownEvent) Type() uint32 { return TypePipelineTeardown }

// PipelineExitedEvent is published when a pipeline stops on its own.
type PipelineExitedEvent struct {
	Mount     string `json:"mount" example:"/main" doc:"Mount path"`
	HandleID  uint64 `json:"handle_id" example:"1" doc:"Pipeline instance id"`
	Error     string `json:"error,omitempty" example:"exit status 1" doc:"Exit reason"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for PipelineExitedEvent.
func (e PipelineExitedEvent) Type() uint32 { return TypePipelineExited }

// SessionOpenedEvent is published when a viewer attaches to a mount.
type SessionOpenedEvent struct {
	SessionID string `json:"session_id" example:"8f14e45f-ceea-4e7a-9f3b-1b1b2a4a5d6e" doc:"Session id"`
	Mount     string `json:"mount" example:"/main" doc:"Mount path"`
	Transport string `json:"transport" example:"rtsp" doc:"rtsp or webrtc"`
	Remote    string `json:"remote" example:"192.168.1.20:51234" doc:"Remote address"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for SessionOpenedEvent.
func (e SessionOpenedEvent) Type() uint32 { return TypeSessionOpened }

// SessionClosedEvent is published when a viewer detaches.
type SessionClosedEvent struct {
	SessionID string `json:"session_id" example:"8f14e45f-ceea-4e7a-9f3b-1b1b2a4a5d6e" doc:"Session id"`
	Mount     string `json:"mount" example:"/main" doc:"Mount path"`
	Transport string `json:"transport" example:"rtsp" doc:"rtsp or webrtc"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for SessionClosedEvent.
func (e SessionClosedEvent) Type() uint32 { return TypeSessionClosed }

// ConfigReloadedEvent is published after the config file changed and the
// affected mounts were replaced.
type ConfigReloadedEvent struct {
	Mounts    []string `json:"mounts" doc:"Mounts whose factory was replaced"`
	Timestamp string   `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for ConfigReloadedEvent.
func (e ConfigReloadedEvent) Type() uint32 { return TypeConfigReloaded }

// PipelineStatsEvent carries the encoder progress of a running pipeline.
type PipelineStatsEvent struct {
	StreamID        string `json:"stream_id" example:"pipeline-1" doc:"Pipeline stream id"`
	FPS             string `json:"fps" example:"15.00" doc:"Encoded frames per second"`
	DroppedFrames   string `json:"dropped_frames" example:"0" doc:"Frames dropped so far"`
	DuplicateFrames string `json:"duplicate_frames" example:"0" doc:"Frames duplicated so far"`
	Speed           string `json:"speed" example:"1.00" doc:"Processing speed relative to realtime"`
}

// Type returns the event type identifier for PipelineStatsEvent.
func (e PipelineStatsEvent) Type() uint32 { return TypePipelineStats }
