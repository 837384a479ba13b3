package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/sse"

	"github.com/smazurov/rtspcam/internal/events"
)

// sseBuffer is the per-connection event backlog; events beyond it are
// dropped for that client only.
const sseBuffer = 32

// registerSSERoutes registers the native Huma SSE endpoint.
func (s *Server) registerSSERoutes() {
	sse.Register(s.api, huma.Operation{
		OperationID: "events-stream",
		Method:      http.MethodGet,
		Path:        "/api/events",
		Summary:     "Server-Sent Events Stream",
		Description: "Real-time stream of pipeline lifecycle, viewer session and reload events",
		Tags:        []string{"events"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, map[string]any{
		"pipeline-instantiated": events.PipelineInstantiatedEvent{},
		"pipeline-configured":   events.PipelineConfiguredEvent{},
		"pipeline-teardown":     events.PipelineTeardownEvent{},
		"pipeline-exited":       events.PipelineExitedEvent{},
		"session-opened":        events.SessionOpenedEvent{},
		"session-closed":        events.SessionClosedEvent{},
		"config-reloaded":       events.ConfigReloadedEvent{},
		"pipeline-stats":        events.PipelineStatsEvent{},
	}, func(ctx context.Context, _ *struct{}, send sse.Sender) {
		eventCh := make(chan any, sseBuffer)
		unsubscribe := events.SubscribeAll(s.options.EventBus, eventCh)
		defer unsubscribe()

		forward(ctx, eventCh, send)
	})
}

// forward sends events from ch until ctx ends or the client goes away.
func forward(ctx context.Context, ch <-chan any, send sse.Sender) {
	for {
		select {
		case <-ctx.Done():
			return
		case event := <-ch:
			if err := send.Data(event); err != nil {
				return
			}
		}
	}
}
