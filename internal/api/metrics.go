package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/sse"

	"github.com/smazurov/rtspcam/internal/events"
)

// registerMetricsRoutes registers the pipeline stats SSE endpoint
func (s *Server) registerMetricsRoutes() {
	sse.Register(s.api, huma.Operation{
		OperationID: "metrics-stream",
		Method:      http.MethodGet,
		Path:        "/api/metrics",
		Summary:     "Pipeline Stats Stream",
		Description: "Real-time ffmpeg progress of every running pipeline",
		Tags:        []string{"metrics"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, map[string]any{
		"pipeline-stats": events.PipelineStatsEvent{},
	}, func(ctx context.Context, _ *struct{}, send sse.Sender) {
		eventCh := make(chan any, sseBuffer)
		unsubscribe := events.SubscribeToChannel[events.PipelineStatsEvent](s.options.EventBus, eventCh)
		defer unsubscribe()

		forward(ctx, eventCh, send)
	})
}
