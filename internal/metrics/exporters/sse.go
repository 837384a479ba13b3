package exporters

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/smazurov/rtspcam/internal/events"
	"github.com/smazurov/rtspcam/internal/metrics"
)

// DefaultStatsInterval is how often pipeline stats are published.
const DefaultStatsInterval = time.Second

// StatsExporter periodically publishes the progress of every running
// pipeline as PipelineStatsEvent, for SSE clients.
type StatsExporter struct {
	eventBus events.Publisher
	interval time.Duration

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewStatsExporter creates a stats exporter.
func NewStatsExporter(eventBus events.Publisher) *StatsExporter {
	return &StatsExporter{
		eventBus: eventBus,
		interval: DefaultStatsInterval,
	}
}

// Start begins the export loop.
func (s *StatsExporter) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(1)
	go s.run(ctx)
}

// Stop ends the export loop and waits for it. Safe to call more than once.
func (s *StatsExporter) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	s.wg.Wait()
}

func (s *StatsExporter) run(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.publish()
		}
	}
}

func (s *StatsExporter) publish() {
	all := metrics.AllProgress()
	ids := make([]string, 0, len(all))
	for id := range all {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		p := all[id]
		s.eventBus.Publish(events.PipelineStatsEvent{
			StreamID:        id,
			FPS:             strconv.FormatFloat(p.FPS, 'f', 2, 64),
			DroppedFrames:   strconv.FormatFloat(p.DroppedFrames, 'f', 0, 64),
			DuplicateFrames: strconv.FormatFloat(p.DuplicateFrames, 'f', 0, 64),
			Speed:           strconv.FormatFloat(p.Speed, 'f', 2, 64),
		})
	}
}
