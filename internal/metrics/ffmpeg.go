// Package metrics provides Prometheus metrics for pipelines, sessions and
// the overlay ticker.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "rtspcam"

var (
	ffmpegFPS = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "ffmpeg",
		Name:      "fps",
		Help:      "Current encoding FPS",
	}, []string{"stream_id"})

	ffmpegDroppedFrames = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "ffmpeg",
		Name:      "dropped_frames_total",
		Help:      "Total dropped frames",
	}, []string{"stream_id"})

	ffmpegDuplicateFrames = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "ffmpeg",
		Name:      "duplicate_frames_total",
		Help:      "Total duplicate frames",
	}, []string{"stream_id"})

	ffmpegSpeed = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "ffmpeg",
		Name:      "processing_speed",
		Help:      "Processing speed relative to realtime",
	}, []string{"stream_id"})

	progressCache   = make(map[string]Progress)
	progressCacheMu sync.RWMutex
)

// Progress is the last progress report of one encoder process.
type Progress struct {
	FPS             float64
	DroppedFrames   float64
	DuplicateFrames float64
	Speed           float64
}

// SetProgress records the progress of the pipeline publishing streamID.
func SetProgress(streamID string, p Progress) {
	ffmpegFPS.WithLabelValues(streamID).Set(p.FPS)
	ffmpegDroppedFrames.WithLabelValues(streamID).Set(p.DroppedFrames)
	ffmpegDuplicateFrames.WithLabelValues(streamID).Set(p.DuplicateFrames)
	ffmpegSpeed.WithLabelValues(streamID).Set(p.Speed)

	progressCacheMu.Lock()
	progressCache[streamID] = p
	progressCacheMu.Unlock()
}

// DeleteProgress removes all progress metrics for a stream.
func DeleteProgress(streamID string) {
	ffmpegFPS.DeleteLabelValues(streamID)
	ffmpegDroppedFrames.DeleteLabelValues(streamID)
	ffmpegDuplicateFrames.DeleteLabelValues(streamID)
	ffmpegSpeed.DeleteLabelValues(streamID)

	progressCacheMu.Lock()
	delete(progressCache, streamID)
	progressCacheMu.Unlock()
}

// GetProgress returns the last progress of a stream.
func GetProgress(streamID string) (Progress, bool) {
	progressCacheMu.RLock()
	defer progressCacheMu.RUnlock()
	p, ok := progressCache[streamID]
	return p, ok
}

// AllProgress returns the last progress of every running pipeline.
func AllProgress() map[string]Progress {
	progressCacheMu.RLock()
	defer progressCacheMu.RUnlock()
	result := make(map[string]Progress, len(progressCache))
	for id, p := range progressCache {
		result[id] = p
	}
	return result
}
