// Package pipeline describes, instantiates and inspects media pipelines.
//
// A Description is a declarative tree of capture, decode, overlay, encode
// and payload stages built from a StreamConfig by Build. A Runtime turns a
// description into a Handle on a Backend (ffmpeg in production) and fires
// the configured and teardown callbacks of a Listener around it.
//
// Elements of a running graph are reached through ElementRef values
// obtained with Locate. A reference never keeps its pipeline alive; writes
// through it fail with ErrStaleElement once the pipeline is destroyed:
//
//	ref := pipeline.Locate(h, pipeline.OverlayElementName)
//	if ref != nil {
//		_ = ref.Set("text", "12:00:00")
//	}
package pipeline
