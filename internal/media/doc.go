// Package media serves one shared pipeline per mount point.
//
// A Factory owns the description for its mount and hands every client
// the same Media. The first Acquire instantiates the pipeline; the last
// Release tears it down, unless the factory is eager or lingers. While a
// pipeline is configured the factory publishes a reference to its
// overlay element, which the timestamp updater reads through
// MountPoints.Overlays.
package media
