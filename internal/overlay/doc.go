// Package overlay keeps the timestamp overlay of every mounted pipeline
// current.
//
// An Updater ticks once per interval from process start, whether or not
// any viewer is connected. On each tick it takes a snapshot of the
// overlay references published by the mount table and writes the
// formatted time into each one. References into pipelines that were
// destroyed in the meantime are skipped.
package overlay
