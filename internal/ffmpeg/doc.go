// Package ffmpeg runs pipeline descriptions as ffmpeg processes.
//
// FromDescription maps the stages of a description onto Params and
// BuildArgs renders them as an argv. The overlay stage becomes a
// drawtext filter that re-reads a text file on every frame; Backend
// binds the overlay's text property to that file and replaces it
// atomically on every write.
package ffmpeg
