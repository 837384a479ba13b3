// Package led drives a board LED as a tally light for the camera.
package led

// Patterns a Controller understands.
const (
	PatternSolid = "solid"
	PatternBlink = "blink"
	PatternOff   = "off"
)

// Controller abstracts LED hardware control across different SBC boards.
type Controller interface {
	// Set switches the LED called name to pattern.
	Set(name, pattern string) error
	// Available returns the LED names this board exposes, sorted.
	Available() []string
}
