package led

import "github.com/smazurov/rtspcam/internal/logging"

// noop implements Controller for systems without LED support.
type noop struct {
	logger logging.Logger
}

func newNoop(logger logging.Logger) *noop {
	return &noop{logger: logger}
}

// Set logs the request.
func (n *noop) Set(name, pattern string) error {
	n.logger.Debug("LED control not available", "led", name, "pattern", pattern)
	return nil
}

// Available returns an empty list.
func (n *noop) Available() []string {
	return []string{}
}
