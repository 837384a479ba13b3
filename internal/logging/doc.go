// Package logging provides structured logging with per-module log levels.
//
// Records go to stdout (text or JSON) when something is attached to it, and
// to the systemd journal when journald is reachable. Each subsystem asks
// for its own logger:
//
//	logging.Initialize(logging.Config{
//		Level:  "info",
//		Format: "text",
//		Modules: map[string]string{
//			"overlay": "debug",
//		},
//	})
//
//	logger := logging.GetLogger("media")
//	logger.Info("Pipeline instantiated", "mount", "/main")
//
// Loggers handed out before Initialize are updated in place, so package
// level loggers pick up the configured levels.
//
// Journal entries carry SYSLOG_IDENTIFIER=rtspcam and upper-cased
// attributes:
//
//	journalctl -t rtspcam MODULE=overlay
package logging
