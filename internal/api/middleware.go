package api

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/smazurov/rtspcam/internal/logging"
)

// quietPaths are polled by supervisors and browsers and only logged at
// debug level when they succeed.
var quietPaths = []string{"/api/health", "/api/events", "/api/metrics"}

// HTTPLoggingMiddleware logs every API request once it completes.
func HTTPLoggingMiddleware(ctx huma.Context, next func(huma.Context)) {
	start := time.Now()
	next(ctx)

	path := ctx.URL().Path
	status := ctx.Status()
	attrs := []slog.Attr{
		slog.String("method", ctx.Method()),
		slog.String("path", path),
		slog.Int("status", status),
		slog.Duration("duration", time.Since(start)),
		slog.String("remote_addr", ctx.RemoteAddr()),
	}
	if mount := ctx.Query("mount"); mount != "" {
		attrs = append(attrs, slog.String("mount", mount))
	}

	logging.GetLogger("api").LogAttrs(ctx.Context(), requestLevel(ctx.Method(), path, status), "HTTP request completed", attrs...)
}

func requestLevel(method, path string, status int) slog.Level {
	switch {
	case status >= http.StatusInternalServerError:
		return slog.LevelError
	case status >= http.StatusBadRequest:
		return slog.LevelWarn
	case method == http.MethodOptions:
		return slog.LevelDebug
	}
	for _, p := range quietPaths {
		if strings.HasPrefix(path, p) {
			return slog.LevelDebug
		}
	}
	return slog.LevelInfo
}
