// Package collectors gathers encoder statistics for the metrics package.
package collectors

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/smazurov/rtspcam/internal/logging"
	"github.com/smazurov/rtspcam/internal/metrics"
)

// ProgressCollector reads the key=value blocks ffmpeg writes with
// "-progress unix://<socket>" and records them for one stream.
type ProgressCollector struct {
	logger     logging.Logger
	socketPath string
	streamID   string

	mu       sync.Mutex
	listener net.Listener
	cancel   context.CancelFunc
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewProgressCollector creates a collector for streamID listening on socketPath.
func NewProgressCollector(socketPath, streamID string, logger logging.Logger) *ProgressCollector {
	if logger == nil {
		logger = logging.GetLogger("metrics")
	}
	return &ProgressCollector{
		logger:     logger,
		socketPath: socketPath,
		streamID:   streamID,
	}
}

// SocketPath returns the path ffmpeg must report to.
func (c *ProgressCollector) SocketPath() string { return c.socketPath }

// URL is the value for ffmpeg's -progress option.
func (c *ProgressCollector) URL() string { return "unix://" + c.socketPath }

// Start creates the socket. It returns once ffmpeg can connect.
func (c *ProgressCollector) Start(ctx context.Context) error {
	if err := os.Remove(c.socketPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove stale socket: %w", err)
	}

	ln, err := net.Listen("unix", c.socketPath)
	if err != nil {
		return fmt.Errorf("listen %s: %w", c.socketPath, err)
	}

	ctx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.listener = ln
	c.cancel = cancel
	c.mu.Unlock()

	c.wg.Add(1)
	go c.acceptLoop(ctx, ln)
	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	c.logger.Debug("Progress collector started", "stream_id", c.streamID, "socket", c.socketPath)
	return nil
}

// Stop closes the socket, removes it and forgets the stream's metrics.
func (c *ProgressCollector) Stop() error {
	var err error
	c.stopOnce.Do(func() {
		c.mu.Lock()
		cancel, ln := c.cancel, c.listener
		c.mu.Unlock()

		if cancel != nil {
			cancel()
		}
		if ln != nil {
			_ = ln.Close()
		}
		c.wg.Wait()
		if rmErr := os.Remove(c.socketPath); rmErr != nil && !os.IsNotExist(rmErr) {
			err = rmErr
		}
		metrics.DeleteProgress(c.streamID)
	})
	return err
}

func (c *ProgressCollector) acceptLoop(ctx context.Context, ln net.Listener) {
	defer c.wg.Done()
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			c.logger.Warn("Error accepting progress connection", "stream_id", c.streamID, "error", err)
			continue
		}
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			c.read(ctx, conn)
		}()
	}
}

func (c *ProgressCollector) read(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	scanner := bufio.NewScanner(conn)
	fields := make(map[string]string)
	for scanner.Scan() {
		key, value, ok := strings.Cut(strings.TrimSpace(scanner.Text()), "=")
		if !ok {
			continue
		}
		key, value = strings.TrimSpace(key), strings.TrimSpace(value)
		fields[key] = value

		// Every block ends with progress=continue or progress=end.
		if key == "progress" {
			prev, _ := metrics.GetProgress(c.streamID)
			metrics.SetProgress(c.streamID, ParseProgress(prev, fields))
			fields = make(map[string]string)
		}
	}
}

// ParseProgress applies one progress block to prev. Fields that are
// missing or unparsable ("N/A") keep their previous value.
func ParseProgress(prev metrics.Progress, fields map[string]string) metrics.Progress {
	p := prev
	if v, err := strconv.ParseFloat(fields["fps"], 64); err == nil {
		p.FPS = v
	}
	if v, err := strconv.ParseFloat(fields["drop_frames"], 64); err == nil {
		p.DroppedFrames = v
	}
	if v, err := strconv.ParseFloat(fields["dup_frames"], 64); err == nil {
		p.DuplicateFrames = v
	}
	speed := strings.TrimSpace(strings.TrimSuffix(fields["speed"], "x"))
	if v, err := strconv.ParseFloat(speed, 64); err == nil {
		p.Speed = v
	}
	return p
}
