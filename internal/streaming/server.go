package streaming

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"sync"

	"github.com/AlexxIT/go2rtc/pkg/rtsp"

	"github.com/smazurov/rtspcam/internal/logging"
)

// Server handles RTSP connections from ffmpeg (producers) and viewers
// (consumers). Producers must connect from a loopback address.
type Server struct {
	hub      *Hub
	sessions *Sessions
	listener net.Listener
	logger   logging.Logger
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	closed   bool
	mu       sync.Mutex
}

// NewServer creates a new streaming server.
func NewServer(sessions *Sessions, logger logging.Logger) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		hub:      sessions.Hub(),
		sessions: sessions,
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start begins listening for RTSP connections on the specified address.
func (s *Server) Start(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}

	s.mu.Lock()
	s.listener = ln
	s.closed = false
	s.mu.Unlock()

	s.logger.Info("RTSP server started", "addr", ln.Addr().String())

	go s.acceptLoop(ln)

	return nil
}

// Addr returns the listening address, or nil before Start.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// PublishURL is where a pipeline with streamID pushes its stream.
func (s *Server) PublishURL(streamID string) string {
	port := "0"
	if addr, ok := s.Addr().(*net.TCPAddr); ok {
		port = fmt.Sprint(addr.Port)
	}
	return "rtsp://" + net.JoinHostPort("127.0.0.1", port) + "/" + streamID
}

func (s *Server) acceptLoop(ln net.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			s.mu.Lock()
			closed := s.closed
			s.mu.Unlock()

			if closed || errors.Is(err, net.ErrClosed) {
				return
			}
			s.logger.Error("Failed to accept connection", "error", err)
			continue
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConn(conn)
		}()
	}
}

// handleConn runs one RTSP connection. A DESCRIBE for a mount that cannot
// be served adds no tracks, which go2rtc answers with 404.
func (s *Server) handleConn(conn net.Conn) {
	rtspConn := rtsp.NewServer(conn)
	remote := conn.RemoteAddr().String()

	var producerID string
	var sess *Session
	defer func() {
		if sess != nil {
			sess.Close()
		}
	}()

	rtspConn.Listen(func(msg any) {
		switch msg {
		case rtsp.MethodAnnounce:
			if !isLoopback(remote) {
				s.logger.Warn("Rejecting remote producer", "remote", remote)
				_ = conn.Close()
				return
			}
			producerID = streamPath(rtspConn.URL)

		case rtsp.MethodDescribe:
			mount := streamPath(rtspConn.URL)
			opened, err := s.sessions.Open(s.ctx, "/"+mount, "rtsp", remote)
			if err != nil {
				s.logger.Warn("Cannot serve mount", "mount", "/"+mount, "remote", remote, "error", err)
				return
			}
			if err := opened.Wire(rtspConn); err != nil {
				s.logger.Warn("Failed to wire RTSP consumer", "mount", opened.Mount, "error", err)
				opened.Close()
				return
			}
			sess = opened
		}
	})

	if err := rtspConn.Accept(); err != nil {
		if !errors.Is(err, net.ErrClosed) {
			s.logger.Debug("RTSP accept error", "remote", remote, "error", err)
		}
		_ = conn.Close()
		return
	}

	switch {
	case producerID != "":
		s.hub.AddProducer(producerID, rtspProducer{conn: rtspConn})
		s.logger.Info("RTSP producer connected", "stream_id", producerID, "remote", remote)
		defer func() {
			s.hub.RemoveProducer(producerID)
			s.logger.Info("RTSP producer disconnected", "stream_id", producerID)
		}()
	case sess == nil:
		_ = conn.Close()
		return
	}

	// Blocks until the connection closes.
	if err := rtspConn.Handle(); err != nil {
		if !errors.Is(err, net.ErrClosed) {
			s.logger.Debug("RTSP handle error", "remote", remote, "error", err)
		}
	}
	if sess != nil {
		// Detach senders from the producer's receivers.
		_ = rtspConn.Stop()
	}
}

// Stop closes the listener, ends every connection and waits for them.
func (s *Server) Stop() error {
	s.mu.Lock()
	s.closed = true
	ln := s.listener
	s.mu.Unlock()

	var err error
	if ln != nil {
		err = ln.Close()
	}

	s.cancel()
	s.hub.Stop()
	s.wg.Wait()

	s.logger.Info("RTSP server stopped")
	return err
}

// Hub returns the server's stream hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

// streamPath is the URL path without its leading slash.
func streamPath(u *url.URL) string {
	if u == nil {
		return ""
	}
	return strings.TrimPrefix(u.Path, "/")
}

func isLoopback(addr string) bool {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return false
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
