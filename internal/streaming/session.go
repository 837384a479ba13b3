package streaming

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/AlexxIT/go2rtc/pkg/core"
	"github.com/google/uuid"

	"github.com/smazurov/rtspcam/internal/events"
	"github.com/smazurov/rtspcam/internal/logging"
)

// DefaultProducerTimeout bounds how long a viewer waits for a freshly
// started pipeline to publish.
const DefaultProducerTimeout = 10 * time.Second

// Lease is one viewer's hold on the shared stream of a mount.
type Lease interface {
	Mount() string
	StreamID() string
	Release()
}

// Resolver attaches viewers to mounts.
type Resolver interface {
	Attach(ctx context.Context, mount string) (Lease, error)
}

// ResolverFunc adapts a function to Resolver.
type ResolverFunc func(ctx context.Context, mount string) (Lease, error)

// Attach calls f.
func (f ResolverFunc) Attach(ctx context.Context, mount string) (Lease, error) {
	return f(ctx, mount)
}

// SessionOptions configures a Sessions.
type SessionOptions struct {
	ProducerTimeout time.Duration
	Events          events.Publisher
	Logger          logging.Logger
}

// Sessions opens and closes viewer sessions for every transport.
type Sessions struct {
	hub      *Hub
	resolver Resolver
	timeout  time.Duration
	events   events.Publisher
	logger   logging.Logger
	active   atomic.Int64
}

// NewSessions creates a session tracker.
func NewSessions(hub *Hub, resolver Resolver, opts SessionOptions) *Sessions {
	if opts.ProducerTimeout <= 0 {
		opts.ProducerTimeout = DefaultProducerTimeout
	}
	if opts.Logger == nil {
		opts.Logger = logging.GetLogger("streaming")
	}
	return &Sessions{
		hub:      hub,
		resolver: resolver,
		timeout:  opts.ProducerTimeout,
		events:   opts.Events,
		logger:   opts.Logger,
	}
}

// Session is one viewer attached to a mount.
type Session struct {
	ID        string
	Mount     string
	Transport string
	Remote    string

	owner    *Sessions
	lease    Lease
	consumer core.Consumer
	once     sync.Once
}

// StreamID names the producer the session reads from.
func (s *Session) StreamID() string { return s.lease.StreamID() }

// Open attaches a viewer to mount and waits until the mount's pipeline
// is publishing. The session must be closed with Close.
func (s *Sessions) Open(ctx context.Context, mount, transport, remote string) (*Session, error) {
	lease, err := s.resolver.Attach(ctx, mount)
	if err != nil {
		return nil, err
	}

	waitCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if _, err := s.hub.WaitProducer(waitCtx, lease.StreamID()); err != nil {
		lease.Release()
		return nil, err
	}

	sess := &Session{
		ID:        uuid.NewString(),
		Mount:     lease.Mount(),
		Transport: transport,
		Remote:    remote,
		owner:     s,
		lease:     lease,
	}
	count := s.active.Add(1)
	s.logger.Info("Session opened", "session_id", sess.ID, "mount", sess.Mount, "transport", transport, "remote", remote, "sessions", count)
	s.publish(events.SessionOpenedEvent{
		SessionID: sess.ID,
		Mount:     sess.Mount,
		Transport: transport,
		Remote:    remote,
		Timestamp: time.Now().Format(time.RFC3339),
	})
	return sess, nil
}

// Wire connects cons to the session's stream.
func (s *Session) Wire(cons core.Consumer) error {
	if err := s.owner.hub.WireConsumer(s.StreamID(), s.Mount, cons); err != nil {
		return err
	}
	s.consumer = cons
	return nil
}

// Close detaches the viewer and releases its hold on the pipeline. Safe to
// call more than once.
func (s *Session) Close() {
	s.once.Do(func() {
		o := s.owner
		if s.consumer != nil {
			o.hub.UnwireConsumer(s.StreamID(), s.consumer)
		}
		s.lease.Release()
		count := o.active.Add(-1)
		o.logger.Info("Session closed", "session_id", s.ID, "mount", s.Mount, "transport", s.Transport, "sessions", count)
		o.publish(events.SessionClosedEvent{
			SessionID: s.ID,
			Mount:     s.Mount,
			Transport: s.Transport,
			Timestamp: time.Now().Format(time.RFC3339),
		})
	})
}

// Active returns the number of open sessions.
func (s *Sessions) Active() int { return int(s.active.Load()) }

// Hub returns the hub sessions are wired through.
func (s *Sessions) Hub() *Hub { return s.hub }

func (s *Sessions) publish(ev events.Event) {
	if s.events != nil {
		s.events.Publish(ev)
	}
}
