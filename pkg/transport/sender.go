// Package transport delivers telemetry messages as single UDP datagrams.
//
// Each Send acquires a socket, attempts exactly one write bounded by a short
// deadline, and releases the socket on every exit path. Nothing is retried:
// the next sensor update sends fresh data.
package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync/atomic"
	"time"

	"github.com/teslashibe/go-facecast/internal/log"
)

// Config holds sender timing.
type Config struct {
	// SendTimeout bounds the single write. UDP writes rarely block, but a
	// full socket buffer must not stall the sensor thread.
	SendTimeout time.Duration `yaml:"send_timeout" json:"send_timeout"`

	// DialTimeout bounds socket creation.
	DialTimeout time.Duration `yaml:"dial_timeout" json:"dial_timeout"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		SendTimeout: 5 * time.Millisecond,
		DialTimeout: 50 * time.Millisecond,
	}
}

// DialFunc opens a connection. It matches net.Dialer.DialContext.
type DialFunc func(ctx context.Context, network, address string) (net.Conn, error)

// Sender sends datagrams to an Endpoint.
type Sender struct {
	config Config
	dial   DialFunc
	logger *slog.Logger

	datagrams atomic.Uint64
	bytes     atomic.Uint64
	failures  atomic.Uint64
}

// Option configures a Sender.
type Option func(*Sender)

// WithDialFunc replaces the socket factory.
func WithDialFunc(dial DialFunc) Option {
	return func(s *Sender) { s.dial = dial }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Sender) { s.logger = l }
}

// NewSender creates a Sender.
func NewSender(config Config, opts ...Option) *Sender {
	if config.SendTimeout <= 0 {
		config.SendTimeout = DefaultConfig().SendTimeout
	}
	if config.DialTimeout <= 0 {
		config.DialTimeout = DefaultConfig().DialTimeout
	}
	d := &net.Dialer{}
	s := &Sender{
		config: config,
		dial:   d.DialContext,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = log.Component("transport")
	}
	return s
}

// Send transmits payload to ep as one datagram.
//
// The returned error wraps ErrDial, ErrWrite, ErrShortWrite or ErrClose. A
// close failure is reported even if the write succeeded.
func (s *Sender) Send(ctx context.Context, ep Endpoint, payload []byte) (err error) {
	if len(payload) == 0 {
		return ErrEmptyPayload
	}

	dialCtx, cancel := context.WithTimeout(ctx, s.config.DialTimeout)
	conn, err := s.dial(dialCtx, "udp4", ep.String())
	cancel()
	if err != nil {
		s.failures.Add(1)
		return fmt.Errorf("%w: %w", ErrDial, err)
	}

	defer func() {
		if cerr := conn.Close(); cerr != nil {
			err = errors.Join(err, fmt.Errorf("%w: %w", ErrClose, cerr))
		}
		if err != nil {
			s.failures.Add(1)
			s.logger.Debug("send failed", "endpoint", ep.String(), "bytes", len(payload), "error", err)
			return
		}
		s.datagrams.Add(1)
		s.bytes.Add(uint64(len(payload)))
	}()

	if err := conn.SetWriteDeadline(time.Now().Add(s.config.SendTimeout)); err != nil {
		return fmt.Errorf("%w: %w", ErrWrite, err)
	}

	n, err := conn.Write(payload)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrWrite, err)
	}
	if n != len(payload) {
		return fmt.Errorf("%w: %d of %d bytes", ErrShortWrite, n, len(payload))
	}
	return nil
}

// Stats contains sender counters.
type Stats struct {
	Datagrams uint64 `json:"datagrams"`
	Bytes     uint64 `json:"bytes"`
	Failures  uint64 `json:"failures"`
}

// GetStats returns sender counters.
func (s *Sender) GetStats() Stats {
	return Stats{
		Datagrams: s.datagrams.Load(),
		Bytes:     s.bytes.Load(),
		Failures:  s.failures.Load(),
	}
}
