// Package server exposes a matching engine over a line-oriented TCP protocol.
package server

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/0x5487/tradesim/internal/metrics"
	"github.com/0x5487/tradesim/protocol"
)

var ErrServerClosed = errors.New("server closed")

const drainTimeout = 200 * time.Millisecond

// Server accepts TCP sessions and runs every line through one Dispatcher.
type Server struct {
	addr       string
	dispatcher *Dispatcher
	metrics    *metrics.Metrics
	logger     *slog.Logger

	mu       sync.Mutex
	ln       net.Listener
	conns    map[net.Conn]struct{}
	wg       sync.WaitGroup
	shutdown atomic.Bool
}

type Option func(*Server)

func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

func WithServerMetrics(m *metrics.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

func New(addr string, dispatcher *Dispatcher, opts ...Option) *Server {
	s := &Server{
		addr:       addr,
		dispatcher: dispatcher,
		logger:     slog.Default(),
		conns:      make(map[net.Conn]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "tcp")
	return s
}

// Listen binds the listening socket. Serve calls it when needed; calling it
// first lets callers learn the bound address of ":0".
func (s *Server) Listen() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ln != nil {
		return nil
	}
	if s.shutdown.Load() {
		return ErrServerClosed
	}

	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.addr, err)
	}
	s.ln = ln
	return nil
}

// Addr returns the bound address, or nil before Listen.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Serve accepts connections until ctx is cancelled or Shutdown is called,
// then returns ErrServerClosed.
func (s *Server) Serve(ctx context.Context) error {
	if err := s.Listen(); err != nil {
		return err
	}

	s.mu.Lock()
	ln := s.ln
	s.mu.Unlock()

	stop := context.AfterFunc(ctx, func() {
		s.shutdown.Store(true)
		_ = ln.Close()
	})
	defer stop()

	s.logger.Info("listening", "addr", ln.Addr().String())

	for {
		conn, err := ln.Accept()
		if err != nil {
			if s.shutdown.Load() {
				return ErrServerClosed
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				s.logger.Warn("accept", "error", err)
				continue
			}
			return fmt.Errorf("accept: %w", err)
		}

		if !s.track(conn) {
			_ = conn.Close()
			return ErrServerClosed
		}

		go s.serveConn(conn)
	}
}

func (s *Server) track(conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.shutdown.Load() {
		return false
	}
	s.conns[conn] = struct{}{}
	s.wg.Add(1)
	return true
}

func (s *Server) untrack(conn net.Conn) {
	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()
	s.wg.Done()
}

// Shutdown stops accepting and waits for open sessions to end. When ctx ends
// first the remaining connections are closed and ctx.Err() is returned.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.shutdown.Store(true)
	if s.ln != nil {
		_ = s.ln.Close()
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		s.mu.Lock()
		for conn := range s.conns {
			_ = conn.Close()
		}
		s.mu.Unlock()
		<-done
		return ctx.Err()
	}
}

func (s *Server) serveConn(conn net.Conn) {
	defer s.untrack(conn)
	defer conn.Close()

	logger := s.logger.With("remote", conn.RemoteAddr().String())
	logger.Info("session opened")
	if s.metrics != nil {
		s.metrics.ConnectionOpened()
		defer s.metrics.ConnectionClosed()
	}

	w := bufio.NewWriter(conn)
	if err := writeLines(w, protocol.Greeting); err != nil {
		logger.Debug("write greeting", "error", err)
		return
	}

	scanner := protocol.NewLineScanner(conn)

	for scanner.Scan() {
		resp := s.dispatcher.Handle(scanner.Text())
		if err := writeLines(w, resp.Lines...); err != nil {
			logger.Debug("write response", "error", err)
			return
		}
		if resp.Quit {
			logger.Info("session closed by client")
			return
		}
	}

	if err := scanner.Err(); err != nil {
		if errors.Is(err, protocol.ErrLineTooLong) || errors.Is(err, bufio.ErrTooLong) {
			_ = writeLines(w, protocol.FormatError(protocol.ErrLineTooLong))
			drain(conn)
		}
		logger.Info("session ended", "error", err)
		return
	}
	logger.Info("session ended")
}

// drain half-closes conn and discards unread input for a short while, so
// closing with pending data does not reset the last line written.
func drain(conn net.Conn) {
	if tc, ok := conn.(*net.TCPConn); ok {
		_ = tc.CloseWrite()
	}
	_ = conn.SetReadDeadline(time.Now().Add(drainTimeout))
	_, _ = io.Copy(io.Discard, conn)
}

func writeLines(w *bufio.Writer, lines ...string) error {
	if len(lines) == 0 {
		return nil
	}
	for _, line := range lines {
		if _, err := w.WriteString(line); err != nil {
			return err
		}
		if err := w.WriteByte('\n'); err != nil {
			return err
		}
	}
	return w.Flush()
}
