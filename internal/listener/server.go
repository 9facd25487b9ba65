package listener

import (
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/kinabalu-io/telemetryd/internal/apptable"
	"github.com/kinabalu-io/telemetryd/internal/logging"
	"github.com/kinabalu-io/telemetryd/internal/reservoir"
)

// Server accepts connections on a TCP or unix-socket address and
// demultiplexes framed observation messages into the application table
// (spec.md §4.5).
type Server struct {
	table      *apptable.Table
	authorizer *Authorizer
	validator  LicenseValidator
	logger     *slog.Logger

	mu       sync.Mutex
	listener net.Listener
	wg       sync.WaitGroup
	closing  bool
}

// New creates a Server. validator may be nil, in which case AcceptAnyLicense
// is used.
func New(table *apptable.Table, authorizer *Authorizer, validator LicenseValidator, logger *slog.Logger) *Server {
	if validator == nil {
		validator = AcceptAnyLicense
	}
	return &Server{
		table:      table,
		authorizer: authorizer,
		validator:  validator,
		logger:     logging.WithComponent(logger, logging.ComponentListener),
	}
}

// Serve opens the listening socket for addr (already resolved via
// ResolveAddr) and accepts connections until Close is called.
func (s *Server) Serve(network Network, addr string) error {
	ln, err := net.Listen(string(network), addr)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	s.logger.Info("listening", "network", network, "addr", addr)

	for {
		conn, err := ln.Accept()
		if err != nil {
			s.mu.Lock()
			closing := s.closing
			s.mu.Unlock()
			if closing {
				return nil
			}
			return err
		}
		s.wg.Add(1)
		go s.handle(conn)
	}
}

// Close stops accepting new connections. In-flight reads are left to drain;
// callers that need a bounded grace period should race this against a timer
// and then force-close remaining connections themselves.
func (s *Server) Close() error {
	s.mu.Lock()
	s.closing = true
	ln := s.listener
	s.mu.Unlock()
	if ln == nil {
		return nil
	}
	return ln.Close()
}

// Wait blocks until all in-flight connection handlers have returned.
func (s *Server) Wait() {
	s.wg.Wait()
}

func (s *Server) handle(conn net.Conn) {
	defer s.wg.Done()
	defer conn.Close()

	entry, err := s.handshake(conn)
	if err != nil {
		s.logger.Debug("connect handshake failed, closing connection", "error", err, "remote", conn.RemoteAddr())
		return
	}
	defer entry.RemoveConn(conn)

	for {
		kind, body, err := readFrame(conn)
		if err != nil {
			return
		}
		if !entry.Connected() {
			// Entry was disconnected by a rejected-permanent harvest outcome
			// (spec.md §4.3); the application library is expected to
			// reconnect and resend its connect frame.
			return
		}
		if err := s.dispatch(entry, kind, body); err != nil {
			s.logger.Debug("malformed observation frame, closing connection", "error", err)
			return
		}
	}
}

// handshake reads the first frame, requires it to be a connect frame,
// attributes the connection to an application entry, and replies
// accept/reject (spec.md §4.5).
func (s *Server) handshake(conn net.Conn) (*apptable.Entry, error) {
	kind, body, err := readFrame(conn)
	if err != nil {
		return nil, err
	}
	if kind != FrameConnect {
		return nil, ErrMalformedFrame
	}

	var msg ConnectMessage
	if err := msgpack.Unmarshal(body, &msg); err != nil {
		return nil, ErrMalformedFrame
	}

	if !s.validator(msg.LicenseKey) {
		_ = writeFrame(conn, FrameConnect, ConnectReply{Status: ConnectRejectedInvalidLicense})
		return nil, ErrMalformedFrame
	}
	if !s.authorizer.CheckHighSecurity(msg.HighSecurity) {
		_ = writeFrame(conn, FrameConnect, ConnectReply{Status: ConnectRejectedHighSecurityMismatch})
		return nil, ErrMalformedFrame
	}
	if host := s.authorizer.RedirectHost(); host != "" {
		_ = writeFrame(conn, FrameConnect, ConnectReply{Status: ConnectRedirect, RedirectTo: host})
		return nil, ErrMalformedFrame
	}

	id := apptable.Identity{
		LicenseKey:   msg.LicenseKey,
		AppNames:     msg.AppNames,
		HighSecurity: msg.HighSecurity,
		AgentLang:    msg.AgentLang,
		AgentVersion: msg.AgentVersion,
	}
	entry, _ := s.table.GetOrCreate(id, time.Now())
	entry.AddConn(conn)

	token, err := s.authorizer.MintRunToken(msg.LicenseKey)
	if err != nil {
		return nil, fmt.Errorf("listener: mint run token: %w", err)
	}
	entry.SetToken(token)

	if err := writeFrame(conn, FrameConnect, ConnectReply{Status: ConnectAccepted, RunToken: token}); err != nil {
		return nil, err
	}
	return entry, nil
}

func (s *Server) dispatch(entry *apptable.Entry, kind FrameKind, body []byte) error {
	r := entry.Reservoirs()
	now := time.Now()
	entry.Touch(now)

	switch kind {
	case FrameAnalyticsEvent:
		var ev EventObservation
		if err := msgpack.Unmarshal(body, &ev); err != nil {
			return ErrMalformedFrame
		}
		r.AnalyticsEvents.Observe(reservoir.Event(ev.Attrs))
	case FrameCustomEvent:
		var ev EventObservation
		if err := msgpack.Unmarshal(body, &ev); err != nil {
			return ErrMalformedFrame
		}
		r.CustomEvents.Observe(reservoir.Event(ev.Attrs))
	case FrameMetric:
		var m MetricObservation
		if err := msgpack.Unmarshal(body, &m); err != nil {
			return ErrMalformedFrame
		}
		r.Metrics.Observe(m.Name, m.Value)
	case FrameError:
		var e ErrorObservation
		if err := msgpack.Unmarshal(body, &e); err != nil {
			return ErrMalformedFrame
		}
		r.Errors.Observe(reservoir.ErrorSample{
			When:    time.Unix(0, e.EpochNano),
			Message: e.Message,
			Class:   e.Class,
			Attrs:   e.Attrs,
		})
	case FrameSlowSample:
		var sample SlowSampleObservation
		if err := msgpack.Unmarshal(body, &sample); err != nil {
			return ErrMalformedFrame
		}
		r.SlowSamples.Observe(reservoir.SlowSample{
			Identifier: sample.Identifier,
			Count:      sample.Count,
			Total:      sample.TotalMicros,
			Min:        sample.MinMicros,
			Max:        sample.MaxMicros,
			MetricName: sample.MetricName,
			Query:      sample.Query,
			TxnName:    sample.TxnName,
			TxnURL:     sample.TxnURL,
			Params:     sample.Params,
		})
	default:
		return ErrMalformedFrame
	}
	return nil
}
