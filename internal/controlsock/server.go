// Package controlsock exposes the running daemon's scan engine over a
// Unix domain socket using a line-delimited JSON request/response
// protocol, so the ghostwatchd CLI can drive a live daemon without
// restarting it.
package controlsock

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ghostwatch/ghostwatchd/internal/device"
)

const (
	maxRequestBytes = 16 * 1024
	readTimeout     = 5 * time.Second
	writeTimeout    = 10 * time.Second
)

// Engine is the subset of scanengine.Engine the control socket drives.
type Engine interface {
	Snapshot() map[string]device.DeviceRecord
	ToggleMonitoring(osName string, enabled bool)
	ForceScan(ctx context.Context, now time.Time)
}

// Request is one line of the control protocol.
type Request struct {
	Method string `json:"method"`
	OSName string `json:"os_name,omitempty"`
	Enable bool   `json:"enable,omitempty"`
}

// Response is the server's reply to one Request.
type Response struct {
	Success bool                           `json:"success"`
	Error   string                         `json:"error,omitempty"`
	Devices map[string]device.DeviceRecord `json:"devices,omitempty"`
}

// Server listens on a unix socket and dispatches each request to the
// Engine it was constructed with.
type Server struct {
	socketPath string
	engine     Engine

	listener net.Listener
}

// NewServer constructs a Server. Start must be called to begin accepting
// connections.
func NewServer(socketPath string, engine Engine) *Server {
	return &Server{socketPath: socketPath, engine: engine}
}

// Start removes any stale socket file, binds a fresh listener, and begins
// accepting connections in a background goroutine.
func (s *Server) Start() error {
	if err := os.RemoveAll(s.socketPath); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.socketPath), 0o755); err != nil {
		return err
	}
	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return err
	}
	s.listener = listener
	if err := os.Chmod(s.socketPath, 0o600); err != nil {
		log.Warn().Err(err).Msg("failed to restrict control socket permissions")
	}
	log.Info().Str("socket", s.socketPath).Msg("control socket listening")
	go s.acceptLoop()
	return nil
}

// Stop closes the listener and removes the socket file.
func (s *Server) Stop() {
	if s.listener == nil {
		return
	}
	s.listener.Close()
	os.Remove(s.socketPath)
}

func (s *Server) acceptLoop() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			log.Warn().Err(err).Msg("control socket accept failed")
			continue
		}
		go s.handleConn(conn)
	}
}

func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(readTimeout))
	reader := bufio.NewReader(&io.LimitedReader{R: conn, N: maxRequestBytes})

	line, err := reader.ReadBytes('\n')
	if err != nil && len(line) == 0 {
		return
	}
	conn.SetReadDeadline(time.Time{})
	line = bytes.TrimSpace(line)

	var req Request
	if err := json.Unmarshal(line, &req); err != nil {
		s.respond(conn, Response{Error: "invalid request"})
		return
	}

	s.respond(conn, s.dispatch(&req))
}

func (s *Server) dispatch(req *Request) Response {
	switch req.Method {
	case "snapshot":
		return Response{Success: true, Devices: s.engine.Snapshot()}
	case "toggle_monitoring":
		s.engine.ToggleMonitoring(req.OSName, req.Enable)
		return Response{Success: true}
	case "force_scan":
		s.engine.ForceScan(context.Background(), time.Now())
		return Response{Success: true, Devices: s.engine.Snapshot()}
	case "check_health_once":
		return Response{Success: true, Devices: s.engine.Snapshot()}
	default:
		return Response{Error: "unknown method: " + req.Method}
	}
}

func (s *Server) respond(conn net.Conn, resp Response) {
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := json.NewEncoder(conn).Encode(resp); err != nil {
		log.Debug().Err(err).Msg("control socket write failed")
	}
}
