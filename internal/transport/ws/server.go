// ABOUTME: WebSocket/HTTP server: upgrades sessions and pumps frames through the pipeline
// ABOUTME: Serves /ws for sessions, /healthz, and optionally the metrics endpoint

package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/campuschat/handoff-gateway/internal/conversation"
)

const (
	// writeWait is the deadline for a single socket write.
	writeWait = 10 * time.Second

	// pongWait is how long a session may go silent before its reads fail.
	pongWait = 60 * time.Second

	// pingPeriod must be shorter than pongWait.
	pingPeriod = 50 * time.Second

	maxFrameSize = 64 * 1024
)

// MessageHandler is what the transport needs from the handoff pipeline.
type MessageHandler interface {
	HandleInbound(ctx context.Context, from conversation.Address, text string)
	HandleBotMessage(ctx context.Context, to conversation.Address, text string)
	HandleAgentDisconnect(ctx context.Context, from conversation.Address)
}

// helloFrame is the first frame every session must send after connecting.
type helloFrame struct {
	Role string `json:"role"`
	ID   string `json:"id,omitempty"`
	Name string `json:"name,omitempty"`
}

// inboundFrame is any frame after the hello. Only bot sessions set To.
type inboundFrame struct {
	To   string `json:"to,omitempty"`
	Text string `json:"text"`
}

// Server owns the HTTP listener and the per-session read/write pumps.
type Server struct {
	hub     *Hub
	handler MessageHandler
	logger  *slog.Logger

	httpServer *http.Server
	upgrader   websocket.Upgrader
}

// NewServer creates a Server listening on addr. metricsHandler may be nil
// to disable the metrics endpoint.
func NewServer(addr string, hub *Hub, handler MessageHandler, metricsPath string, metricsHandler http.Handler, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		hub:     hub,
		handler: handler,
		logger:  logger.With("component", "server"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/healthz", s.handleHealth)
	if metricsHandler != nil {
		if metricsPath == "" {
			metricsPath = "/metrics"
		}
		mux.Handle(metricsPath, metricsHandler)
	}

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Start serves until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("server listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Shutdown stops accepting connections and drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"status":   "ok",
		"sessions": s.hub.SessionCount(),
	})
}

// handleWS upgrades the connection, performs the hello handshake, and runs
// the session's pumps until the peer goes away.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("upgrade failed", "error", err, "remote", r.RemoteAddr)
		return
	}
	defer conn.Close()

	conn.SetReadLimit(maxFrameSize)

	sess, err := s.handshake(conn)
	if err != nil {
		s.logger.Warn("handshake failed", "error", err, "remote", r.RemoteAddr)
		return
	}

	s.hub.register(sess)
	defer s.hub.unregister(sess)

	go s.writePump(conn, sess)
	s.readPump(r.Context(), conn, sess)
	sess.closeDone()

	if sess.role == RoleAgent {
		// The customer should not be stuck talking to a vanished agent.
		s.handler.HandleAgentDisconnect(r.Context(), sess.addr)
	}
}

// handshake reads and validates the hello frame and builds the session.
func (s *Server) handshake(conn *websocket.Conn) (*session, error) {
	conn.SetReadDeadline(time.Now().Add(pongWait))

	var hello helloFrame
	if err := conn.ReadJSON(&hello); err != nil {
		return nil, fmt.Errorf("reading hello frame: %w", err)
	}

	switch hello.Role {
	case RoleCustomer, RoleAgent, RoleBot:
	default:
		return nil, fmt.Errorf("unknown role %q", hello.Role)
	}

	id := hello.ID
	if id == "" {
		id = uuid.New().String()
	}

	return &session{
		addr: conversation.Address(hello.Role + ":" + id),
		role: hello.Role,
		name: hello.Name,
		send: make(chan outboundFrame, sendBufferSize),
		done: make(chan struct{}),
	}, nil
}

// readPump dispatches inbound frames into the pipeline until the socket
// closes.
func (s *Server) readPump(ctx context.Context, conn *websocket.Conn, sess *session) {
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		conn.SetReadDeadline(time.Now().Add(pongWait))

		var frame inboundFrame
		if err := conn.ReadJSON(&frame); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Warn("read failed", "error", err, "addr", string(sess.addr))
			}
			return
		}

		switch {
		case sess.role == RoleBot:
			if frame.To == "" {
				s.logger.Warn("bot frame without destination", "addr", string(sess.addr))
				continue
			}
			s.handler.HandleBotMessage(ctx, conversation.Address(frame.To), frame.Text)

		default:
			s.handler.HandleInbound(ctx, sess.addr, frame.Text)
		}
	}
}

// writePump owns all writes to the socket: queued frames and keepalive
// pings.
func (s *Server) writePump(conn *websocket.Conn, sess *session) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-sess.done:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "session replaced"))
			conn.Close()
			return

		case frame := <-sess.send:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(frame); err != nil {
				s.logger.Warn("write failed", "error", err, "addr", string(sess.addr))
				return
			}

		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
