package transport

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/felixge/httpsnoop"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/roach88/rfx/internal/model"
)

// Server exposes a backend Transport over HTTP and websocket.
//
// Routes:
//
//	GET  /ws        bidirectional envelope stream
//	GET  /snapshot  last snapshot as JSON
//	POST /syscall   one call, answered with {ok, error}
type Server struct {
	backend  Transport
	logger   *slog.Logger
	upgrader websocket.Upgrader
	router   *mux.Router

	mu    sync.Mutex
	conns map[*websocket.Conn]struct{}
	wg    sync.WaitGroup
}

// NewServer returns a server for backend.
func NewServer(backend Transport, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		backend: backend,
		logger:  logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		conns: map[*websocket.Conn]struct{}{},
	}

	r := mux.NewRouter()
	r.Use(s.logRequests)
	r.Methods(http.MethodGet).Path("/ws").HandlerFunc(s.serveWS)
	r.Methods(http.MethodGet).Path("/snapshot").HandlerFunc(s.getSnapshot)
	r.Methods(http.MethodPost).Path("/syscall").HandlerFunc(s.postSyscall)
	s.router = r
	return s
}

// Handle mounts an extra handler, e.g. a metrics endpoint.
func (s *Server) Handle(path string, h http.Handler) {
	s.router.Handle(path, h)
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m := httpsnoop.CaptureMetrics(next, w, r)
		s.logger.Debug("handled", "method", r.Method, "url", r.URL.String(), "duration", m.Duration, "status", m.Code)
	})
}

func (s *Server) getSnapshot(w http.ResponseWriter, r *http.Request) {
	snap := s.backend.Snapshot()
	if snap == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) postSyscall(w http.ResponseWriter, r *http.Request) {
	var call model.Call
	if err := json.NewDecoder(r.Body).Decode(&call); err != nil {
		writeJSON(w, http.StatusBadRequest, Result{OK: false, Error: "invalid syscall: " + err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, ResultOf(s.backend.Syscall(r.Context(), call)))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// wsPeer serializes writes to one connection.
type wsPeer struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (p *wsPeer) send(env Envelope) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	_ = p.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return p.conn.WriteJSON(env)
}

func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("failed to upgrade", "err", err)
		return
	}
	s.mu.Lock()
	s.conns[conn] = struct{}{}
	s.wg.Add(1)
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
		_ = conn.Close()
		s.wg.Done()
	}()

	peer := &wsPeer{conn: conn}
	forward := func(env Envelope) {
		if err := peer.send(env); err != nil {
			s.logger.Debug("websocket send failed", "type", env.Type, "err", err)
		}
	}

	unsub := s.backend.Subscribe(func(snap model.RawSnapshot) {
		forward(Envelope{Type: MsgSnapshot, Snapshot: snap})
	})
	defer unsub()
	if ms, ok := s.backend.(MeterSource); ok {
		unsubMeters := ms.SubscribeMeters(func(f model.MeterFrame) {
			forward(Envelope{Type: MsgMeters, Meters: &f})
		})
		defer unsubMeters()
	}
	if snap := s.backend.Snapshot(); snap != nil {
		forward(Envelope{Type: MsgSnapshot, Snapshot: snap})
	}

	ctx := r.Context()
	for {
		var env Envelope
		if err := conn.ReadJSON(&env); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Debug("websocket read ended", "err", err)
			}
			return
		}
		forward(s.handle(ctx, env))
	}
}

func (s *Server) handle(ctx context.Context, env Envelope) Envelope {
	reply := Envelope{Type: MsgResult, ID: env.ID}
	switch env.Type {
	case MsgBoot:
		b, err := s.backend.Boot(ctx)
		res := ResultOf(err)
		if err == nil {
			res.Seq = &b.Seq
		}
		reply.Result = &res
	case MsgSyscall:
		if env.Call == nil {
			reply.Result = &Result{OK: false, Error: "invalid syscall"}
			break
		}
		res := ResultOf(s.backend.Syscall(ctx, *env.Call))
		reply.Result = &res
	default:
		reply.Result = &Result{OK: false, Error: "unknown message type: " + env.Type}
	}
	return reply
}

// Close drops every open websocket and waits for their handlers to return.
func (s *Server) Close() error {
	s.mu.Lock()
	for conn := range s.conns {
		_ = conn.Close()
	}
	s.mu.Unlock()
	s.wg.Wait()
	return nil
}
