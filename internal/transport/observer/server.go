package observer

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"

	"foobartory.ai/internal/observerproto"
	"foobartory.ai/internal/sim/factory"
)

// Server streams tick entries to websocket observers. It is a
// factory.TickLogger: the simulation pushes entries into it and never reads
// back, so observers cannot slow the run down.
type Server struct {
	params observerproto.RunParams
	runID  string
	log    *log.Logger

	allowRemote bool

	upgrader websocket.Upgrader
	nextID   atomic.Uint64
	dropped  atomic.Uint64

	mu       sync.Mutex
	sessions map[string]*session
	last     factory.TickLogEntry
	closed   bool
}

type session struct {
	id     string
	out    chan []byte
	every  int
	events bool
}

type Options struct {
	// AllowRemote accepts non-loopback clients.
	AllowRemote bool
}

func NewServer(cfg factory.Config, logger *log.Logger, opts Options) *Server {
	return &Server{
		runID: cfg.RunID,
		params: observerproto.RunParams{
			Seed:          cfg.Seed,
			TickQuantum:   cfg.TickQuantum.String(),
			InitialRobots: cfg.InitialRobots,
			TargetRobots:  cfg.TargetRobots,
		},
		log:         logger,
		allowRemote: opts.AllowRemote,
		sessions:    map[string]*session{},
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
}

// Dropped is the number of tick messages not delivered to slow observers.
func (s *Server) Dropped() uint64 { return s.dropped.Load() }

// Sessions is the number of connected observers.
func (s *Server) Sessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func (s *Server) WriteTick(entry factory.TickLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.last = entry
	if len(s.sessions) == 0 {
		return nil
	}

	var withEvents, bare []byte
	for _, sess := range s.sessions {
		if !entry.Final && sess.every > 1 && entry.Tick%uint64(sess.every) != 0 {
			continue
		}
		var b []byte
		if sess.events {
			if withEvents == nil {
				withEvents = encodeTick(entry, true)
			}
			b = withEvents
		} else {
			if bare == nil {
				bare = encodeTick(entry, false)
			}
			b = bare
		}
		select {
		case sess.out <- b:
		default:
			s.dropped.Add(1)
		}
	}
	return nil
}

func encodeTick(e factory.TickLogEntry, events bool) []byte {
	msg := observerproto.TickMsg{
		Type:            "TICK",
		ProtocolVersion: observerproto.Version,
		Tick:            e.Tick,
		Report:          e.Report,
		Digest:          e.Digest,
		Final:           e.Final,
	}
	if events {
		msg.Events = e.Events
	}
	b, _ := json.Marshal(msg)
	return b
}

// Close disconnects every observer.
func (s *Server) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	for id, sess := range s.sessions {
		close(sess.out)
		delete(s.sessions, id)
	}
}

func (s *Server) BootstrapHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if !s.allowed(r) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}

		s.mu.Lock()
		last := s.last
		s.mu.Unlock()

		resp := observerproto.BootstrapResponse{
			ProtocolVersion: observerproto.Version,
			RunID:           s.runID,
			Tick:            last.Tick,
			RunParams:       s.params,
			Report:          last.Report,
			Finished:        last.Final,
		}
		rw.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(rw).Encode(resp)
	}
}

func (s *Server) WSHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if !s.allowed(r) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}

		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		// Handshake: must send SUBSCRIBE first.
		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		sub, ok := parseSubscribe(msg)
		if !ok {
			_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "expected SUBSCRIBE"), time.Now().Add(time.Second))
			return
		}

		sess := &session{
			id:     fmt.Sprintf("O%d", s.nextID.Add(1)),
			out:    make(chan []byte, 256),
			every:  sub.EveryTicks,
			events: sub.Events,
		}
		if !s.register(sess) {
			_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "run finished"), time.Now().Add(time.Second))
			return
		}
		defer s.unregister(sess.id)
		s.log.Debug("observer joined", "session", sess.id, "every", sess.every, "events", sess.events)

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		// Writer goroutine.
		writeErr := make(chan error, 1)
		go func() {
			defer conn.Close()
			for {
				select {
				case <-ctx.Done():
					writeErr <- ctx.Err()
					return
				case b, ok := <-sess.out:
					if !ok {
						_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"), time.Now().Add(time.Second))
						writeErr <- nil
						return
					}
					_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						writeErr <- err
						return
					}
				}
			}
		}()

		// Reader loop: allow SUBSCRIBE updates.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				break
			}
			sub, ok := parseSubscribe(msg)
			if !ok {
				continue
			}
			s.mu.Lock()
			sess.every = sub.EveryTicks
			sess.events = sub.Events
			s.mu.Unlock()
		}

		cancel()
		select {
		case <-writeErr:
		case <-time.After(500 * time.Millisecond):
		}
		s.log.Debug("observer left", "session", sess.id)
	}
}

// register queues the WELCOME message ahead of any tick and adds sess to
// the broadcast set.
func (s *Server) register(sess *session) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	welcome, _ := json.Marshal(observerproto.WelcomeMsg{
		Type:            "WELCOME",
		ProtocolVersion: observerproto.Version,
		SessionID:       sess.id,
		RunID:           s.runID,
		Tick:            s.last.Tick,
	})
	sess.out <- welcome
	s.sessions[sess.id] = sess
	return true
}

func (s *Server) unregister(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
}

func parseSubscribe(msg []byte) (observerproto.SubscribeMsg, bool) {
	var sub observerproto.SubscribeMsg
	if err := json.Unmarshal(msg, &sub); err != nil {
		return sub, false
	}
	if sub.Type != "SUBSCRIBE" || sub.ProtocolVersion != observerproto.Version {
		return sub, false
	}
	normalizeSubscribe(&sub)
	return sub, true
}

func normalizeSubscribe(sub *observerproto.SubscribeMsg) {
	if sub.EveryTicks <= 0 {
		sub.EveryTicks = 1
	}
	if sub.EveryTicks > 1_000_000 {
		sub.EveryTicks = 1_000_000
	}
}

func (s *Server) allowed(r *http.Request) bool {
	return s.allowRemote || isLoopbackRemote(r.RemoteAddr)
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
