package serve

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ormasoftchile/stanza/pkg/access"
	"github.com/ormasoftchile/stanza/pkg/dispatch"
	"github.com/ormasoftchile/stanza/pkg/display"
	"github.com/ormasoftchile/stanza/pkg/engine"
	"github.com/ormasoftchile/stanza/pkg/nav"
)

const (
	writeWait          = 10 * time.Second
	pongWait           = 60 * time.Second
	pingPeriod         = (pongWait * 9) / 10
	maxMessageSize     = 4096
	outboundBufferSize = 64
	incomingBufferSize = 16
)

// inboundFrame is one client message. Type selects the shape: start
// carries entry, input carries value, select carries key; abort, back
// and stop carry nothing.
type inboundFrame struct {
	Type  string `json:"type"`
	Entry string `json:"entry,omitempty"`
	Value string `json:"value,omitempty"`
	Key   string `json:"key,omitempty"`
}

// outcomeFrame reports a finished run to the client.
type outcomeFrame struct {
	Type   string `json:"type"` // outcome
	RunID  string `json:"run_id"`
	State  string `json:"state"`
	Error  string `json:"error,omitempty"`
	Result any    `json:"result,omitempty"`
}

// Session is one connected client. The engine runs on its own
// goroutine in suspending mode, parking on the answer and selection
// channels; the read loop below never blocks on engine work.
type Session struct {
	ID       string
	server   *Server
	conn     *websocket.Conn
	identity *access.Identity
	history  *nav.History
	log      *slog.Logger

	answers    chan clientAnswer
	selections chan clientSelection
	outbound   chan []byte
	replyWait  time.Duration

	mu        sync.Mutex
	running   bool
	cancelRun context.CancelFunc
}

func newSession(id string, srv *Server, conn *websocket.Conn) *Session {
	return &Session{
		ID:         id,
		server:     srv,
		conn:       conn,
		identity:   access.Guest(),
		history:    nav.NewHistory(0),
		log:        srv.log.With("session", id),
		// Unbuffered on purpose: a reply only lands when the engine is
		// parked waiting for it, so stale replies age out in deliver.
		answers:    make(chan clientAnswer),
		selections: make(chan clientSelection),
		outbound:   make(chan []byte, outboundBufferSize),
		replyWait:  writeWait,
	}
}

// run owns the connection: a write pump on this goroutine's sibling,
// the read loop here. Returns when the client disconnects.
func (s *Session) run() {
	defer func() {
		s.stopRun()
		_ = s.conn.Close()
		s.server.dropSession(s.ID)
		s.log.Info("session closed")
	}()

	s.conn.SetReadLimit(maxMessageSize)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	done := make(chan struct{})
	go s.writePump(done)
	defer close(done)

	incoming := make(chan []byte, incomingBufferSize)
	go s.readMessages(incoming)

	for msg := range incoming {
		s.handleFrame(msg)
	}
}

func (s *Session) readMessages(incoming chan []byte) {
	for {
		_, message, err := s.conn.ReadMessage()
		if err != nil {
			close(incoming)
			return
		}
		incoming <- message
	}
}

func (s *Session) writePump(done chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case frame := <-s.outbound:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				s.log.Warn("write failed", "error", err)
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

// handleFrame routes one client message. Interaction replies go to
// the parked engine through the channels; a reply with no parked
// reader is stale and dropped.
func (s *Session) handleFrame(msg []byte) {
	var f inboundFrame
	if err := json.Unmarshal(msg, &f); err != nil {
		s.log.Warn("bad frame", "error", err)
		return
	}

	switch f.Type {
	case "start":
		s.startRun(f.Entry)
	case "input":
		s.offerAnswer(clientAnswer{value: f.Value})
	case "abort":
		s.offerAbort()
	case "select":
		s.offerSelection(clientSelection{key: f.Key})
	case "back":
		s.offerSelection(clientSelection{back: true})
	case "stop":
		s.stopRun()
	default:
		s.log.Warn("unknown frame type", "type", f.Type)
	}
}

// deliver hands a reply to the parked engine without ever blocking the
// read loop. A reply nobody is parked on is stale: once replyWait
// passes the pending send is abandoned through its select, so it can
// never surface on a later prompt.
func (s *Session) deliver(send func(abandon <-chan struct{}) bool) {
	done := make(chan bool, 1)
	abandon := make(chan struct{})
	go func() { done <- send(abandon) }()
	select {
	case <-done:
	case <-time.After(s.replyWait):
		close(abandon)
		s.log.Warn("reply dropped, no step waiting")
	}
}

func (s *Session) offerAnswer(a clientAnswer) {
	s.deliver(func(abandon <-chan struct{}) bool {
		select {
		case s.answers <- a:
			return true
		case <-abandon:
			return false
		}
	})
}

func (s *Session) offerSelection(sel clientSelection) {
	s.deliver(func(abandon <-chan struct{}) bool {
		select {
		case s.selections <- sel:
			return true
		case <-abandon:
			return false
		}
	})
}

// offerAbort lands on whichever channel the engine is parked on.
func (s *Session) offerAbort() {
	s.deliver(func(abandon <-chan struct{}) bool {
		select {
		case s.answers <- clientAnswer{abort: true}:
			return true
		case s.selections <- clientSelection{abort: true}:
			return true
		case <-abandon:
			return false
		}
	})
}

// startRun launches the engine goroutine for one run. A session hosts
// at most one run at a time.
func (s *Session) startRun(entry string) {
	if entry == "" {
		entry = s.server.entry
	}

	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		s.emit(display.ErrorNotice{
			Header: "Run in progress",
			Reason: "this session already has an active run",
			Hint:   "stop it first",
		})
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.running = true
	s.cancelRun = cancel
	s.mu.Unlock()

	eng := engine.New(engine.Config{
		Document:     s.server.doc,
		Auth:         s.identity,
		Display:      frameDisplay{s: s},
		Input:        sessionInput{s: s},
		Navigator:    sessionNavigator{s: s},
		Store:        s.server.store,
		Funcs:        s.server.funcs,
		Scheduler:    engine.Suspending,
		Transactions: s.server.store != nil,
		History:      s.history,
		Logger:       s.log,
	})

	go func() {
		defer func() {
			s.mu.Lock()
			s.running = false
			s.cancelRun = nil
			s.mu.Unlock()
			cancel()
		}()

		out := eng.Run(ctx, entry)
		s.sendOutcome(out)
	}()
}

func (s *Session) stopRun() {
	s.mu.Lock()
	cancel := s.cancelRun
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (s *Session) sendOutcome(out engine.Outcome) {
	frame := outcomeFrame{
		Type:  "outcome",
		RunID: out.RunID,
		State: out.State.String(),
	}
	if out.Err != nil {
		frame.Error = out.Err.Error()
	}
	if out.Result != nil {
		frame.Result = out.Result.Value
	}
	data, err := json.Marshal(frame)
	if err != nil {
		s.log.Error("marshal outcome", "error", err)
		return
	}
	s.enqueue(data)
}

// emit serializes a display event onto the outbound queue.
func (s *Session) emit(e display.Event) {
	data, err := display.MarshalFrame(e)
	if err != nil {
		s.log.Error("marshal frame", "kind", display.Kind(e), "error", err)
		return
	}
	s.enqueue(data)
}

func (s *Session) enqueue(data []byte) {
	select {
	case s.outbound <- data:
	default:
		s.log.Warn("outbound queue full, frame dropped")
	}
}

// Identity exposes the session identity so host-registered sign-in
// functions can swap it mid-run.
func (s *Session) Identity() *access.Identity {
	return s.identity
}

var _ dispatch.Input = sessionInput{}
var _ engine.Navigator = sessionNavigator{}
var _ display.Display = frameDisplay{}
