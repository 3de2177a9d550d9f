// Package transport exposes the Caller API over a
// websocket so a frontend has something concrete to connect to. One
// connection may drive many sessions; each inbound request is a JSON
// frame, and run events stream back as JSON frames tagged with the
// request id.
package transport

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/nextlevelbuilder/agentrt/internal/agent"
	"github.com/nextlevelbuilder/agentrt/internal/engine"
	"github.com/nextlevelbuilder/agentrt/pkg/protocol"
)

// Request is one inbound frame.
type Request struct {
	ID      string `json:"id"`
	Type    string `json:"type"` // "send_message" | "cancel" | "reset_session" | "load_model" | "set_project_root"
	Session string `json:"session,omitempty"`

	// send_message
	Text        string   `json:"text,omitempty"`
	Attachments []string `json:"attachments,omitempty"`
	MaxIters    int      `json:"max_iterations,omitempty"`
	Temperature float64  `json:"temperature,omitempty"`

	// load_model
	ModelPath string `json:"model_path,omitempty"`
	GPU       string `json:"gpu,omitempty"` // "auto" | "cpu"
	Thinking  bool   `json:"thinking,omitempty"`

	// set_project_root
	Path string `json:"path,omitempty"`
}

// Frame is one outbound frame: either an ack/error for a request, or a
// run event.
type Frame struct {
	ID    string          `json:"id,omitempty"`
	Type  string          `json:"type"` // "ack" | "error" | "event"
	Error string          `json:"error,omitempty"`
	Event *protocol.Event `json:"event,omitempty"`
}

// Server bridges websocket connections to one Runtime.
type Server struct {
	runtime  *agent.Runtime
	upgrader websocket.Upgrader
}

func NewServer(rt *agent.Runtime) *Server {
	return &Server{
		runtime: rt,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Local IDE transport: same-machine frontends only.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// ServeHTTP upgrades and runs one connection until it closes.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("ws: upgrade failed", "error", err)
		return
	}
	c := &client{srv: s, conn: conn}
	c.run(r.Context())
}

// ListenAndServe serves the websocket endpoint at /ws until ctx ends.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/ws", s)

	httpSrv := &http.Server{Addr: addr, Handler: mux}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := httpSrv.ListenAndServe()
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

type client struct {
	srv  *Server
	conn *websocket.Conn

	writeMu sync.Mutex
}

func (c *client) send(f Frame) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.conn.WriteJSON(f); err != nil {
		slog.Debug("ws: write failed", "error", err)
	}
}

func (c *client) run(ctx context.Context) {
	defer c.conn.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	for {
		var req Request
		if err := c.conn.ReadJSON(&req); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				slog.Debug("ws: read ended", "error", err)
			}
			return
		}
		c.handle(ctx, req)
	}
}

func (c *client) handle(ctx context.Context, req Request) {
	switch req.Type {
	case "send_message":
		c.handleSend(ctx, req)

	case "cancel":
		c.srv.runtime.Cancel(req.Session)
		c.send(Frame{ID: req.ID, Type: "ack"})

	case "reset_session":
		if err := c.srv.runtime.ResetSession(req.Session); err != nil {
			c.send(Frame{ID: req.ID, Type: "error", Error: err.Error()})
			return
		}
		c.send(Frame{ID: req.ID, Type: "ack"})

	case "load_model":
		pref := engine.GPUAuto
		if req.GPU == "cpu" {
			pref = engine.GPUForceCPU
		}
		if err := c.srv.runtime.LoadModel(ctx, req.ModelPath, pref, req.Thinking); err != nil {
			c.send(Frame{ID: req.ID, Type: "error", Error: err.Error()})
			return
		}
		c.send(Frame{ID: req.ID, Type: "ack"})

	case "set_project_root":
		c.srv.runtime.SetProjectRoot(req.Path)
		c.send(Frame{ID: req.ID, Type: "ack"})

	default:
		c.send(Frame{ID: req.ID, Type: "error", Error: "unknown request type: " + req.Type})
	}
}

func (c *client) handleSend(ctx context.Context, req Request) {
	var atts []agent.Attachment
	for _, p := range req.Attachments {
		atts = append(atts, agent.Attachment{Path: p})
	}

	events, err := c.srv.runtime.SendMessage(ctx, req.Session, req.Text, atts, agent.RunConfig{
		MaxIterations: req.MaxIters,
		Temperature:   req.Temperature,
	})
	if err != nil {
		c.send(Frame{ID: req.ID, Type: "error", Error: err.Error()})
		return
	}
	c.send(Frame{ID: req.ID, Type: "ack"})

	// Relay on a separate goroutine so the read loop keeps serving
	// cancel requests for this same connection.
	go func() {
		for ev := range events {
			e := ev
			c.send(Frame{ID: req.ID, Type: "event", Event: &e})
		}
	}()
}

// marshalEvent is used by tests to pin the frame wire shape.
func marshalEvent(id string, ev protocol.Event) ([]byte, error) {
	return json.Marshal(Frame{ID: id, Type: "event", Event: &ev})
}
