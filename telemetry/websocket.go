package telemetry

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"

	"go.viam.com/swerve/logging"
	"go.viam.com/swerve/utils"
)

const (
	wsSendBuffer   = 64
	wsWriteTimeout = time.Second
)

var upgrader = websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}

type wsClient struct {
	conn *websocket.Conn
	send chan []byte
}

// WebsocketSink serves samples as JSON text frames to every websocket client connected to
// /ws. Slow clients miss samples rather than stall the control loop.
type WebsocketSink struct {
	logger   logging.Logger
	listener net.Listener
	server   *http.Server
	workers  utils.StoppableWorkers

	mu      sync.RWMutex
	clients map[*wsClient]struct{}
	closed  bool
}

// NewWebsocketSink starts serving on addr. Use an addr with port 0 to pick a free port and
// Addr to find it.
func NewWebsocketSink(addr string, logger logging.Logger) (*WebsocketSink, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot listen on %q", addr)
	}
	ws := &WebsocketSink{
		logger:   logger,
		listener: listener,
		clients:  map[*wsClient]struct{}{},
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", ws.serveWS)
	ws.server = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	ws.workers = utils.NewStoppableWorkers(func(context.Context) {
		if err := ws.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorw("websocket telemetry server stopped", "error", err)
		}
	})
	logger.Infow("serving websocket telemetry", "addr", listener.Addr().String())
	return ws, nil
}

// Addr returns the address being served.
func (ws *WebsocketSink) Addr() net.Addr {
	return ws.listener.Addr()
}

// NumClients returns how many clients are connected.
func (ws *WebsocketSink) NumClients() int {
	ws.mu.RLock()
	defer ws.mu.RUnlock()
	return len(ws.clients)
}

func (ws *WebsocketSink) add(c *wsClient) bool {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	if ws.closed {
		return false
	}
	ws.clients[c] = struct{}{}
	return true
}

func (ws *WebsocketSink) remove(c *wsClient) {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	if _, ok := ws.clients[c]; ok {
		delete(ws.clients, c)
		close(c.send)
	}
}

func (ws *WebsocketSink) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		ws.logger.Debugw("websocket upgrade failed", "error", err)
		return
	}
	client := &wsClient{conn: conn, send: make(chan []byte, wsSendBuffer)}
	if !ws.add(client) {
		//nolint:errcheck
		conn.Close()
		return
	}
	ws.logger.Debugw("telemetry client connected", "remote", r.RemoteAddr)

	// Clients only listen; reading is what notices a closed connection.
	go func() {
		defer ws.remove(client)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	defer func() {
		//nolint:errcheck
		conn.Close()
	}()
	for b := range client.send {
		//nolint:errcheck
		conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
			ws.remove(client)
			return
		}
	}
}

// Publish broadcasts the sample to every connected client.
func (ws *WebsocketSink) Publish(_ context.Context, sample Sample) error {
	payload, err := json.Marshal(sample)
	if err != nil {
		return err
	}
	ws.mu.RLock()
	defer ws.mu.RUnlock()
	for c := range ws.clients {
		select {
		case c.send <- payload:
		default:
		}
	}
	return nil
}

// Close stops the server and disconnects every client.
func (ws *WebsocketSink) Close() error {
	ws.mu.Lock()
	ws.closed = true
	for c := range ws.clients {
		delete(ws.clients, c)
		close(c.send)
	}
	ws.mu.Unlock()

	err := ws.server.Close()
	ws.workers.Stop()
	return err
}
