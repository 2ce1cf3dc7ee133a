package server

import (
	"context"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/coder/websocket"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Send pings to peer with this period.
	pingPeriod = 54 * time.Second

	// Maximum message size allowed from peer.
	maxMessageSize = 512
)

func (s *PreviewServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if !s.checkOrigin(r) {
		http.Error(w, "Origin not allowed", http.StatusForbidden)
		return
	}

	// Origin was checked above against the configured list.
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		s.logger.Warn(r.Context(), err, "WebSocket upgrade failed")
		return
	}
	conn.SetReadLimit(maxMessageSize)

	client := &Client{
		conn:   conn,
		send:   make(chan []byte, 256),
		server: s,
	}

	select {
	case s.register <- client:
	case <-s.done:
		conn.Close(websocket.StatusGoingAway, "server shutting down")
		return
	}

	go client.writePump()
	client.readPump()
}

// checkOrigin accepts same-origin requests, the configured allowed origins,
// and the local addresses of the server's own port.
func (s *PreviewServer) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return false
	}

	originURL, err := url.Parse(origin)
	if err != nil {
		return false
	}
	if originURL.Scheme != "http" && originURL.Scheme != "https" {
		return false
	}

	if s.isAllowedOrigin(origin) {
		return true
	}
	if originURL.Host == r.Host {
		return true
	}

	port := strconv.Itoa(s.config.Server.Port)
	allowedHosts := []string{
		net.JoinHostPort(s.config.Server.Host, port),
		net.JoinHostPort("localhost", port),
		net.JoinHostPort("127.0.0.1", port),
	}
	for _, allowed := range allowedHosts {
		if originURL.Host == allowed {
			return true
		}
	}

	return false
}

func (s *PreviewServer) runWebSocketHub(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return
		case client := <-s.register:
			if client == nil || client.conn == nil {
				continue
			}
			s.clientsMutex.Lock()
			s.clients[client.conn] = client
			clientCount := len(s.clients)
			s.clientsMutex.Unlock()
			s.logger.Debug(ctx, "Client connected", "clients", clientCount)

		case conn := <-s.unregister:
			s.dropClient(ctx, conn, websocket.StatusNormalClosure)

		case message := <-s.broadcast:
			s.clientsMutex.RLock()
			var failedClients []*websocket.Conn
			for conn, client := range s.clients {
				select {
				case client.send <- message:
				default:
					failedClients = append(failedClients, conn)
				}
			}
			s.clientsMutex.RUnlock()

			for _, conn := range failedClients {
				s.dropClient(ctx, conn, websocket.StatusPolicyViolation)
			}
		}
	}
}

func (s *PreviewServer) dropClient(ctx context.Context, conn *websocket.Conn, status websocket.StatusCode) {
	if conn == nil {
		return
	}
	s.clientsMutex.Lock()
	client, ok := s.clients[conn]
	if ok {
		delete(s.clients, conn)
		close(client.send)
	}
	clientCount := len(s.clients)
	s.clientsMutex.Unlock()

	if ok {
		conn.Close(status, "")
		s.logger.Debug(ctx, "Client disconnected", "clients", clientCount)
	}
}

// ClientCount returns the number of connected browsers.
func (s *PreviewServer) ClientCount() int {
	s.clientsMutex.RLock()
	defer s.clientsMutex.RUnlock()
	return len(s.clients)
}

// readPump waits for the peer to go away. Browsers never send anything
// meaningful, so data messages close the connection; control frames keep
// flowing so pings are answered.
func (c *Client) readPump() {
	ctx := c.conn.CloseRead(context.Background())
	<-ctx.Done()

	select {
	case c.server.unregister <- c.conn:
	case <-c.server.done:
	}
}

// writePump sends queued messages and periodic pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close(websocket.StatusNormalClosure, "")
	}()

	ctx := context.Background()
	for {
		select {
		case message, ok := <-c.send:
			if !ok {
				return
			}
			writeCtx, cancel := context.WithTimeout(ctx, writeWait)
			err := c.conn.Write(writeCtx, websocket.MessageText, message)
			cancel()
			if err != nil {
				c.server.logger.Debug(ctx, "WebSocket write failed", "error", err.Error())
				return
			}

		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, writeWait)
			err := c.conn.Ping(pingCtx)
			cancel()
			if err != nil {
				return
			}
		}
	}
}
