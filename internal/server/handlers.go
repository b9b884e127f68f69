// Package server exposes HTTP handlers, including WebSocket upgrades, health
// checks, and the built-in test page.
package server

import (
	"fmt"
	"net"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// WebSocketHandler upgrades the request, assigns the connection a fresh id,
// and hands the client to the hub, which accepts it and starts its pumps.
func (s *Server) WebSocketHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed. WebSocket endpoint only accepts GET requests.", http.StatusMethodNotAllowed)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("WebSocket upgrade failed", "error", err)
		return
	}

	client := NewClient(conn, s.hub, uuid.NewString(), remoteHost(r.RemoteAddr), s.config.MaxMessageSize)

	select {
	case s.hub.register <- client:
	case <-s.hub.ctx.Done():
		client.closeConnection()
	}
}

// remoteHost strips the port from a transport address.
func remoteHost(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}

func newUpgrader(origins *originPolicy) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     origins.checkOrigin,
	}
}

// HealthHandler provides a simple health check endpoint that returns server status.
// It responds with a plain text message indicating the server is running.
func HealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprintf(w, "LAN chat server is running!")
}

// TestPageHandler serves a bare HTML page for poking at the WebSocket
// protocol by hand: register a name, send public messages, watch the roster.
func (s *Server) TestPageHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	if _, err := fmt.Fprint(w, testPageHTML); err != nil {
		s.logger.Warn("Error writing HTML response", "error", err)
	}
}

const testPageHTML = `<!DOCTYPE html>
<html>
<head>
    <title>LAN Chat WebSocket Test</title>
    <style>
        body { font-family: Arial, sans-serif; margin: 20px; }
        #log, #roster { border: 1px solid #ccc; padding: 10px; margin: 10px 0; background-color: #f9f9f9; }
        #log { height: 300px; overflow-y: scroll; }
        input[type="text"] { width: 300px; padding: 5px; margin-right: 10px; }
    </style>
</head>
<body>
    <h1>LAN Chat WebSocket Test</h1>
    <div>
        <input type="text" id="name" placeholder="Display name">
        <button onclick="register()">Register</button>
    </div>
    <div>
        <input type="text" id="text" placeholder="Public message">
        <button onclick="sendPublic()">Send</button>
    </div>
    <div id="roster"></div>
    <div id="log"></div>

    <script>
        const log = document.getElementById('log');
        const roster = document.getElementById('roster');
        const ws = new WebSocket((location.protocol === 'https:' ? 'wss://' : 'ws://') + location.host + '/ws');

        function line(text) {
            const el = document.createElement('div');
            el.textContent = text;
            log.appendChild(el);
            log.scrollTop = log.scrollHeight;
        }

        function send(type, payload) {
            ws.send(JSON.stringify({ type: type, payload: payload }));
        }

        function register() {
            send('register', { name: document.getElementById('name').value, deviceName: navigator.platform });
        }

        function sendPublic() {
            const input = document.getElementById('text');
            if (input.value.trim()) {
                send('public-message', { text: input.value });
                input.value = '';
            }
        }

        ws.onopen = function() { line('connected'); };
        ws.onclose = function() { line('disconnected'); };
        ws.onmessage = function(event) {
            const frame = JSON.parse(event.data);
            if (frame.type === 'roster-update') {
                roster.textContent = 'Online: ' + frame.payload.map(function(u) { return u.name; }).join(', ');
                return;
            }
            if (frame.type === 'public-message') {
                line(frame.payload.from.name + ': ' + frame.payload.text);
                return;
            }
            line(event.data);
        };
    </script>
</body>
</html>`
