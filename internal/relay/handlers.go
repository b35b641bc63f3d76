// Package relay exposes the HTTP surface: the WebSocket upgrade, a health
// check, and a self-contained browser test page for the chat.
package relay

import (
	"fmt"
	"net/http"

	"github.com/gorilla/websocket"
)

// WebSocketHandler upgrades the request and hands the connection to the
// hub, which registers it and launches its pumps. Until a join event
// arrives the connection is tracked but bound to no device.
func (h *Hub) WebSocketHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed. WebSocket endpoint only accepts GET requests.", http.StatusMethodNotAllowed)
		return
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.origins.check,
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warnf("websocket upgrade failed: %v", err)
		return
	}

	client := NewClient(conn, h, r.RemoteAddr)

	select {
	case h.register <- client:
	case <-h.ctx.Done():
		_ = conn.Close()
	}
}

// HealthHandler responds with a plain text message indicating the relay is
// up.
func HealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprintf(w, "Zimatlan Radio chat relay is running!")
}

// TestPageHandler serves a minimal chat client for exercising the relay by
// hand: join, send, react, rename, and typing signals against /ws.
func TestPageHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	html := `<!DOCTYPE html>
<html>
<head>
    <title>Zimatlan Radio Chat Test</title>
    <style>
        body { font-family: Arial, sans-serif; margin: 20px; max-width: 640px; }
        #messages { border: 1px solid #ccc; height: 300px; padding: 10px; overflow-y: scroll; margin: 10px 0; background: #f9f9f9; }
        #users, #typing { color: #555; margin: 5px 0; min-height: 1em; }
        input[type="text"] { width: 280px; padding: 5px; margin-right: 6px; }
        button { padding: 5px 12px; background: #007cba; color: white; border: none; cursor: pointer; }
        .msg em { color: #999; cursor: pointer; margin-left: 6px; }
    </style>
</head>
<body>
    <h1>Zimatlan Radio Chat Test</h1>
    <div>
        <input type="text" id="nameInput" placeholder="Display name...">
        <button onclick="join()">Join</button>
        <button onclick="rename()">Rename</button>
    </div>
    <div id="users"></div>
    <div id="messages"></div>
    <div id="typing"></div>
    <div>
        <input type="text" id="messageInput" placeholder="Type a message..." oninput="typing()">
        <button onclick="sendMessage()">Send</button>
    </div>

    <script>
        let ws = null;
        let deviceId = localStorage.getItem('radioChatDeviceId');
        if (!deviceId) {
            deviceId = 'dev_' + Math.random().toString(36).slice(2);
            localStorage.setItem('radioChatDeviceId', deviceId);
        }
        const messagesDiv = document.getElementById('messages');
        const typingTimers = {};

        function emit(event, data) {
            if (ws && ws.readyState === WebSocket.OPEN) {
                ws.send(JSON.stringify({event: event, data: data}));
            }
        }

        function renderMessage(msg) {
            let el = document.getElementById('m' + msg.id);
            if (!el) {
                el = document.createElement('div');
                el.id = 'm' + msg.id;
                el.className = 'msg';
                messagesDiv.appendChild(el);
            }
            const hearts = (msg.reactions && msg.reactions['❤️']) || [];
            el.innerHTML = '<strong>' + msg.username + ':</strong> ' + msg.text +
                ' <em onclick="react(' + msg.id + ')">❤️ ' + (hearts.length || '') + '</em>';
            messagesDiv.scrollTop = messagesDiv.scrollHeight;
        }

        function renderHistory(msgs) {
            messagesDiv.innerHTML = '';
            msgs.forEach(renderMessage);
        }

        function handle(frame) {
            const env = JSON.parse(frame);
            switch (env.event) {
                case 'chat_history':
                case 'refresh_history':
                    renderHistory(env.data); break;
                case 'receive_message':
                case 'message_updated':
                    renderMessage(env.data); break;
                case 'update_users':
                    document.getElementById('users').textContent = 'Listening: ' + env.data.join(', '); break;
                case 'user_typing':
                    showTyping(env.data); break;
                case 'user_stop_typing':
                    clearTyping(env.data.deviceId); break;
            }
        }

        function showTyping(data) {
            clearTimeout(typingTimers[data.deviceId]);
            document.getElementById('typing').textContent = data.username + ' is typing...';
            typingTimers[data.deviceId] = setTimeout(() => clearTyping(data.deviceId), 3000);
        }

        function clearTyping(id) {
            clearTimeout(typingTimers[id]);
            document.getElementById('typing').textContent = '';
        }

        function join() {
            const username = document.getElementById('nameInput').value.trim();
            if (!username) return;
            if (!ws) {
                ws = new WebSocket('ws://' + location.host + '/ws');
                ws.onmessage = e => e.data.split('\n').forEach(handle);
                ws.onopen = () => emit('join', {username: username, deviceId: deviceId});
                ws.onclose = () => { ws = null; };
            } else {
                emit('join', {username: username, deviceId: deviceId});
            }
        }

        function rename() {
            const username = document.getElementById('nameInput').value.trim();
            if (username) emit('change_username', username);
        }

        function sendMessage() {
            const input = document.getElementById('messageInput');
            emit('send_message', {username: document.getElementById('nameInput').value, text: input.value});
            emit('stop_typing', null);
            input.value = '';
        }

        function typing() { emit('typing', document.getElementById('nameInput').value); }

        function react(id) { emit('react_message', {messageId: id, reaction: '❤️', deviceId: deviceId}); }

        document.getElementById('messageInput').addEventListener('keypress', e => {
            if (e.key === 'Enter') sendMessage();
        });
    </script>
</body>
</html>`
	_, _ = fmt.Fprint(w, html)
}
