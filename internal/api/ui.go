package api

import (
	"net/http"
)

// runConsoleHTML is a single page for operators: start a scene, follow its events,
// acknowledge dialogue and stop it.
const runConsoleHTML = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>ActionGraph - Run Console</title>
    <style>
        * { box-sizing: border-box; margin: 0; padding: 0; }
        body { font-family: monospace; background: #1a1a2e; color: #eee; height: 100vh; display: flex; flex-direction: column; }
        header, .controls, footer { background: #16213e; padding: 10px 20px; display: flex; gap: 10px; align-items: center; }
        header { justify-content: space-between; border-bottom: 1px solid #0f3460; }
        header h1 { font-size: 16px; font-weight: normal; }
        #status.connected { color: #95d5b2; }
        #status.disconnected { color: #fca5a5; }
        #status.connecting { color: #fcd34d; }
        input, button { font-family: monospace; background: #0f3460; color: #eee; border: 1px solid #1f4a80; padding: 4px 8px; }
        button:disabled { opacity: 0.5; }
        #events { flex: 1; overflow-y: auto; padding: 10px; }
        .event { padding: 6px 10px; margin-bottom: 3px; background: #16213e; border-left: 3px solid #0f3460; font-size: 13px; display: flex; gap: 12px; }
        .event.level-warning { border-left-color: #d97706; }
        .event.level-error { border-left-color: #dc2626; }
        .event .ts { color: #888; }
        .event .name { color: #7dd3fc; min-width: 180px; }
        #run { color: #fcd34d; }
        #result.error { color: #fca5a5; }
    </style>
</head>
<body>
    <header>
        <h1>ActionGraph - Run Console</h1>
        <span id="status" class="disconnected">disconnected</span>
    </header>
    <div class="controls">
        <input type="text" id="sceneId" placeholder="scene id">
        <button id="startBtn" onclick="startRun()">Start</button>
        <button id="ackBtn" onclick="ack()" disabled>Next line</button>
        <button id="stopBtn" onclick="stopRun()" disabled>Stop</button>
        <span id="run"></span>
        <span id="result"></span>
    </div>
    <div id="events"></div>
    <footer><span id="count">0</span>&nbsp;events</footer>

    <script>
        const eventsDiv = document.getElementById('events');
        const statusEl = document.getElementById('status');
        const resultEl = document.getElementById('result');
        let runId = '';
        let ws = null;
        let count = 0;

        function setStatus(s) { statusEl.className = s; statusEl.textContent = s; }

        function show(ok, msg) {
            resultEl.className = ok ? '' : 'error';
            resultEl.textContent = msg;
        }

        function text(tag, cls, value) {
            const el = document.createElement(tag);
            el.className = cls;
            el.textContent = value;
            return el;
        }

        function render(e) {
            const div = document.createElement('div');
            div.className = 'event level-' + e.level;
            div.appendChild(text('span', 'ts', new Date(e.ts).toLocaleTimeString('en-US', { hour12: false })));
            div.appendChild(text('span', 'name', e.event));
            if (e.fields) div.appendChild(text('span', 'fields', JSON.stringify(e.fields)));
            eventsDiv.appendChild(div);
            document.getElementById('count').textContent = ++count;
            eventsDiv.scrollTop = eventsDiv.scrollHeight;
            while (eventsDiv.children.length > 500) eventsDiv.removeChild(eventsDiv.firstChild);
            if (e.session_id === runId && /^scene\.(completed|failed|stopped)$/.test(e.event)) ended();
        }

        function connect() {
            if (ws) ws.close();
            setStatus('connecting');
            const proto = location.protocol === 'https:' ? 'wss:' : 'ws:';
            const query = runId ? '?session=' + encodeURIComponent(runId) : '';
            ws = new WebSocket(proto + '//' + location.host + '/ws/events' + query);
            ws.onopen = function() { setStatus('connected'); };
            ws.onmessage = function(msg) { try { render(JSON.parse(msg.data)); } catch (err) { console.error(err); } };
            ws.onclose = function() { setStatus('disconnected'); };
        }

        function call(method, path, body) {
            return fetch(path, {
                method: method,
                headers: { 'Content-Type': 'application/json' },
                body: body ? JSON.stringify(body) : undefined
            }).then(function(res) { return res.json(); });
        }

        function running(id) {
            runId = id;
            document.getElementById('run').textContent = id;
            document.getElementById('ackBtn').disabled = false;
            document.getElementById('stopBtn').disabled = false;
            eventsDiv.innerHTML = '';
            count = 0;
            connect();
        }

        function ended() {
            document.getElementById('ackBtn').disabled = true;
            document.getElementById('stopBtn').disabled = true;
        }

        function startRun() {
            const sceneId = document.getElementById('sceneId').value.trim();
            if (!sceneId) { show(false, 'enter a scene id'); return; }
            call('POST', '/runs', { scene_id: sceneId }).then(function(data) {
                if (data.id) { running(data.id); show(true, ''); } else { show(false, data.error || 'start failed'); }
            }).catch(function() { show(false, 'network error'); });
        }

        function ack() {
            call('POST', '/runs/' + runId + '/ack').then(function(data) {
                show(data.ok, data.ok ? '' : data.error);
            });
        }

        function stopRun() {
            call('DELETE', '/runs/' + runId).then(function(data) {
                if (data.error) show(false, data.error); else ended();
            });
        }

        connect();
    </script>
</body>
</html>`

// uiHandler serves the run console page.
func uiHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write([]byte(runConsoleHTML))
}
