package web

import (
	"fmt"
	"net/http"
	"strings"
)

// handleUI serves the embedded dashboard page.
func (s *Server) handleUI(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html")
	fmt.Fprint(w, strings.ReplaceAll(uiHTML, "{{APP_VERSION}}", s.version))
}

const uiHTML = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="UTF-8">
<meta name="viewport" content="width=device-width, initial-scale=1.0">
<title>Townwatch</title>
<style>
  * { margin: 0; padding: 0; box-sizing: border-box; }
  body {
    font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif;
    background: #1b1b1d;
    color: #e4e4e7;
    min-height: 100vh;
  }
  .container { padding: 24px; max-width: 1400px; margin: 0 auto; }

  .header {
    display: flex;
    justify-content: space-between;
    align-items: center;
    margin-bottom: 24px;
    padding-bottom: 16px;
    border-bottom: 1px solid #27272a;
  }
  .header h1 { font-size: 24px; font-weight: 700; color: #fff; letter-spacing: -0.5px; }
  .header h1 span { color: #FB326E; }
  .header-buttons { display: flex; align-items: center; gap: 10px; }
  .btn {
    background: #FB326E;
    color: #fff;
    border: none;
    padding: 8px 16px;
    border-radius: 8px;
    font-size: 13px;
    font-weight: 600;
    cursor: pointer;
  }
  .btn:hover { opacity: 0.9; }

  .indicator {
    display: inline-flex;
    align-items: center;
    gap: 6px;
    font-size: 13px;
    padding: 6px 12px;
    border-radius: 999px;
    background: #27272a;
  }
  .indicator .dot { width: 8px; height: 8px; border-radius: 50%; background: #ef4444; }
  .indicator.online .dot { background: #22c55e; }
  .indicator.connecting .dot { background: #eab308; }

  .stats { display: flex; gap: 16px; margin-bottom: 24px; }
  .stat {
    flex: 1;
    background: #232326;
    border: 1px solid #27272a;
    border-radius: 10px;
    padding: 14px 18px;
  }
  .stat .value { font-size: 26px; font-weight: 700; color: #fff; }
  .stat .label { font-size: 12px; color: #a1a1aa; text-transform: uppercase; letter-spacing: 0.5px; }

  .grid { display: grid; grid-template-columns: 2fr 1fr; gap: 24px; }
  .panel {
    background: #232326;
    border: 1px solid #27272a;
    border-radius: 10px;
    padding: 16px;
    margin-bottom: 24px;
  }
  .panel h2 { font-size: 14px; color: #a1a1aa; text-transform: uppercase; letter-spacing: 0.5px; margin-bottom: 12px; }
  .empty { color: #71717a; font-size: 13px; }

  .town { display: flex; flex-wrap: wrap; align-items: flex-end; gap: 16px; min-height: 160px; }
  .building {
    background: #2f2f34;
    border: 1px solid #3f3f46;
    border-radius: 6px 6px 0 0;
    padding: 10px;
    min-width: 110px;
  }
  .building .name { font-size: 12px; font-weight: 600; color: #fff; margin-bottom: 8px; text-align: center; }
  .windows { display: grid; grid-template-columns: repeat(2, 1fr); gap: 6px; }
  .window {
    background: #18181b;
    border: 1px solid #3f3f46;
    border-radius: 3px;
    font-size: 10px;
    color: #a1a1aa;
    padding: 6px 4px;
    text-align: center;
    transition: background 0.2s, color 0.2s;
  }
  .window.active { background: #facc15; color: #18181b; box-shadow: 0 0 10px #facc15; }

  .ticker {
    font-family: ui-monospace, SFMono-Regular, Menlo, monospace;
    font-size: 13px;
    background: #18181b;
    border-radius: 6px;
    padding: 10px 12px;
    white-space: nowrap;
    overflow: hidden;
    text-overflow: ellipsis;
  }

  .billboard { list-style: none; max-height: 420px; overflow-y: auto; }
  .billboard li { padding: 8px 0; border-bottom: 1px solid #27272a; font-size: 13px; }
  .billboard li:last-child { border-bottom: none; }
  .billboard .evt { color: #FB326E; font-weight: 600; }
  .billboard .time { color: #71717a; font-size: 11px; float: right; }
  .billboard .msg { color: #d4d4d8; margin-top: 2px; word-break: break-all; }
  .log-ERROR .msg { color: #f87171; }
  .log-WARN .msg, .log-WARNING .msg { color: #facc15; }
  .log-DEBUG .msg { color: #a1a1aa; }

  .tools { display: grid; grid-template-columns: repeat(auto-fill, minmax(180px, 1fr)); gap: 10px; }
  .tool { border: 1px solid #27272a; border-radius: 8px; padding: 10px; border-left: 3px solid #ef4444; }
  .tool.ok { border-left-color: #22c55e; }
  .tool .name { font-weight: 600; color: #fff; font-size: 13px; }
  .tool .message { font-size: 12px; color: #a1a1aa; margin-top: 4px; }

  .accordion-item { border: 1px solid #27272a; border-radius: 8px; margin-bottom: 8px; }
  .accordion-header {
    display: flex;
    justify-content: space-between;
    padding: 10px 12px;
    cursor: pointer;
    font-weight: 600;
    font-size: 13px;
  }
  .accordion-header:hover { background: #2a2a2e; }
  .accordion-body { display: none; padding: 0 12px 10px; }
  .accordion-item.open .accordion-body { display: block; }
  .plugin { font-size: 12px; padding: 4px 0; color: #d4d4d8; }
  .plugin .deps { color: #71717a; }
  .tag { background: #27272a; border-radius: 4px; padding: 1px 6px; color: #d4d4d8; }
  .tools-bar { display: flex; flex-wrap: wrap; gap: 12px; font-size: 12px; margin-bottom: 12px; }
  .tools-bar .ok { color: #22c55e; }
  .tools-bar .down { color: #ef4444; }

  .logs {
    font-family: ui-monospace, SFMono-Regular, Menlo, monospace;
    font-size: 11px;
    max-height: 220px;
    overflow-y: auto;
    background: #18181b;
    border-radius: 6px;
    padding: 8px;
  }
  .logs .line { white-space: pre-wrap; word-break: break-all; }
  .logs .ERROR { color: #f87171; }
  .logs .WARN { color: #facc15; }
  .logs .DEBUG { color: #71717a; }

  .footer { color: #52525b; font-size: 12px; text-align: center; padding: 12px; }
</style>
</head>
<body>
<div class="container">
  <div class="header">
    <h1>Town<span>watch</span></h1>
    <div class="header-buttons">
      <span id="refreshed" class="empty"></span>
      <button class="btn" data-action="refresh">Refresh</button>
      <span id="indicator" class="indicator"><span class="dot"></span><span class="text">Disconnected</span></span>
    </div>
  </div>
  <div id="app"></div>
</div>
<div class="footer" id="footer"></div>
<script>
(function() {
  var app = document.getElementById('app');
  var indicatorEl = document.getElementById('indicator');
  var refreshedEl = document.getElementById('refreshed');
  var footerEl = document.getElementById('footer');
  var appVersion = '{{APP_VERSION}}';
  if (footerEl) footerEl.textContent = 'Townwatch ' + appVersion + ' · Real-time updates';
  var view = null;
  var ws = null;
  var wsReconnectDelay = 3000;

  function escHtml(s) {
    return String(s == null ? '' : s)
      .replace(/&/g,'&amp;').replace(/</g,'&lt;').replace(/>/g,'&gt;')
      .replace(/"/g,'&quot;');
  }

  function ts(d) {
    if (!d) return '-';
    var dt = new Date(d);
    if (isNaN(dt) || dt.getFullYear() < 2000) return '-';
    return dt.toLocaleTimeString();
  }

  function renderIndicator(c) {
    indicatorEl.classList.toggle('online', !!c.online);
    indicatorEl.classList.toggle('connecting', c.state === 'connecting');
    indicatorEl.querySelector('.text').textContent = c.label;
  }

  function renderStats(s) {
    return '<div class="stats">' +
      '<div class="stat"><div class="value">' + s.tools + '</div><div class="label">Tools</div></div>' +
      '<div class="stat"><div class="value">' + s.plugins + '</div><div class="label">Plugins</div></div>' +
      '<div class="stat"><div class="value">' + s.domains + '</div><div class="label">Domains</div></div>' +
      '</div>';
  }

  function renderToolsBar(tools) {
    return '<div class="tools-bar">' + tools.map(function(t) {
      return '<span class="' + (t.ok ? 'ok' : 'down') + '" title="' + escHtml(t.message) + '">● ' + escHtml(t.name) + '</span>';
    }).join('') + '</div>';
  }

  function renderTown(town) {
    if (!town.length) return '<div class="empty">No plugins loaded</div>';
    return '<div class="town">' + town.map(function(b) {
      return '<div class="building"><div class="name">' + escHtml(b.domain) + '</div><div class="windows">' +
        b.windows.map(function(w) {
          return '<div class="window' + (w.active ? ' active' : '') + '" title="' + escHtml(w.plugin) + '">' +
            escHtml(w.label) + '</div>';
        }).join('') + '</div></div>';
    }).join('') + '</div>';
  }

  function renderBillboard(entries) {
    if (!entries.length) return '<div class="empty">Waiting for events…</div>';
    return '<ul class="billboard">' + entries.map(function(e) {
      return '<li class="' + escHtml(e.class || '') + '"><span class="evt">' + escHtml(e.name) + '</span>' +
        '<span class="time">' + ts(e.time) + '</span><div class="msg">' + escHtml(e.message) + '</div></li>';
    }).join('') + '</ul>';
  }

  function renderTools(tools) {
    if (!tools.length) return '<div class="empty">No tools reported</div>';
    return '<div class="tools">' + tools.map(function(t) {
      return '<div class="tool' + (t.ok ? ' ok' : '') + '"><div class="name">' + escHtml(t.name) + '</div>' +
        '<div class="message">' + escHtml(t.message) + '</div></div>';
    }).join('') + '</div>';
  }

  function renderDomains(domains) {
    if (!domains.length) return '<div class="empty">No domains</div>';
    return domains.map(function(d) {
      return '<div class="accordion-item' + (d.open ? ' open' : '') + '">' +
        '<div class="accordion-header" data-action="toggle-domain" data-domain="' + escHtml(d.name) + '">' +
        '<span>' + escHtml(d.name) + '</span><span>' + d.plugins.length + '</span></div>' +
        '<div class="accordion-body">' + d.plugins.map(function(p) {
          var deps = ' <span class="deps">→ ' + (p.dependencies.length ? p.dependencies.map(function(d) {
            return '<span class="tag">' + escHtml(d) + '</span>';
          }).join(' ') : 'none') + '</span>';
          return '<div class="plugin">' + escHtml(p.name) + deps + '</div>';
        }).join('') + '</div></div>';
    }).join('');
  }

  function renderLogs(logs) {
    if (!logs.length) return '<div class="empty">No logs yet</div>';
    return logs.map(function(l) {
      return '<div class="line ' + escHtml(l.label) + '">' + escHtml(l.message) + '</div>';
    }).join('');
  }

  function render() {
    if (!view) return;
    renderIndicator(view.connection);
    refreshedEl.textContent = view.refreshAgo || 'never refreshed';
    var logsEl = document.getElementById('logs');
    var stick = !logsEl || logsEl.scrollTop + logsEl.clientHeight >= logsEl.scrollHeight - 4;
    app.innerHTML =
      renderStats(view.stats) +
      '<div class="grid"><div>' +
        '<div class="panel"><h2>Town</h2>' + renderToolsBar(view.tools) + renderTown(view.town) + '</div>' +
        '<div class="panel"><h2>Ticker</h2><div class="ticker">' + (escHtml(view.ticker) || '&nbsp;') + '</div></div>' +
        '<div class="panel"><h2>Tools</h2>' + renderTools(view.tools) + '</div>' +
        '<div class="panel"><h2>Logs</h2><div class="logs" id="logs">' + renderLogs(view.logs) + '</div></div>' +
      '</div><div>' +
        '<div class="panel"><h2>Recent events</h2>' + renderBillboard(view.billboard) + '</div>' +
        '<div class="panel"><h2>Domains</h2>' + renderDomains(view.domains) + '</div>' +
      '</div></div>';
    logsEl = document.getElementById('logs');
    if (stick && logsEl) logsEl.scrollTop = logsEl.scrollHeight;
  }

  function post(path, body) {
    return fetch(path, {
      method: 'POST',
      headers: { 'Content-Type': 'application/json' },
      body: body ? JSON.stringify(body) : '{}'
    }).catch(function(e) { console.error('POST ' + path + ' failed:', e); });
  }

  function fetchView() {
    fetch('/api/view').then(function(r) { return r.json(); }).then(function(v) {
      view = v;
      render();
    }).catch(function(e) { console.error('Failed to fetch view:', e); });
  }

  // One delegated listener survives every re-render.
  document.addEventListener('click', function(e) {
    var el = e.target.closest('[data-action]');
    if (!el) return;
    var action = el.getAttribute('data-action');
    if (action === 'toggle-domain') {
      post('/api/domains/toggle', { name: el.getAttribute('data-domain') });
    } else if (action === 'refresh') {
      post('/api/refresh');
    }
  });

  function connectWebSocket() {
    var protocol = window.location.protocol === 'https:' ? 'wss:' : 'ws:';
    var wsUrl = protocol + '//' + window.location.host + '/ws';

    try {
      ws = new WebSocket(wsUrl);

      ws.onmessage = function(event) {
        try {
          view = JSON.parse(event.data);
          render();
        } catch(e) {
          console.error('Failed to parse WebSocket message:', e);
        }
      };

      ws.onclose = function() {
        ws = null;
        setTimeout(connectWebSocket, wsReconnectDelay);
      };

      ws.onerror = function(error) {
        console.error('WebSocket error:', error);
      };
    } catch(e) {
      console.error('Failed to create WebSocket:', e);
      setTimeout(connectWebSocket, wsReconnectDelay);
    }
  }

  connectWebSocket();

  // Keeps "refreshed N ago" current and covers a dropped socket.
  setInterval(fetchView, 5000);
})();
</script>
</body>
</html>`
