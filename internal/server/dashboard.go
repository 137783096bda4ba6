package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

const dashboardHTML = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>Warden</title>
    <meta name="description" content="Continuous behavioral authentication risk engine">
    <link rel="icon" href="data:image/svg+xml,<svg xmlns='http://www.w3.org/2000/svg' viewBox='0 0 100 100'><text y='.9em' font-size='90'>&#9673;</text></svg>">
    <style>
        * { margin: 0; padding: 0; box-sizing: border-box; }

        :root {
            --bg: #09090b;
            --bg-subtle: #18181b;
            --border: #27272a;
            --text: #fafafa;
            --text-secondary: #a1a1aa;
            --text-tertiary: #52525b;
            --accent: #22c55e;
            --low: #22c55e;
            --medium: #eab308;
            --high: #f97316;
            --critical: #ef4444;
        }

        body {
            font-family: -apple-system, 'Segoe UI', Roboto, sans-serif;
            background: var(--bg);
            color: var(--text);
            min-height: 100vh;
            font-size: 14px;
            line-height: 1.5;
            -webkit-font-smoothing: antialiased;
        }

        .mono { font-family: ui-monospace, 'SF Mono', Menlo, monospace; }

        .container { max-width: 1200px; margin: 0 auto; padding: 0 24px; }

        header {
            border-bottom: 1px solid var(--border);
            padding: 16px 0;
            position: sticky;
            top: 0;
            background: var(--bg);
            z-index: 100;
        }

        .header-inner { display: flex; justify-content: space-between; align-items: center; }

        .logo { font-weight: 600; font-size: 16px; letter-spacing: 0.02em; }
        .logo span { color: var(--text-tertiary); font-weight: 400; }

        .conn { display: flex; align-items: center; gap: 8px; color: var(--text-secondary); font-size: 12px; }
        .conn-dot { width: 8px; height: 8px; border-radius: 50%; background: var(--text-tertiary); }
        .conn-dot.live { background: var(--accent); box-shadow: 0 0 8px var(--accent); }

        .stats {
            display: grid;
            grid-template-columns: repeat(auto-fit, minmax(180px, 1fr));
            gap: 16px;
            margin: 24px 0;
        }

        .stat {
            background: var(--bg-subtle);
            border: 1px solid var(--border);
            border-radius: 8px;
            padding: 16px;
        }

        .stat-label { color: var(--text-secondary); font-size: 12px; text-transform: uppercase; letter-spacing: 0.05em; }
        .stat-value { font-size: 28px; font-weight: 600; margin-top: 4px; }

        .columns { display: grid; grid-template-columns: 1fr 1fr; gap: 16px; margin-bottom: 48px; }
        @media (max-width: 900px) { .columns { grid-template-columns: 1fr; } }

        .panel {
            background: var(--bg-subtle);
            border: 1px solid var(--border);
            border-radius: 8px;
            overflow: hidden;
        }

        .panel-title {
            padding: 12px 16px;
            border-bottom: 1px solid var(--border);
            font-weight: 500;
            font-size: 13px;
            color: var(--text-secondary);
        }

        .feed { max-height: 460px; overflow-y: auto; }

        .feed-item {
            padding: 10px 16px;
            border-bottom: 1px solid var(--border);
            display: flex;
            align-items: baseline;
            gap: 10px;
            font-size: 13px;
        }
        .feed-item:last-child { border-bottom: none; }

        .feed-time { color: var(--text-tertiary); font-size: 11px; white-space: nowrap; }
        .feed-user { color: var(--text); }
        .feed-detail { color: var(--text-secondary); margin-left: auto; }

        .badge {
            font-size: 11px;
            padding: 1px 8px;
            border-radius: 10px;
            text-transform: uppercase;
            letter-spacing: 0.04em;
            white-space: nowrap;
        }
        .badge.low { color: var(--low); background: rgba(34,197,94,.12); }
        .badge.medium { color: var(--medium); background: rgba(234,179,8,.12); }
        .badge.high { color: var(--high); background: rgba(249,115,22,.12); }
        .badge.critical { color: var(--critical); background: rgba(239,68,68,.12); }
        .badge.alert { color: var(--critical); background: rgba(239,68,68,.12); }

        .empty { padding: 24px 16px; color: var(--text-tertiary); text-align: center; }

        table { width: 100%; border-collapse: collapse; font-size: 13px; }
        th, td { text-align: left; padding: 8px 16px; border-bottom: 1px solid var(--border); }
        th { color: var(--text-secondary); font-weight: 500; font-size: 12px; }
        tr:last-child td { border-bottom: none; }
    </style>
</head>
<body>
    <header>
        <div class="container header-inner">
            <div class="logo">warden <span>/ risk monitor</span></div>
            <div class="conn"><div class="conn-dot" id="connDot"></div><span id="connLabel">connecting</span></div>
        </div>
    </header>

    <main class="container">
        <div class="stats">
            <div class="stat"><div class="stat-label">Active Sessions</div><div class="stat-value mono" id="statSessions">&ndash;</div></div>
            <div class="stat"><div class="stat-label">Blocked Users</div><div class="stat-value mono" id="statBlocked">&ndash;</div></div>
            <div class="stat"><div class="stat-label">Baselines</div><div class="stat-value mono" id="statBaselines">&ndash;</div></div>
            <div class="stat"><div class="stat-label">Stream Clients</div><div class="stat-value mono" id="statClients">&ndash;</div></div>
        </div>

        <div class="columns">
            <div class="panel">
                <div class="panel-title">Live Alerts</div>
                <div class="feed" id="alertFeed"><div class="empty">No alerts yet</div></div>
            </div>
            <div class="panel">
                <div class="panel-title">Recent Assessments</div>
                <div class="feed" id="assessFeed"><div class="empty">Waiting for events</div></div>
            </div>
        </div>

        <div class="columns">
            <div class="panel">
                <div class="panel-title">Escalation Policy</div>
                <table id="policyTable"><tbody><tr><td class="empty">Loading&hellip;</td></tr></tbody></table>
            </div>
            <div class="panel">
                <div class="panel-title">Blocked Users</div>
                <table id="blockedTable"><tbody><tr><td class="empty">None</td></tr></tbody></table>
            </div>
        </div>
    </main>

    <script>
        var MAX_FEED = 50;

        function el(id) { return document.getElementById(id); }

        function esc(s) {
            return String(s == null ? '' : s).replace(/[&<>"]/g, function (ch) {
                return { '&': '&amp;', '<': '&lt;', '>': '&gt;', '"': '&quot;' }[ch];
            });
        }

        function fmtTime(ts) {
            var d = ts ? new Date(ts) : new Date();
            return d.toLocaleTimeString([], { hour12: false });
        }

        function prepend(feedID, html) {
            var feed = el(feedID);
            var empty = feed.querySelector('.empty');
            if (empty) empty.remove();
            var item = document.createElement('div');
            item.className = 'feed-item';
            item.innerHTML = html;
            feed.insertBefore(item, feed.firstChild);
            while (feed.children.length > MAX_FEED) feed.removeChild(feed.lastChild);
        }

        function levelBadge(level) {
            var l = esc(level || 'low');
            return '<span class="badge ' + l + '">' + l + '</span>';
        }

        function renderAssessment(data) {
            prepend('assessFeed',
                '<span class="feed-time mono">' + fmtTime(data.timestamp) + '</span>' +
                levelBadge(data.riskLevel) +
                '<span class="feed-user mono">' + esc(data.userId) + '</span>' +
                '<span class="feed-detail mono">' + Number(data.riskScore || 0).toFixed(1) + '</span>');
        }

        function renderAlert(data) {
            prepend('alertFeed',
                '<span class="feed-time mono">' + fmtTime(data.timestamp) + '</span>' +
                '<span class="badge alert">' + esc(data.kind || 'alert') + '</span>' +
                '<span class="feed-user mono">' + esc(data.userId) + '</span>' +
                (data.riskLevel ? levelBadge(data.riskLevel) : ''));
        }

        function connect() {
            var proto = location.protocol === 'https:' ? 'wss:' : 'ws:';
            var ws = new WebSocket(proto + '//' + location.host + '/ws/alerts');

            ws.onopen = function () {
                el('connDot').classList.add('live');
                el('connLabel').textContent = 'live';
            };
            ws.onmessage = function (msg) {
                var ev;
                try { ev = JSON.parse(msg.data); } catch (e) { return; }
                if (!ev || !ev.data) return;
                if (ev.type === 'assessment') renderAssessment(ev.data);
                else if (ev.type === 'alert') renderAlert(ev.data);
            };
            ws.onclose = function () {
                el('connDot').classList.remove('live');
                el('connLabel').textContent = 'reconnecting';
                setTimeout(connect, 3000);
            };
        }

        function refreshStats() {
            fetch('/api/v1/stats').then(function (r) { return r.json(); }).then(function (s) {
                el('statSessions').textContent = s.activeSessions;
                el('statBlocked').textContent = s.blockedUsers;
                el('statBaselines').textContent = s.baselines;
                el('statClients').textContent = s.realtime ? s.realtime.connectedClients : 0;
            }).catch(function () {});
        }

        function refreshPolicy() {
            fetch('/api/v1/risk-levels').then(function (r) { return r.json(); }).then(function (p) {
                var rows = '<tr><th>Level</th><th>Threshold</th><th>Actions</th></tr>';
                var t = p.thresholds || {};
                var order = ['critical', 'high', 'medium', 'low'];
                order.forEach(function (level) {
                    var actions = (p.actions && p.actions[level]) || [];
                    rows += '<tr><td>' + levelBadge(level) + '</td>' +
                        '<td class="mono">&ge; ' + esc(t[level]) + '</td>' +
                        '<td class="mono">' + esc(actions.join(', ')) + '</td></tr>';
                });
                el('policyTable').innerHTML = rows;
            }).catch(function () {});
        }

        function refreshBlocked() {
            fetch('/api/v1/blocked-users').then(function (r) { return r.json(); }).then(function (b) {
                var users = b.blockedUsers || [];
                if (!users.length) {
                    el('blockedTable').innerHTML = '<tr><td class="empty">None</td></tr>';
                    return;
                }
                var rows = '<tr><th>User</th><th>Blocked Until</th></tr>';
                users.forEach(function (u) {
                    rows += '<tr><td class="mono">' + esc(u.userId) + '</td>' +
                        '<td class="mono">' + esc(u.blockedUntil) + '</td></tr>';
                });
                el('blockedTable').innerHTML = rows;
            }).catch(function () {});
        }

        connect();
        refreshStats();
        refreshPolicy();
        refreshBlocked();
        setInterval(refreshStats, 5000);
        setInterval(refreshBlocked, 10000);
    </script>
</body>
</html>`

func dashboardHandler(c *gin.Context) {
	c.Header("Content-Type", "text/html; charset=utf-8")
	c.String(http.StatusOK, dashboardHTML)
}
