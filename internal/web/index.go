package web

const indexHTML = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>ownmon</title>
    <script src="https://unpkg.com/htmx.org@1.9.10"></script>
    <style>
        * { margin: 0; padding: 0; box-sizing: border-box; }
        :root {
            --bg-primary: #f5f5f5;
            --bg-secondary: white;
            --text-primary: #333;
            --text-muted: #7f8c8d;
            --border-color: #eee;
            --accent-color: #3498db;
            --heading-color: #2c3e50;
            --shadow: rgba(0,0,0,0.1);
        }
        @media (prefers-color-scheme: dark) {
            :root {
                --bg-primary: #1a1a1a;
                --bg-secondary: #2d2d2d;
                --text-primary: #e0e0e0;
                --text-muted: #a0a0a0;
                --border-color: #404040;
                --accent-color: #5dade2;
                --heading-color: #5dade2;
                --shadow: rgba(0,0,0,0.3);
            }
        }
        body {
            font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif;
            background: var(--bg-primary);
            color: var(--text-primary);
            padding: 20px;
        }
        h1 { margin-bottom: 8px; }
        #current { color: var(--text-muted); margin-bottom: 24px; }
        .dashboard { display: flex; gap: 20px; flex-wrap: wrap; }
        .report-box {
            flex: 1;
            min-width: 300px;
            background: var(--bg-secondary);
            border-radius: 8px;
            box-shadow: 0 2px 4px var(--shadow);
            padding: 24px;
        }
        .report-box h2 {
            font-size: 1.3rem;
            margin-bottom: 16px;
            color: var(--heading-color);
            border-bottom: 2px solid var(--accent-color);
            padding-bottom: 8px;
        }
        .app-item {
            display: flex;
            justify-content: space-between;
            padding: 10px 8px;
            border-bottom: 1px solid var(--border-color);
            position: relative;
        }
        .app-item::before {
            content: '';
            position: absolute;
            left: 0; top: 0; height: 100%;
            width: var(--bar-width, 0%);
            background: var(--accent-color);
            opacity: 0.15;
            border-radius: 4px;
        }
        .app-item > * { position: relative; }
        .app-name { font-weight: 500; flex: 1; }
        .app-time { color: var(--text-muted); width: 60px; text-align: right; }
        .app-percentage { color: var(--accent-color); width: 60px; text-align: right; }
        .total { margin-top: 12px; font-weight: 600; }
        .loading { color: var(--text-muted); }
    </style>
</head>
<body>
    <h1>ownmon</h1>
    <div id="current">Loading...</div>
    <div class="dashboard">
        <div class="report-box">
            <h2>Today</h2>
            <div hx-get="/api/summary?period=day" hx-trigger="load, every 30s"><div class="loading">Loading...</div></div>
        </div>
        <div class="report-box">
            <h2>This Week</h2>
            <div hx-get="/api/summary?period=week" hx-trigger="load, every 60s"><div class="loading">Loading...</div></div>
        </div>
        <div class="report-box">
            <h2>This Month</h2>
            <div hx-get="/api/summary?period=month" hx-trigger="load, every 120s"><div class="loading">Loading...</div></div>
        </div>
    </div>
    <script>
        async function refreshCurrent() {
            try {
                const res = await fetch('/api/current');
                if (!res.ok) { document.getElementById('current').textContent = 'Tracker not running'; return; }
                const data = await res.json();
                const s = data.session;
                let text = s ? s.process_name + (s.window_title ? ' · ' + s.window_title : '') : 'No active window';
                if (data.idle) text += ' (idle)';
                if (data.media) text += ' ♪ ' + data.media.title + (data.media.artist ? ' – ' + data.media.artist : '');
                document.getElementById('current').textContent = text;
            } catch (e) {
                document.getElementById('current').textContent = 'Unavailable';
            }
        }
        refreshCurrent();
        setInterval(refreshCurrent, 5000);
    </script>
</body>
</html>`
