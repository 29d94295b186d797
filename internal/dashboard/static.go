package dashboard

import "net/http"

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(indexHTML))
}

// Встроенная страница: одна форма, без сборки фронтенда.
const indexHTML = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>Dhan Trigger Bot</title>
<style>
body { font-family: system-ui, sans-serif; margin: 2rem auto; max-width: 960px; padding: 0 1rem; background: #fafafa; }
fieldset { border: 1px solid #ccc; border-radius: 6px; margin-bottom: 1rem; }
label { display: block; margin: .4rem 0 .1rem; font-size: .85rem; color: #444; }
input, select { width: 100%; padding: .35rem; box-sizing: border-box; }
button { margin-top: .6rem; padding: .45rem .9rem; cursor: pointer; }
.row { display: flex; gap: 1rem; }
.row > div { flex: 1; }
#log { background: #111; color: #9e9; font-family: monospace; font-size: .8rem; padding: .8rem; height: 280px; overflow-y: scroll; white-space: pre-wrap; border-radius: 6px; }
#msg { color: #b00; min-height: 1.2rem; }
table { width: 100%; border-collapse: collapse; font-size: .85rem; }
td, th { border-bottom: 1px solid #ddd; padding: .3rem; text-align: left; }
</style>
</head>
<body>
<h2>Dhan — Auto Place on Entry Touch</h2>
<p id="msg"></p>

<div class="row">
<fieldset><legend>Session</legend>
<label>Access token (paste daily)</label>
<input id="token" type="password">
<button onclick="setToken()">Save token</button>
<button onclick="downloadCsv()">Download instruments</button>
<label>Or upload instruments.csv</label>
<input id="csvfile" type="file" accept=".csv">
<button onclick="uploadCsv()">Upload</button>
</fieldset>

<fieldset><legend>Order</legend>
<label>Symbol</label><input id="symbol" placeholder="RELIANCE">
<div class="row">
<div><label>Entry price</label><input id="entry" type="number" step="0.01"></div>
<div><label>Quantity</label><input id="qty" type="number" value="1"></div>
</div>
<div class="row">
<div><label>Order type</label><select id="otype"><option>MARKET</option><option>LIMIT</option></select></div>
<div><label>Poll interval, s</label><input id="poll" type="number" value="2"></div>
</div>
<div class="row">
<div><label>Stop loss %</label><input id="sl" type="number" step="0.01" value="0.5"></div>
<div><label>Target %</label><input id="target" type="number" step="0.01" value="1.0"></div>
</div>
<label><input id="waitopen" type="checkbox" checked style="width:auto"> Auto start at market open (09:15 IST)</label>
<button onclick="startMonitor()">Start auto-monitor &amp; place</button>
</fieldset>
</div>

<fieldset><legend>Runs</legend><table id="runs"></table></fieldset>

<fieldset><legend>Manual actions (after execution)</legend>
<div class="row">
<div><label>Order ID</label><input id="orderid"></div>
<div><label>New SL (absolute)</label><input id="newsl" type="number" step="0.01"></div>
</div>
<button onclick="cancelOrder()">Cancel order</button>
<button onclick="modifySL()">Modify SL</button>
</fieldset>

<h3>Activity log</h3>
<div id="log"></div>

<script>
const api = p => '/api/v1' + p;
const msg = t => document.getElementById('msg').textContent = t || '';

async function call(path, opts) {
  msg();
  const r = await fetch(api(path), opts);
  const body = await r.json().catch(() => ({}));
  if (!r.ok) { msg(body.error || ('HTTP ' + r.status)); throw new Error(body.error); }
  return body;
}
const post = (path, body) => call(path, {method:'POST', headers:{'Content-Type':'application/json'}, body: JSON.stringify(body)});

function setToken() { post('/session/token', {accessToken: document.getElementById('token').value}); }
function downloadCsv() { post('/instruments/download', {}).then(b => msg('Loaded ' + b.count + ' instruments')); }
async function uploadCsv() {
  const f = document.getElementById('csvfile').files[0];
  if (!f) { msg('choose a file'); return; }
  const r = await fetch(api('/instruments/upload'), {method:'POST', body: await f.text()});
  const b = await r.json();
  msg(r.ok ? ('Loaded ' + b.count + ' instruments') : b.error);
}
function startMonitor() {
  post('/monitor', {
    symbol: document.getElementById('symbol').value,
    entryPrice: document.getElementById('entry').value,
    quantity: parseInt(document.getElementById('qty').value, 10),
    orderType: document.getElementById('otype').value,
    stopLossPercent: document.getElementById('sl').value,
    targetPercent: document.getElementById('target').value,
    pollIntervalSeconds: parseInt(document.getElementById('poll').value, 10),
    waitForMarketOpen: document.getElementById('waitopen').checked
  }).then(refreshRuns);
}
function stopRun(id) { post('/monitor/' + id + '/stop', {}).then(refreshRuns); }
function cancelOrder() { post('/orders/' + document.getElementById('orderid').value + '/cancel', {}); }
function modifySL() {
  call('/orders/' + document.getElementById('orderid').value, {
    method:'PATCH', headers:{'Content-Type':'application/json'},
    body: JSON.stringify({stopLossPrice: document.getElementById('newsl').value})
  });
}
async function refreshRuns() {
  const runs = await call('/monitor');
  const rows = runs.map(r =>
    '<tr><td>' + r.instrument.symbol + '</td><td>' + r.entryPrice + '</td><td>' + r.state +
    '</td><td>' + (r.state === 'AWAITING_START' || r.state === 'MONITORING'
      ? '<button onclick="stopRun(\'' + r.id + '\')">Stop</button>' : '') + '</td></tr>');
  document.getElementById('runs').innerHTML =
    '<tr><th>Symbol</th><th>Entry</th><th>State</th><th></th></tr>' + rows.join('');
}
function connectLog() {
  const proto = location.protocol === 'https:' ? 'wss://' : 'ws://';
  const ws = new WebSocket(proto + location.host + '/ws/log');
  const el = document.getElementById('log');
  ws.onmessage = e => {
    const entry = JSON.parse(e.data);
    el.textContent += '[' + entry.at + '] ' + entry.message + '\n';
    el.scrollTop = el.scrollHeight;
  };
  ws.onclose = () => setTimeout(connectLog, 3000);
}
connectLog();
refreshRuns();
setInterval(refreshRuns, 5000);
</script>
</body>
</html>
`
