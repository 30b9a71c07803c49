package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/sweeney/power-sensor/internal/logic"
	"github.com/sweeney/power-sensor/internal/monitor"
	"github.com/sweeney/power-sensor/internal/status"
)

type pageData struct {
	status.Snapshot
	Uptime     time.Duration
	Date       string
	Kind       logic.Kind
	Result     monitor.QueryResult
	QueryError string
}

func kindClass(k logic.Kind) string {
	switch k {
	case logic.KindRestored:
		return "ac"
	case logic.KindLost:
		return "battery"
	default:
		return "unknown"
	}
}

func kindLabel(k logic.Kind) string {
	switch k {
	case logic.KindRestored:
		return "Power restored"
	case logic.KindLost:
		return "Power lost"
	default:
		return "Unknown"
	}
}

var indexTmpl = template.Must(template.New("index").Funcs(template.FuncMap{
	"uptime": func(d time.Duration) string {
		d = d.Truncate(time.Second)
		days := int(d.Hours()) / 24
		h := int(d.Hours()) % 24
		m := int(d.Minutes()) % 60
		s := int(d.Seconds()) % 60
		if days > 0 {
			return fmt.Sprintf("%dd %dh %dm %ds", days, h, m, s)
		}
		if h > 0 {
			return fmt.Sprintf("%dh %dm %ds", h, m, s)
		}
		if m > 0 {
			return fmt.Sprintf("%dm %ds", m, s)
		}
		return fmt.Sprintf("%ds", s)
	},
	"kindClass": kindClass,
	"kindLabel": kindLabel,
	"clock": func(t time.Time) string {
		return t.Format("15:04:05")
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Power Sensor</title>
<style>
body { font-family: monospace; max-width: 640px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.ac { color: green; font-weight: bold; }
.battery { color: red; font-weight: bold; }
.unknown { color: orange; }
.connected { color: green; }
.disconnected { color: red; }
.warn { color: #b60; }
.live-dot { display: inline-block; width: 8px; height: 8px; border-radius: 50%; margin-left: 6px; vertical-align: middle; }
.live-dot.ok { background: green; }
.live-dot.err { background: red; }
.live-dot.pending { background: orange; }
</style>
</head>
<body>
<h1>Power Sensor<span id="live-dot" class="live-dot pending" title="connecting"></span></h1>

<h2>Power</h2>
<table>
<tr><th>Source</th><td id="power-state" class="{{kindClass .Power}}">{{.Power.Source}}</td></tr>
<tr><th>Last event</th><td id="last-event">{{if .LastEvent}}{{kindLabel .LastEvent.Kind}} at {{.LastEvent.Time.Format "2006-01-02 15:04:05"}}{{else}}none{{end}}</td></tr>
<tr><th>Ready</th><td>{{if .Ready}}yes{{else}}no{{end}}</td></tr>
{{if .RecoveredFrom}}<tr><th>Recovered</th><td class="warn">log was unreadable, backed up to {{.RecoveredFrom}}</td></tr>{{end}}
</table>

<h2>Events</h2>
<form method="get" action="/">
<input type="date" name="date" value="{{.Date}}">
<select name="kind">
<option value=""{{if eq .Kind ""}} selected{{end}}>all</option>
<option value="POWER_LOST"{{if eq .Kind "POWER_LOST"}} selected{{end}}>power lost</option>
<option value="POWER_RESTORED"{{if eq .Kind "POWER_RESTORED"}} selected{{end}}>power restored</option>
</select>
<button type="submit">Show</button>
</form>
{{if .QueryError}}<p class="warn">{{.QueryError}}</p>{{else}}
<p>{{.Result.Date}}: <span id="lost-count">{{.Result.Lost}}</span> power loss(es)</p>
<table id="events">
<tr><th>Time</th><td><b>Event</b></td></tr>
{{range .Result.Events}}<tr><th>{{clock .Time}}</th><td class="{{kindClass .Kind}}">{{kindLabel .Kind}}</td></tr>
{{else}}<tr><th>-</th><td>no events</td></tr>
{{end}}</table>{{end}}

<h2>Connectivity</h2>
<table>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{if .Config.Broker}}{{.Config.Broker}}{{else}}disabled{{end}}</td></tr>
{{if .Network}}<tr><th>Network</th><td>{{.Network.Status}} ({{.Network.Type}}{{if .Network.SSID}}, {{.Network.SSID}}{{end}})</td></tr>
<tr><th>IP</th><td>{{.Network.IP}}</td></tr>{{end}}
</table>

<h2>Counts</h2>
<table>
<tr><th>Signals</th><td>{{.Signals}}</td></tr>
<tr><th>Power lost</th><td>{{.Counts.Lost}}</td></tr>
<tr><th>Power restored</th><td>{{.Counts.Restored}}</td></tr>
<tr><th>Persist failures</th><td>{{.PersistFailures}}</td></tr>
<tr><th>Notify failures</th><td>{{.NotifyFailures}}</td></tr>
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Source</th><td>{{.Config.Source}}</td></tr>
<tr><th>Poll</th><td>{{.Config.PollMs}}ms</td></tr>
<tr><th>Heartbeat</th><td>{{if .Config.Heartbeat}}{{.Config.Heartbeat}}{{else}}disabled{{end}}</td></tr>
<tr><th>Log</th><td>{{.Config.LogDriver}}: {{.Config.LogPath}}</td></tr>
<tr><th>Notifiers</th><td>{{range $i, $n := .Config.Notifiers}}{{if $i}}, {{end}}{{$n}}{{else}}none{{end}}</td></tr>
</table>

<p><a href="/index.json">JSON</a> | <a href="/api/log">log</a></p>
<script>
(function() {
  var dot = document.getElementById("live-dot");
  var stateEl = document.getElementById("power-state");
  var lastEl = document.getElementById("last-event");

  function setDot(cls, title) {
    dot.className = "live-dot " + cls;
    dot.title = title;
  }

  if (!window.EventSource) {
    setDot("err", "unsupported");
    return;
  }
  var es = new EventSource("/api/stream");
  es.onopen = function() { setDot("ok", "live"); };
  es.onerror = function() { setDot("pending", "reconnecting"); };
  es.addEventListener("power", function(ev) {
    try {
      var msg = JSON.parse(ev.data);
      stateEl.textContent = msg.source;
      stateEl.className = msg.source === "AC" ? "ac" : msg.source === "BATTERY" ? "battery" : "unknown";
      lastEl.textContent = (msg.kind === "POWER_LOST" ? "Power lost" : "Power restored") + " at " + msg.event.time;
    } catch (e) {}
  });
})();
</script>
</body>
</html>
`

func renderHTML(w io.Writer, page pageData) error {
	return indexTmpl.Execute(w, page)
}
