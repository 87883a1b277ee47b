package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/sweeney/proofer/internal/status"
)

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
	"temp": func(v float64) string {
		return fmt.Sprintf("%.1f °C", v)
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<meta http-equiv="refresh" content="10">
<title>Proofer</title>
<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.on { color: green; font-weight: bold; }
.off { color: #888; }
.unknown { color: orange; }
.connected { color: green; }
.disconnected { color: red; }
.halted { background: #fdd; border: 2px solid red; padding: 0.5em 1em; }
</style>
</head>
<body>
<h1>Proofer <small id="state">{{.State}}</small></h1>
{{with .Control.Fault}}
<div class="halted">
<strong>System halted</strong>: <span id="fault-code">{{.Code}}</span><br>
{{.Message}}<br>
<small>{{.Time.UTC.Format "2006-01-02T15:04:05Z"}}</small>
</div>
{{end}}

<h2>Cabinet</h2>
<table>
<tr><th>Target</th><td id="target">{{temp .Control.Target}}</td></tr>
<tr><th>Current</th><td id="current">{{temp .Control.Current}}</td></tr>
<tr><th>Heater</th><td id="heater" class="{{if eq .Heater "ON"}}on{{else if eq .Heater "OFF"}}off{{else}}unknown{{end}}">{{.Heater}}</td></tr>
<tr><th>Pump</th><td id="pump" class="{{if eq .Pump "ON"}}on{{else if eq .Pump "OFF"}}off{{else}}unknown{{end}}">{{.Pump}}</td></tr>
<tr><th>Elapsed</th><td>{{.Control.ElapsedMinutes}} min</td></tr>
</table>

<h2>Limits</h2>
<table>
<tr><th>Setpoint range</th><td>{{temp .Config.MinTemp}} – {{temp .Config.MaxTemp}}</td></tr>
<tr><th>Ambient max</th><td>{{temp .Config.MaxAmbient}}</td></tr>
<tr><th>Max run</th><td>{{.Config.MaxRunMinutes}} min</td></tr>
<tr><th>Max heater on</th><td>{{.Config.MaxHeaterOnMs}}ms</td></tr>
<tr><th>Check interval</th><td>{{.Config.CheckIntervalMs}}ms</td></tr>
</table>

<h2>Connectivity</h2>
<table>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{.Config.Broker}}</td></tr>
{{if .Network}}<tr><th>Network</th><td>{{.Network.Status}} ({{.Network.Type}}{{if .Network.SSID}}, {{.Network.SSID}}{{end}})</td></tr>
<tr><th>IP</th><td>{{.Network.IP}}</td></tr>{{end}}
</table>

<h2>System</h2>
<table>
<tr><th>Run</th><td>{{.RunID}}</td></tr>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Poll</th><td>{{.Config.PollMs}}ms</td></tr>
<tr><th>Heartbeat</th><td>{{if eq .Config.HeartbeatMs 0}}disabled{{else}}{{.Config.HeartbeatMs}}ms{{end}}</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPAddr}}</td></tr>
</table>

<p><a href="/index.json">JSON</a></p>
</body>
</html>
`

func renderHTML(w io.Writer, snap status.Snapshot) {
	// Snapshot methods and conversions are flattened for the template.
	data := struct {
		status.Snapshot
		Uptime time.Duration
		State  string
		Heater string
		Pump   string
	}{
		Snapshot: snap,
		Uptime:   snap.Uptime(),
		State:    status.StateString(snap),
		Heater:   stateOrUnknown(string(snap.Control.Heater)),
		Pump:     stateOrUnknown(string(snap.Control.Pump)),
	}
	indexTmpl.Execute(w, data)
}

func stateOrUnknown(s string) string {
	if s == "" {
		return "UNKNOWN"
	}
	return s
}
