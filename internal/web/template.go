package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/sweeney/gpio-keys/internal/status"
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
	"ms": func(d time.Duration) int64 { return d.Milliseconds() },
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>{{.Config.Instance}}</title>
<style>
body { font-family: monospace; max-width: 760px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
.pressed { color: green; font-weight: bold; }
.idle { color: #888; }
.pending { color: orange; }
.disabled { color: #bbb; text-decoration: line-through; }
.failed { color: red; }
.connected { color: green; }
.disconnected { color: red; }
</style>
</head>
<body>
<h1>{{.Config.Instance}} <small>({{.Power}})</small></h1>

<h2>Lines</h2>
<table>
<tr><th>Label</th><th>GPIO</th><th>Type</th><th>Code</th><th>Sensing</th><th>Debounce</th><th>State</th><th>Wake</th></tr>
{{range .Lines}}<tr class="{{if .Failed}}failed{{else if .Disabled}}disabled{{end}}">
<td>{{.Label}}</td><td>{{.Offset}}</td><td>{{.Type}}</td><td>{{.Code}}</td><td>{{.Sensing}}</td><td>{{ms .Debounce}}ms</td>
<td class="{{.State}}">{{if .Failed}}failed{{else if .Disabled}}disabled{{else}}{{.State}}{{end}}</td>
<td>{{if .Wake}}yes{{else}}no{{end}}</td></tr>
{{end}}</table>

<h2>Event Counts</h2>
<table>
<tr><th>Type</th><th>Code</th><th>Label</th><th>Press</th><th>Release</th></tr>
{{range .Counts}}<tr><td>{{.Type}}</td><td>{{.Code}}</td><td>{{.Label}}</td><td>{{.Press}}</td><td>{{.Release}}</td></tr>
{{else}}<tr><td colspan="5">no events yet</td></tr>
{{end}}</table>

<h2>Connectivity</h2>
<table>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{.Config.Broker}}</td></tr>
{{if .Network}}<tr><th>Network</th><td>{{.Network.Status}} ({{.Network.Type}}{{if .Network.SSID}}, {{.Network.SSID}}{{end}})</td></tr>
<tr><th>IP</th><td>{{.Network.IP}}</td></tr>{{end}}
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Chip</th><td>{{.Config.Chip}} ({{.Config.Backend}})</td></tr>
<tr><th>Resume</th><td>{{.Config.Resume}}</td></tr>
<tr><th>May wake</th><td>{{if .MayWake}}yes{{else}}no{{end}}</td></tr>
<tr><th>Wake holds</th><td>{{.Holds}}</td></tr>
<tr><th>Heartbeat</th><td>{{if eq .Config.HeartbeatMs 0}}disabled{{else}}{{.Config.HeartbeatMs}}ms{{end}}</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPPort}}</td></tr>
</table>

<p><a href="/index.json">JSON</a></p>
</body>
</html>
`

func renderHTML(w io.Writer, snap status.Snapshot) error {
	// Snapshot has Uptime() method but template needs a Duration field.
	data := struct {
		status.Snapshot
		Uptime time.Duration
	}{
		Snapshot: snap,
		Uptime:   snap.Uptime(),
	}
	return indexTmpl.Execute(w, data)
}
