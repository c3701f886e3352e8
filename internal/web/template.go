package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/sweeney/extio/internal/board"
	"github.com/sweeney/extio/internal/status"
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
	"hex": func(width int, v interface{}) string {
		return fmt.Sprintf("0x%0*X", width, v)
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>extio</title>
<style>
body { font-family: monospace; max-width: 720px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.lines td { width: 1.5em; text-align: center; border: 1px solid #ddd; }
.on { background: #4a4; color: white; font-weight: bold; }
.off { color: #888; }
.connected { color: green; }
.disconnected { color: red; }
.fault { color: red; font-weight: bold; }
</style>
</head>
<body>
<h1>extio {{if .Board.Running}}<span class="connected">running</span>{{else}}<span class="disconnected">stopped</span>{{end}}</h1>
{{if .Board.Fault}}<p class="fault">fault: {{.Board.Fault}}</p>{{end}}

<h2>Outputs {{hex 6 .Board.Outputs}}</h2>
<table class="lines">
<tr>{{range .OutputLines}}<td class="{{if .On}}on{{else}}off{{end}}" title="output {{.Pin}}">{{.Pin}}</td>{{end}}</tr>
</table>

<h2>Inputs {{hex 4 .Board.Inputs}}</h2>
<table class="lines">
<tr>{{range .InputLines}}<td class="{{if .On}}on{{else}}off{{end}}" title="input {{.Pin}}">{{.Pin}}</td>{{end}}</tr>
</table>
<table>
<tr><th>Ready</th><td>{{if .Baselined}}yes{{else}}no{{end}}</td></tr>
<tr><th>Changes</th><td>{{.Counts.On}} on / {{.Counts.Off}} off</td></tr>
</table>

<h2>Analog</h2>
<table>
{{range $ch, $v := .Board.Analog}}<tr><th>AIN{{$ch}}</th><td>{{$v}}</td></tr>
{{end}}{{range $ch, $v := .Board.DAC}}<tr><th>AOUT{{$ch}}</th><td>{{hex 4 $v}}</td></tr>
{{end}}<tr><th>ADC busy</th><td>{{if .Board.ADCBusy}}yes{{else}}no{{end}}</td></tr>
</table>

<h2>Connectivity</h2>
<table>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{.Config.Broker}}</td></tr>
{{if .Config.InfluxURL}}<tr><th>InfluxDB</th><td>{{.Config.InfluxURL}}</td></tr>{{end}}
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Backend</th><td>{{.Config.Backend}}</td></tr>
<tr><th>Scans</th><td>{{.Board.Scans}}</td></tr>
<tr><th>Scan</th><td>{{.Config.ScanMs}}ms</td></tr>
<tr><th>Poll</th><td>{{.Config.PollMs}}ms</td></tr>
<tr><th>Debounce</th><td>{{.Config.DebounceMs}}ms</td></tr>
<tr><th>Heartbeat</th><td>{{if eq .Config.HeartbeatMs 0}}disabled{{else}}{{.Config.HeartbeatMs}}ms{{end}}</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPPort}}</td></tr>
</table>

<p><a href="/index.json">JSON</a></p>
</body>
</html>
`

type lineView struct {
	Pin int
	On  bool
}

func lineViews(word uint32, n int) []lineView {
	out := make([]lineView, n)
	for i := range out {
		out[i] = lineView{Pin: i, On: word>>i&1 == 1}
	}
	return out
}

func renderHTML(w io.Writer, snap status.Snapshot) error {
	// Snapshot has Uptime() method but template needs a Duration field.
	data := struct {
		status.Snapshot
		Uptime      time.Duration
		OutputLines []lineView
		InputLines  []lineView
	}{
		Snapshot:    snap,
		Uptime:      snap.Uptime(),
		OutputLines: lineViews(snap.Board.Outputs, board.OutputLines),
		InputLines:  lineViews(uint32(snap.Board.Inputs), board.InputLines),
	}
	return indexTmpl.Execute(w, data)
}
