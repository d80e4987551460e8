package report

import (
	"bytes"
	"fmt"
	"html/template"
)

// chartCDN is the one allowed external script reference (spec §9): a
// CDN-hosted charting library, loaded once per report rather than vendored.
const chartCDN = "https://cdn.jsdelivr.net/npm/chart.js@4"

const htmlTemplate = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>Goose Attack Report</title>
<script src="{{.ChartCDN}}"></script>
<style>
body { font-family: sans-serif; margin: 2rem; }
table { border-collapse: collapse; margin-bottom: 1.5rem; }
th, td { border: 1px solid #ccc; padding: 0.25rem 0.5rem; text-align: right; }
th:first-child, td:first-child { text-align: left; }
h2 { margin-top: 2rem; }
</style>
</head>
<body>
<h1>Goose Attack Report</h1>
<p>Duration: {{.DurationMs}}ms</p>

<h2>Phases</h2>
<table>
<tr><th>Phase</th><th>From</th><th>To</th><th>Duration (ms)</th></tr>
{{range .Phases}}<tr><td>{{.Phase}}</td><td>{{.FromUsers}}</td><td>{{.TargetUsers}}</td><td>{{.DurationMs}}</td></tr>
{{end}}
</table>

<h2>Requests</h2>
<table>
<tr><th>Method</th><th>Name</th><th>Count</th><th>Fails</th><th>Min (us)</th><th>Max (us)</th><th>P95 (us)</th><th>P99 (us)</th><th>CO</th></tr>
{{range .Requests}}<tr><td>{{.Method}}</td><td>{{.Name}}</td><td>{{.Count}}</td><td>{{.Fails}}</td><td>{{.MinUs}}</td><td>{{.MaxUs}}</td><td>{{index .Percentiles.Percentiles "95"}}</td><td>{{index .Percentiles.Percentiles "99"}}</td><td>{{if .HasCOEvent}}yes ({{.SyntheticN}}){{else}}-{{end}}</td></tr>
{{end}}
</table>

<h2>Transactions</h2>
<table>
<tr><th>Scenario</th><th>Transaction</th><th>Name</th><th>Count</th><th>Fails</th></tr>
{{range .Transactions}}<tr><td>{{.ScenarioIndex}}</td><td>{{.TransactionIndex}}</td><td>{{.Name}}</td><td>{{.Count}}</td><td>{{.Fails}}</td></tr>
{{end}}
</table>

<h2>Scenarios</h2>
<table>
<tr><th>Scenario</th><th>Iterations</th><th>Users</th></tr>
{{range .Scenarios}}<tr><td>{{.ScenarioIndex}}</td><td>{{.Iterations}}</td><td>{{.Users}}</td></tr>
{{end}}
</table>

{{if .Errors}}
<h2>Errors</h2>
<table>
<tr><th>Method</th><th>Name</th><th>Error</th><th>Count</th></tr>
{{range .Errors}}<tr><td>{{.Method}}</td><td>{{.Name}}</td><td>{{.ErrorText}}</td><td>{{.Count}}</td></tr>
{{end}}
</table>
{{end}}

<h2>Requests per second</h2>
<canvas id="rps" width="800" height="300"></canvas>
<script>
const rpsData = {{.SeriesJSON}};
new Chart(document.getElementById('rps'), {
  type: 'line',
  data: {
    labels: rpsData.map(p => p.t),
    datasets: [{ label: 'requests/s', data: rpsData.map(p => p.requests) }]
  }
});
</script>
</body>
</html>
`

type htmlData struct {
	Report
	ChartCDN   string
	SeriesJSON template.JS
}

// HTML renders the self-contained HTML report, referencing a CDN-hosted
// charting library rather than vendoring one (spec §4.6, §9).
func (r *Report) HTML() (string, error) {
	tmpl, err := template.New("report").Parse(htmlTemplate)
	if err != nil {
		return "", fmt.Errorf("report: parsing HTML template: %w", err)
	}

	var seriesJSON template.JS = "[]"
	for _, row := range r.Requests {
		if len(row.Series) > 0 {
			data, err := seriesToJSON(row.Series)
			if err != nil {
				return "", err
			}
			seriesJSON = data
			break
		}
	}

	data := htmlData{Report: *r, ChartCDN: chartCDN, SeriesJSON: seriesJSON}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("report: executing HTML template: %w", err)
	}
	return buf.String(), nil
}

func seriesToJSON(points []SeriesPoint) (template.JS, error) {
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, p := range points {
		if i > 0 {
			buf.WriteByte(',')
		}
		fmt.Fprintf(&buf, `{"t":%d,"requests":%d,"errors":%d,"avg_ms":%g}`, p.ElapsedSeconds, p.Requests, p.Errors, p.AvgMs)
	}
	buf.WriteByte(']')
	return template.JS(buf.String()), nil
}
