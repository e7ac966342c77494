package roles

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"time"
)

// Renderer turns an HTML document into a PDF.
type Renderer interface {
	RenderHTML(ctx context.Context, html string) ([]byte, error)
}

var reportTemplate = template.Must(template.New("role-report").Funcs(template.FuncMap{
	"formatDateTime": func(t time.Time) string {
		return t.Format("January 2, 2006 15:04 MST")
	},
}).Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>Role access report - {{.Role.Name}}</title>
<style>
body { font-family: sans-serif; font-size: 12px; }
h1 { font-size: 18px; margin-bottom: 4px; }
h2 { font-size: 14px; margin: 16px 0 4px; }
table { border-collapse: collapse; width: 100%; }
td, th { border: 1px solid #ccc; padding: 4px 6px; text-align: left; }
.muted { color: #666; }
</style>
</head>
<body>
<h1>{{.Role.Name}}</h1>
{{if .Role.Description}}<p>{{.Role.Description}}</p>{{end}}
<p class="muted">Generated {{formatDateTime .GeneratedAt}}</p>
{{range .Modules}}
<h2>{{.Module.Name}}</h2>
<table>
<thead><tr><th>Function</th><th>Description</th></tr></thead>
<tbody>
{{range .Functions}}<tr><td>{{.Name}}</td><td>{{.Description}}</td></tr>
{{end}}</tbody>
</table>
{{else}}
<p class="muted">No functions assigned.</p>
{{end}}
</body>
</html>
`))

// RenderReportHTML renders the printable form of a report.
func RenderReportHTML(rep AccessReport) (string, error) {
	var buf bytes.Buffer
	if err := reportTemplate.Execute(&buf, rep); err != nil {
		return "", fmt.Errorf("roles: render report: %w", err)
	}
	return buf.String(), nil
}
