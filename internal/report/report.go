// Package report renders pipeline summaries for humans.
package report

import (
	"bytes"
	"fmt"
	"html/template"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
)

var md = goldmark.New(
	goldmark.WithExtensions(extension.GFM),
	goldmark.WithRendererOptions(html.WithHardWraps()),
)

var emailTemplate = template.Must(template.New("email").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<style>
body { font-family: -apple-system, "Segoe UI", Helvetica, Arial, sans-serif; color: #1f2328; max-width: 720px; margin: 0 auto; padding: 24px; }
h1, h2, h3 { border-bottom: 1px solid #d0d7de; padding-bottom: 4px; }
code { background: #f6f8fa; padding: 2px 4px; border-radius: 4px; }
.footer { color: #656d76; font-size: 12px; margin-top: 32px; }
</style>
</head>
<body>
{{.Body}}
{{if .WorkflowID}}<p class="footer">Workflow {{.WorkflowID}}</p>{{end}}
</body>
</html>
`))

// HTML converts GitHub-flavored markdown to an HTML fragment.
func HTML(markdown string) (string, error) {
	var buf bytes.Buffer
	if err := md.Convert([]byte(markdown), &buf); err != nil {
		return "", fmt.Errorf("render markdown: %w", err)
	}
	return buf.String(), nil
}

// Email wraps the rendered markdown in a standalone HTML document suitable
// for a mail body.
func Email(title, workflowID, markdown string) (string, error) {
	body, err := HTML(markdown)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	err = emailTemplate.Execute(&buf, struct {
		Title      string
		WorkflowID string
		Body       template.HTML
	}{title, workflowID, template.HTML(body)})
	if err != nil {
		return "", fmt.Errorf("render email: %w", err)
	}
	return buf.String(), nil
}
