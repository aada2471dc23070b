package server

import (
	"bytes"
	"html/template"

	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"
	"github.com/microcosm-cc/bluemonday"
)

var reportPage = template.Must(template.New("report").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
</head>
<body>
<article>
{{.Body}}
</article>
</body>
</html>
`))

var reportPolicy = bluemonday.UGCPolicy()

// renderMarkdown converts a report to sanitized HTML.
func renderMarkdown(md string) []byte {
	p := parser.NewWithExtensions(parser.CommonExtensions | parser.AutoHeadingIDs)
	doc := p.Parse([]byte(md))

	renderer := html.NewRenderer(html.RendererOptions{Flags: html.CommonFlags | html.HrefTargetBlank})
	return reportPolicy.SanitizeBytes(markdown.Render(doc, renderer))
}

// renderReportPage wraps the rendered report in a standalone HTML document.
func renderReportPage(title, md string) ([]byte, error) {
	var buf bytes.Buffer
	err := reportPage.Execute(&buf, struct {
		Title string
		Body  template.HTML
	}{
		Title: title,
		Body:  template.HTML(renderMarkdown(md)), // #nosec G203 -- sanitized above
	})
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
