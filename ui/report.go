package ui

import (
	"fmt"
	"strings"

	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"

	"github.com/bschneidr/srvyr/domain/frame"
	"github.com/bschneidr/srvyr/domain/statistic"
)

// RenderMarkdown renders a run as a markdown report, one table per result
func RenderMarkdown(run *statistic.Run) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Estimation run %s\n\n", run.ID)
	fmt.Fprintf(&b, "Created: %s\n\n", run.CreatedAt.Format("2006-01-02 15:04:05 MST"))
	if len(run.Groups) > 0 {
		fmt.Fprintf(&b, "Grouped by: %s\n\n", strings.Join(run.Groups, ", "))
	}

	for _, res := range run.Results {
		fmt.Fprintf(&b, "## %s\n\n", res.Name)
		writeMarkdownTable(&b, res.Table)
		b.WriteString("\n")
	}
	return b.String()
}

// RenderHTML renders the markdown report to HTML
func RenderHTML(run *statistic.Run) []byte {
	md := []byte(RenderMarkdown(run))
	p := parser.NewWithExtensions(parser.CommonExtensions | parser.Tables)
	renderer := html.NewRenderer(html.RendererOptions{Flags: html.CommonFlags})
	return markdown.ToHTML(md, p, renderer)
}

func writeMarkdownTable(b *strings.Builder, t *frame.Table) {
	names := t.Names()
	if len(names) == 0 {
		b.WriteString("(empty result)\n")
		return
	}

	b.WriteString("| " + strings.Join(names, " | ") + " |\n")
	seps := make([]string, len(names))
	for i := range seps {
		seps[i] = "---"
	}
	b.WriteString("| " + strings.Join(seps, " | ") + " |\n")

	rendered := make([][]string, len(names))
	for j, name := range names {
		col, _ := t.Column(name)
		rendered[j] = col.AsStrings()
	}
	for i := 0; i < t.NumRows(); i++ {
		cells := make([]string, len(names))
		for j := range names {
			cells[j] = rendered[j][i]
		}
		b.WriteString("| " + strings.Join(cells, " | ") + " |\n")
	}
}
