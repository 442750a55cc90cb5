package render

import (
	"fmt"
	stdhtml "html"
	"sort"
	"strings"
	"time"

	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"
)

// ArchiveIndex lists daily pages newest first under one heading per month.
func ArchiveIndex(dates []string) string {
	return archiveIndex(dates, ".md")
}

// ArchiveHTML is the archive index as an HTML page linking the HTML pages.
func ArchiveHTML(dates []string) []byte {
	return ToHTML(archiveIndex(dates, ".html"), "Archive")
}

func archiveIndex(dates []string, ext string) string {
	sorted := append([]string(nil), dates...)
	sort.Sort(sort.Reverse(sort.StringSlice(sorted)))

	var b strings.Builder
	b.WriteString("# Archive\n\n> Browse past daily reports\n\n---\n\n")

	month := ""
	for _, d := range sorted {
		t, err := time.Parse("2006-01-02", d)
		if err != nil {
			continue
		}
		if m := t.Format("January 2006"); m != month {
			if month != "" {
				b.WriteString("\n")
			}
			fmt.Fprintf(&b, "## %s\n\n", m)
			month = m
		}
		fmt.Fprintf(&b, "- [%s](%s%s)\n", t.Format("02 Mon"), d, ext)
	}
	return b.String()
}

const htmlShell = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>%s</title>
</head>
<body>
<main>
%s</main>
</body>
</html>
`

// ToHTML converts a markdown page into a standalone HTML document.
func ToHTML(md, title string) []byte {
	extensions := parser.CommonExtensions | parser.AutoHeadingIDs
	p := parser.NewWithExtensions(extensions)

	renderer := html.NewRenderer(html.RendererOptions{
		Flags: html.CommonFlags | html.HrefTargetBlank,
	})

	body := markdown.ToHTML([]byte(md), p, renderer)
	return []byte(fmt.Sprintf(htmlShell, stdhtml.EscapeString(title), body))
}
