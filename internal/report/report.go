// Package report renders a migration result as Markdown or HTML.
package report

import (
	"fmt"
	"html"
	"strings"

	"github.com/gomarkdown/markdown"
	mdhtml "github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"

	"github.com/valpere/codeshift/internal/gateway"
	"github.com/valpere/codeshift/internal/pipeline"
)

// Markdown builds a document with the business logic explanation followed
// by the translated code. Stage outputs are shown verbatim; a translation
// that is not code (an error or pause notice) is quoted instead of fenced.
func Markdown(res pipeline.Result, langs pipeline.Languages) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# %s to %s migration\n\n", langs.Source, langs.Target)

	b.WriteString("## Business logic\n\n")
	b.WriteString(strings.TrimSpace(res.Explanation))
	b.WriteString("\n\n")

	fmt.Fprintf(&b, "## %s code\n\n", langs.Target)
	if res.TranslationStatus == gateway.StatusOK.String() {
		writeFence(&b, langs.FenceTag(), res.TranslatedCode)
	} else {
		fmt.Fprintf(&b, "> %s\n\n", strings.TrimSpace(res.TranslatedCode))
	}

	if res.SourceCode != "" {
		fmt.Fprintf(&b, "## Original %s\n\n", langs.Source)
		writeFence(&b, strings.ToLower(langs.Source), res.SourceCode)
	}

	return b.String()
}

// writeFence picks a fence longer than any backtick run inside code.
func writeFence(b *strings.Builder, tag, code string) {
	fence := "```"
	for strings.Contains(code, fence) {
		fence += "`"
	}
	fmt.Fprintf(b, "%s%s\n%s\n%s\n\n", fence, tag, strings.TrimRight(code, "\n"), fence)
}

// ToHTML renders md as an HTML fragment. Raw HTML in the model's text is
// dropped rather than passed through.
func ToHTML(md []byte) string {
	opts := mdhtml.RendererOptions{
		Flags: mdhtml.CommonFlags | mdhtml.HrefTargetBlank | mdhtml.SkipHTML,
	}
	renderer := mdhtml.NewRenderer(opts)
	p := parser.NewWithExtensions(parser.CommonExtensions | parser.Attributes)
	return string(markdown.Render(p.Parse(md), renderer))
}

// Page wraps rendered HTML in a standalone document.
func Page(title string, body string) string {
	return fmt.Sprintf(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>%s</title>
</head>
<body>
%s</body>
</html>
`, html.EscapeString(title), body)
}
