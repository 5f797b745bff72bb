package matrix

import (
	"html"
	"strings"
)

// MarkdownToHTML renders the Markdown subset models usually produce into
// Matrix org.matrix.custom.html: fenced code blocks, inline code, bold and
// line breaks. Everything else is HTML-escaped.
func MarkdownToHTML(md string) string {
	var parts, code []string
	inCode := false
	flush := func() {
		parts = append(parts, "<pre><code>"+strings.Join(code, "\n")+"</code></pre>")
		code = nil
	}
	for _, line := range strings.Split(md, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			if inCode {
				flush()
			}
			inCode = !inCode
			continue
		}
		if inCode {
			code = append(code, html.EscapeString(line))
			continue
		}
		s := html.EscapeString(line)
		s = replaceDelimited(s, "`", "<code>", "</code>")
		s = replaceDelimited(s, "**", "<strong>", "</strong>")
		parts = append(parts, s)
	}
	if inCode {
		flush()
	}
	return strings.Join(parts, "<br/>")
}

// replaceDelimited replaces complete delim…delim pairs with open+content+close.
// An unmatched opener is left as-is.
func replaceDelimited(s, delim, open, close string) string {
	var b strings.Builder
	for {
		start := strings.Index(s, delim)
		if start == -1 {
			b.WriteString(s)
			break
		}
		end := strings.Index(s[start+len(delim):], delim)
		if end == -1 {
			b.WriteString(s)
			break
		}
		end += start + len(delim)
		b.WriteString(s[:start])
		b.WriteString(open)
		b.WriteString(s[start+len(delim) : end])
		b.WriteString(close)
		s = s[end+len(delim):]
	}
	return b.String()
}
