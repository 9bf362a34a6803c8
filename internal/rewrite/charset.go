package rewrite

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// RenderOption configures RewriteHTML.
type RenderOption func(*renderOptions)

type renderOptions struct {
	utf8Meta bool
}

// WithUTF8Meta relabels <meta> charset declarations as UTF-8. Pass it when
// the content is UTF-8, for example after the fetch gateway decoded it.
func WithUTF8Meta() RenderOption {
	return func(o *renderOptions) {
		o.utf8Meta = true
	}
}

// relabelCharset points every <meta> charset declaration below n at UTF-8
// and returns how many declarations it changed.
func relabelCharset(n *html.Node) int {
	changed := 0
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.DataAtom == atom.Meta {
			if v, ok := getAttr(n, "charset"); ok && !strings.EqualFold(strings.TrimSpace(v), "utf-8") {
				setAttr(n, "charset", "utf-8")
				changed++
			}
			if equiv, ok := getAttr(n, "http-equiv"); ok && strings.EqualFold(strings.TrimSpace(equiv), "content-type") {
				if content, ok := getAttr(n, "content"); ok {
					if relabeled, ok := replaceCharsetParam(content); ok {
						setAttr(n, "content", relabeled)
						changed++
					}
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return changed
}

// replaceCharsetParam replaces the charset parameter of a content-type value
// with utf-8. It reports false when there is no parameter or it already
// names UTF-8.
func replaceCharsetParam(content string) (string, bool) {
	i := strings.Index(strings.ToLower(content), "charset")
	if i < 0 {
		return content, false
	}

	j := skipSpaces(content, i+len("charset"))
	if j >= len(content) || content[j] != '=' {
		return content, false
	}
	j = skipSpaces(content, j+1)

	end := j
	for end < len(content) && content[end] != ';' && content[end] != ' ' {
		end++
	}
	if strings.EqualFold(strings.Trim(content[j:end], `"'`), "utf-8") {
		return content, false
	}
	return content[:j] + "utf-8" + content[end:], true
}

func skipSpaces(s string, i int) int {
	for i < len(s) && s[i] == ' ' {
		i++
	}
	return i
}
