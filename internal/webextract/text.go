package webextract

import (
	"strings"

	"github.com/mitchellh/go-wordwrap"
	"golang.org/x/net/html"

	"gwi.com/campus-knowledge/internal/utils"
)

var blockElements = map[string]bool{
	"p": true, "div": true, "section": true, "article": true, "main": true,
	"blockquote": true, "ul": true, "ol": true, "li": true, "pre": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"table": true, "thead": true, "tbody": true, "tr": true,
	"dl": true, "dt": true, "dd": true, "figure": true, "figcaption": true,
	"hr": true, "address": true, "details": true, "summary": true,
}

// converter renders a node subtree as paragraphs of plain text.
type converter struct {
	opts       Options
	paragraphs []string
	line       strings.Builder
	prefix     string
	listDepth  int
	inPre      bool
	verbatim   bool
}

// renderText converts the subtree rooted at n to canonical text.
func renderText(n *html.Node, opts Options) string {
	c := &converter{opts: opts}
	c.walk(n)
	c.flush()
	return utils.CollapseBlankLines(strings.Join(c.paragraphs, "\n\n"))
}

func (c *converter) walk(n *html.Node) {
	switch n.Type {
	case html.TextNode:
		c.text(n.Data)
		return
	case html.ElementNode:
	case html.DocumentNode:
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			c.walk(child)
		}
		return
	default:
		return
	}

	tag := n.Data
	switch tag {
	case "br":
		c.line.WriteString("\n")
		return
	case "img":
		if c.opts.IncludeImages {
			if alt := strings.TrimSpace(attr(n, "alt")); alt != "" {
				c.text("[" + alt + "]")
			}
		}
		return
	case "hr":
		c.flush()
		return
	case "pre":
		c.flush()
		c.inPre = true
		c.verbatim = true
		c.children(n)
		c.flush()
		c.inPre = false
		return
	case "ul", "ol":
		c.flush()
		c.listDepth++
		c.children(n)
		c.flush()
		c.listDepth--
		return
	case "li":
		c.flush()
		depth := c.listDepth
		if depth < 1 {
			depth = 1
		}
		c.prefix = strings.Repeat("  ", depth-1) + "* "
		c.children(n)
		c.flush()
		c.prefix = ""
		return
	case "h1", "h2", "h3", "h4", "h5", "h6":
		c.flush()
		c.prefix = strings.Repeat("#", int(tag[1]-'0')) + " "
		c.children(n)
		c.flush()
		c.prefix = ""
		return
	case "td", "th":
		c.space()
		c.children(n)
		c.space()
		return
	case "a":
		start := c.line.Len()
		c.children(n)
		if c.opts.IncludeLinks {
			href := strings.TrimSpace(attr(n, "href"))
			label := ""
			if start <= c.line.Len() {
				label = strings.TrimSpace(c.line.String()[start:])
			}
			if href != "" && href != label && !strings.HasPrefix(href, "#") && !strings.HasPrefix(href, "javascript:") {
				c.text(" (" + href + ")")
			}
		}
		return
	}

	if blockElements[tag] {
		c.flush()
		c.children(n)
		c.flush()
		return
	}
	c.children(n)
}

func (c *converter) children(n *html.Node) {
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		c.walk(child)
	}
}

func (c *converter) text(s string) {
	if c.inPre {
		c.line.WriteString(s)
		return
	}
	fields := strings.Fields(s)
	if len(fields) == 0 {
		if s != "" {
			c.space()
		}
		return
	}
	if startsWithSpace(s) {
		c.space()
	}
	c.line.WriteString(strings.Join(fields, " "))
	if endsWithSpace(s) {
		c.space()
	}
}

func (c *converter) space() {
	cur := c.line.String()
	if cur == "" || strings.HasSuffix(cur, " ") || strings.HasSuffix(cur, "\n") {
		return
	}
	c.line.WriteString(" ")
}

// flush closes the current paragraph.
func (c *converter) flush() {
	raw := c.line.String()
	c.line.Reset()

	if c.verbatim {
		c.verbatim = false
		raw = strings.Trim(raw, "\n")
		if strings.TrimSpace(raw) != "" {
			c.paragraphs = append(c.paragraphs, raw)
		}
		return
	}

	lines := strings.Split(raw, "\n")
	kept := lines[:0]
	for _, l := range lines {
		l = strings.TrimSpace(l)
		if l == "" {
			continue
		}
		if c.opts.WrapColumn > 0 {
			l = wordwrap.WrapString(l, uint(c.opts.WrapColumn))
		}
		kept = append(kept, l)
	}
	if len(kept) == 0 {
		return
	}
	c.paragraphs = append(c.paragraphs, c.prefix+strings.Join(kept, "\n"))
	c.prefix = ""
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func startsWithSpace(s string) bool {
	return s != "" && strings.TrimLeft(s, " \t\r\n\f") != s
}

func endsWithSpace(s string) bool {
	return s != "" && strings.TrimRight(s, " \t\r\n\f") != s
}
