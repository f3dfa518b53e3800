// Package markdown converts the rich-markup bodies captured from the chat
// UI into Markdown. It is deliberately not a general HTML-to-Markdown
// library: it covers exactly the fragment shapes the host site emits and
// degrades unknown elements to their text content.
package markdown

import (
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

// blankRuns matches three or more consecutive newlines. Any run of blank
// lines, however long, squeezes to a single blank line; the separation is
// cosmetic and one blank line is the Markdown block boundary.
var blankRuns = regexp.MustCompile(`\n{3,}`)

// Convert renders an HTML fragment as Markdown. Unparseable input is
// returned as-is rather than dropped.
func Convert(markup string) string {
	doc, err := html.Parse(strings.NewReader(markup))
	if err != nil {
		return markup
	}
	body := findElement(doc, "body")
	if body == nil {
		return markup
	}
	return Collapse(convertChildren(body))
}

// Collapse trims the output and squeezes runs of three or more newlines
// down to a single blank line.
func Collapse(s string) string {
	return strings.TrimSpace(blankRuns.ReplaceAllString(s, "\n\n"))
}

func convertNode(n *html.Node) string {
	switch n.Type {
	case html.TextNode:
		return n.Data
	case html.ElementNode:
		return convertElement(n)
	default:
		return ""
	}
}

func convertChildren(n *html.Node) string {
	var sb strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		sb.WriteString(convertNode(c))
	}
	return sb.String()
}

// convertElement applies a fixed tag template to the already-converted
// children (a bottom-up fold). Unrecognized elements pass their children
// through unchanged so no descendant text is ever lost.
func convertElement(n *html.Node) string {
	switch n.Data {
	case "p":
		return convertChildren(n) + "\n\n"
	case "br":
		return "\n"
	case "strong", "b":
		return "**" + convertChildren(n) + "**"
	case "em", "i":
		return "*" + convertChildren(n) + "*"
	case "code":
		// Only inline code reaches the generic path; <pre> consumes its
		// inner <code> directly.
		return "`" + convertChildren(n) + "`"
	case "pre":
		return fencedBlock(n)
	case "h1", "h2", "h3", "h4":
		level := int(n.Data[1] - '0')
		return strings.Repeat("#", level) + " " + convertChildren(n) + "\n\n"
	case "ul":
		return convertChildren(n) + "\n"
	case "ol":
		return orderedList(n)
	case "li":
		return "- " + strings.TrimSpace(convertChildren(n)) + "\n"
	case "a":
		href := attrVal(n, "href")
		if href == "" {
			href = "#"
		}
		return "[" + convertChildren(n) + "](" + href + ")"
	case "hr":
		return "---\n\n"
	case "blockquote":
		return blockquote(convertChildren(n))
	default:
		return convertChildren(n)
	}
}

// orderedList re-numbers its immediate list items sequentially from 1;
// numbering is applied here, not by the items themselves.
func orderedList(n *html.Node) string {
	var sb strings.Builder
	num := 0
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && c.Data == "li" {
			num++
			fmt.Fprintf(&sb, "%d. %s\n", num, strings.TrimSpace(convertChildren(c)))
			continue
		}
		sb.WriteString(convertNode(c))
	}
	sb.WriteString("\n")
	return sb.String()
}

// fencedBlock emits a fenced code block using the inner <code> element's
// raw text, not its converted children, so code contents are never
// escaped or re-templated. The language tag comes from a language-XXX
// class token when present.
func fencedBlock(pre *html.Node) string {
	code := findElement(pre, "code")
	src := pre
	lang := ""
	if code != nil {
		src = code
		for _, f := range strings.Fields(attrVal(code, "class")) {
			if rest, ok := strings.CutPrefix(f, "language-"); ok {
				lang = rest
				break
			}
		}
	}
	text := rawText(src)
	if !strings.HasSuffix(text, "\n") {
		text += "\n"
	}
	return "```" + lang + "\n" + text + "```\n\n"
}

func blockquote(children string) string {
	s := strings.TrimRight(children, "\n")
	return "> " + strings.ReplaceAll(s, "\n", "\n> ") + "\n\n"
}

func attrVal(n *html.Node, name string) string {
	for _, a := range n.Attr {
		if a.Key == name {
			return a.Val
		}
	}
	return ""
}

func findElement(n *html.Node, tag string) *html.Node {
	if n.Type == html.ElementNode && n.Data == tag {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findElement(c, tag); found != nil {
			return found
		}
	}
	return nil
}

func rawText(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return sb.String()
}
