package fragment

import (
	"strings"

	"golang.org/x/net/html"
)

// Host-site structural hints. The chat UI tags each rendered message with a
// data-testid, marks rich-text bodies with a "prose"-style class, renders the
// capture time as a date label immediately followed by a time label, and
// annotates assistant turns with small status chips (thinking / tool use).
const (
	identityAttr = "data-testid"
	userIDPrefix = "user-message"
	proseClass   = "prose"
	dateClass    = "message-date"
	timeClass    = "message-time"
	statusClass  = "status-label"
)

// Parse extracts a Record from one candidate fragment. The second return is
// false when the fragment carries no usable identity and is not a message.
// Parse never fails on malformed sub-structure; every missing piece degrades
// to an empty value.
func Parse(c Candidate) (Record, bool) {
	doc, err := html.Parse(strings.NewReader(c.HTML))
	if err != nil {
		return Record{}, false
	}

	node := findByAttr(doc, identityAttr)
	if node == nil {
		return Record{}, false
	}
	id := attrVal(node, identityAttr)
	if id == "" {
		return Record{}, false
	}

	rec := Record{
		ID:            id,
		Role:          RoleAssistant,
		SortKey:       c.Offset,
		TimestampText: extractTimestamp(node),
	}
	if strings.HasPrefix(id, userIDPrefix) {
		rec.Role = RoleUser
	}

	if rec.Role == RoleUser {
		rec.ContentMarkup, rec.ContentText = userContent(node)
	} else {
		rec.ContentMarkup, rec.ContentText = assistantContent(node)
	}
	return rec, true
}

// userContent reads the single rich-text container of a user message.
func userContent(node *html.Node) (markup, text string) {
	prose := findByClass(node, proseClass)
	if prose == nil {
		return "", ""
	}
	return innerHTML(prose), strings.TrimSpace(innerText(prose))
}

// assistantContent reads every rich-text container under an assistant
// message, falling back to the node's full text when none exist. Status
// chips become one bracketed metadata line on the text field only.
func assistantContent(node *html.Node) (markup, text string) {
	proses := findAllByClass(node, proseClass)

	var markups, texts []string
	for _, p := range proses {
		markups = append(markups, innerHTML(p))
		if t := strings.TrimSpace(innerText(p)); t != "" {
			texts = append(texts, t)
		}
	}
	markup = strings.Join(markups, "\n")
	text = strings.Join(texts, "\n\n")
	if len(proses) == 0 {
		text = strings.TrimSpace(innerText(node))
	}

	if labels := statusLabels(node); len(labels) > 0 {
		line := "[" + strings.Join(labels, ", ") + "]"
		if text == "" {
			text = line
		} else {
			text = line + "\n" + text
		}
	}
	return markup, text
}

// extractTimestamp joins the date label and the immediately following time
// label with a single space. Missing either side yields "".
func extractTimestamp(node *html.Node) string {
	date := findByClass(node, dateClass)
	if date == nil {
		return ""
	}
	for sib := date.NextSibling; sib != nil; sib = sib.NextSibling {
		if sib.Type != html.ElementNode {
			continue
		}
		if !hasClass(sib, timeClass) {
			return ""
		}
		d := strings.TrimSpace(innerText(date))
		t := strings.TrimSpace(innerText(sib))
		if d == "" || t == "" {
			return ""
		}
		return d + " " + t
	}
	return ""
}

func statusLabels(node *html.Node) []string {
	var labels []string
	for _, el := range findAllByClass(node, statusClass) {
		if t := strings.TrimSpace(innerText(el)); t != "" {
			labels = append(labels, t)
		}
	}
	return labels
}

// ----- html.Node helpers -----

func attrVal(n *html.Node, name string) string {
	for _, a := range n.Attr {
		if a.Key == name {
			return a.Val
		}
	}
	return ""
}

func hasClass(n *html.Node, token string) bool {
	for _, f := range strings.Fields(attrVal(n, "class")) {
		if f == token {
			return true
		}
	}
	return false
}

// findByAttr returns the first element carrying the named attribute with a
// non-empty value, in document order.
func findByAttr(n *html.Node, name string) *html.Node {
	if n.Type == html.ElementNode && attrVal(n, name) != "" {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findByAttr(c, name); found != nil {
			return found
		}
	}
	return nil
}

func findByClass(n *html.Node, token string) *html.Node {
	if n.Type == html.ElementNode && hasClass(n, token) {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findByClass(c, token); found != nil {
			return found
		}
	}
	return nil
}

// findAllByClass collects matching elements in document order without
// descending into a match (nested containers belong to their outermost one).
func findAllByClass(n *html.Node, token string) []*html.Node {
	if n.Type == html.ElementNode && hasClass(n, token) {
		return []*html.Node{n}
	}
	var out []*html.Node
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		out = append(out, findAllByClass(c, token)...)
	}
	return out
}

func innerText(n *html.Node) string {
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

func innerHTML(n *html.Node) string {
	var sb strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		_ = html.Render(&sb, c)
	}
	return strings.TrimSpace(sb.String())
}
