// Package selector synthesizes CSS and XPath selectors for an element of a
// parsed HTML document. It mirrors the script injected into live pages, so a
// descriptor built here from a static document matches what the in-page
// reporter would have sent for the same markup.
package selector

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html"

	"pagepilot/internal/entity"
)

const (
	// MarkerClass is added to the hovered element by the in-page reporter and
	// never appears in synthesized output.
	MarkerClass = "pagepilot-highlight"

	MaxPathDepth = 3
	TextLimit    = 30
	Ellipsis     = "..."
)

// AllowedAttributes is the fixed set of attributes copied into a descriptor.
var AllowedAttributes = []string{"name", "type", "value", "placeholder", "href", "src", "alt", "title"}

// CSS returns the most specific cheap selector for n: its id, a class unique
// in the document, its tag plus every class, or a short structural path.
func CSS(n *html.Node) string {
	if n == nil || n.Type != html.ElementNode {
		return ""
	}

	if id := Attr(n, "id"); id != "" {
		return "#" + id
	}

	classes := Classes(n)
	if len(classes) > 0 {
		root := documentOf(n)
		for _, class := range classes {
			if countClass(root, class) == 1 {
				return "." + class
			}
		}

		return strings.ToLower(n.Data) + "." + strings.Join(classes, ".")
	}

	return PathSelector(n)
}

// PathSelector builds the structural fallback: up to MaxPathDepth levels,
// stopping below the document element.
func PathSelector(n *html.Node) string {
	if n == nil || n.Type != html.ElementNode {
		return ""
	}

	var segments []string

	cur := n
	for depth := 0; depth < MaxPathDepth; depth++ {
		if cur == nil || cur.Type != html.ElementNode || isDocumentElement(cur) {
			break
		}

		segment := strings.ToLower(cur.Data)
		if index, same := sameTagPosition(cur); same > 1 {
			segment += fmt.Sprintf(":nth-child(%d)", index)
		}

		segments = append([]string{segment}, segments...)
		cur = cur.Parent
	}

	if len(segments) == 0 {
		return strings.ToLower(n.Data)
	}

	return strings.Join(segments, " > ")
}

// XPath returns `//*[@id="..."]` for elements with an id, otherwise an
// absolute indexed path from the document element.
func XPath(n *html.Node) string {
	if n == nil || n.Type != html.ElementNode {
		return ""
	}

	if id := Attr(n, "id"); id != "" {
		return fmt.Sprintf(`//*[@id="%s"]`, id)
	}

	var segments []string

	for cur := n; cur != nil && cur.Type == html.ElementNode; cur = cur.Parent {
		index := 1
		for prev := cur.PrevSibling; prev != nil; prev = prev.PrevSibling {
			if prev.Type == html.ElementNode && strings.EqualFold(prev.Data, cur.Data) {
				index++
			}
		}

		segments = append(segments, fmt.Sprintf("/%s[%d]", strings.ToLower(cur.Data), index))
	}

	var b strings.Builder
	for i := len(segments) - 1; i >= 0; i-- {
		b.WriteString(segments[i])
	}

	return b.String()
}

func Describe(n *html.Node) entity.ElementDescriptor {
	attrs := make(map[string]string)

	for _, name := range AllowedAttributes {
		if v, ok := lookupAttr(n, name); ok {
			attrs[name] = v
		}
	}

	return entity.ElementDescriptor{
		TagName:       strings.ToLower(n.Data),
		ID:            Attr(n, "id"),
		Classes:       strings.Join(Classes(n), " "),
		Text:          Truncate(strings.TrimSpace(TextContent(n)), TextLimit),
		CSSSelector:   CSS(n),
		XPathSelector: XPath(n),
		Attributes:    attrs,
	}
}

// Truncate cuts s to limit runes and appends Ellipsis when anything was cut.
func Truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}

	runes := []rune(s)

	return string(runes[:limit]) + Ellipsis
}

func Attr(n *html.Node, name string) string {
	v, _ := lookupAttr(n, name)

	return v
}

// Classes returns the class tokens of n without the reporter marker.
func Classes(n *html.Node) []string {
	var out []string

	for _, class := range strings.Fields(Attr(n, "class")) {
		if class != MarkerClass {
			out = append(out, class)
		}
	}

	return out
}

// TextContent concatenates every descendant text node, like DOM textContent.
func TextContent(n *html.Node) string {
	var b strings.Builder

	var walk func(*html.Node)
	walk = func(node *html.Node) {
		if node.Type == html.TextNode {
			b.WriteString(node.Data)
		}

		for c := node.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)

	return b.String()
}

func lookupAttr(n *html.Node, name string) (string, bool) {
	for _, a := range n.Attr {
		if a.Namespace == "" && strings.EqualFold(a.Key, name) {
			return a.Val, true
		}
	}

	return "", false
}

func documentOf(n *html.Node) *html.Node {
	root := n
	for root.Parent != nil {
		root = root.Parent
	}

	return root
}

func isDocumentElement(n *html.Node) bool {
	return n.Parent == nil || n.Parent.Type == html.DocumentNode
}

// sameTagPosition returns the 1-based position of n among its parent's
// children with the same tag, and how many such children there are.
func sameTagPosition(n *html.Node) (index, same int) {
	if n.Parent == nil {
		return 1, 1
	}

	for c := n.Parent.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.ElementNode || !strings.EqualFold(c.Data, n.Data) {
			continue
		}

		same++
		if c == n {
			index = same
		}
	}

	return index, same
}

func countClass(root *html.Node, class string) int {
	count := 0

	var walk func(*html.Node)
	walk = func(node *html.Node) {
		if node.Type == html.ElementNode {
			for _, c := range strings.Fields(Attr(node, "class")) {
				if c == class {
					count++

					break
				}
			}
		}

		for c := node.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)

	return count
}
