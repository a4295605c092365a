package content

import (
	"fmt"
	"strings"

	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"
)

// Node is one XPath match.
type Node struct {
	Tag   string
	Text  string
	HTML  string
	Attrs map[string]string
}

// XPath evaluates expr against the parsed page. Attribute selections such as
// //a/@href yield nodes whose Text is the attribute value.
func (p *Page) XPath(expr string) ([]Node, error) {
	if len(p.Nodes) == 0 {
		return nil, nil
	}
	matches, err := htmlquery.QueryAll(p.Nodes[0], expr)
	if err != nil {
		return nil, fmt.Errorf("xpath %q: %w", expr, err)
	}

	out := make([]Node, 0, len(matches))
	for _, n := range matches {
		node := Node{
			Tag:  n.Data,
			Text: strings.TrimSpace(htmlquery.InnerText(n)),
		}
		// attribute matches come back as detached pseudo elements
		if n.Type == html.ElementNode && n.Parent != nil {
			node.HTML = htmlquery.OutputHTML(n, true)
			if len(n.Attr) > 0 {
				node.Attrs = make(map[string]string, len(n.Attr))
				for _, a := range n.Attr {
					node.Attrs[a.Key] = a.Val
				}
			}
		}
		out = append(out, node)
	}
	return out, nil
}

// XPathText returns the trimmed text of the first match, or "" when nothing
// matches.
func (p *Page) XPathText(expr string) (string, error) {
	nodes, err := p.XPath(expr)
	if err != nil || len(nodes) == 0 {
		return "", err
	}
	return nodes[0].Text, nil
}
