// Package content reads the rendered page of an attached target and exposes
// it as a goquery document.
package content

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/GriffinCanCode/devbridge/internal/cdp"
	"github.com/GriffinCanCode/devbridge/internal/protocol"
	"github.com/PuerkitoBio/goquery"
)

type documentResult struct {
	Root struct {
		NodeID      int    `json:"nodeId"`
		DocumentURL string `json:"documentURL"`
		BaseURL     string `json:"baseURL"`
	} `json:"root"`
}

type outerHTMLResult struct {
	OuterHTML string `json:"outerHTML"`
}

// Page is a parsed snapshot of a target's DOM.
type Page struct {
	*goquery.Document
	URL  string
	HTML string
}

// HTML returns the serialized document of the target addressed by ctx.
func HTML(ctx context.Context, client *cdp.Client) (string, string, error) {
	dom, err := client.Domain("DOM")
	if err != nil {
		return "", "", err
	}

	doc, err := cdp.CallAs[documentResult](ctx, dom, "getDocument", protocol.NewParams("depth", 0))
	if err != nil {
		return "", "", fmt.Errorf("get document: %w", err)
	}
	if doc.Root.NodeID == 0 {
		return "", "", fmt.Errorf("get document: no root node")
	}

	out, err := cdp.CallAs[outerHTMLResult](ctx, dom, "getOuterHTML", protocol.NewParams("nodeId", doc.Root.NodeID))
	if err != nil {
		return "", "", fmt.Errorf("get outer html: %w", err)
	}

	base := doc.Root.BaseURL
	if base == "" {
		base = doc.Root.DocumentURL
	}
	return out.OuterHTML, base, nil
}

// Document fetches and parses the target's DOM.
func Document(ctx context.Context, client *cdp.Client) (*Page, error) {
	html, base, err := HTML(ctx, client)
	if err != nil {
		return nil, err
	}
	return Parse(html, base)
}

// Parse wraps already serialized markup. base resolves relative links and may
// be empty.
func Parse(html, base string) (*Page, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	if base != "" {
		if u, err := url.Parse(base); err == nil {
			doc.Url = u
		}
	}
	return &Page{Document: doc, URL: base, HTML: html}, nil
}

// Title returns <title>, falling back to og:title.
func (p *Page) Title() string {
	title := strings.TrimSpace(p.Find("title").First().Text())
	if title == "" {
		title = strings.TrimSpace(p.Find("meta[property='og:title']").AttrOr("content", ""))
	}
	return title
}

// Text returns the body text with whitespace collapsed.
func (p *Page) Text() string {
	return strings.Join(strings.Fields(p.Find("body").Text()), " ")
}

// Links returns the distinct hrefs in document order, resolved against the
// page URL when one is known. Fragment-only and script links are skipped.
func (p *Page) Links() []string {
	seen := make(map[string]struct{})
	var links []string
	p.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href := strings.TrimSpace(s.AttrOr("href", ""))
		if href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(strings.ToLower(href), "javascript:") {
			return
		}
		if p.Url != nil {
			if ref, err := url.Parse(href); err == nil {
				href = p.Url.ResolveReference(ref).String()
			}
		}
		if _, dup := seen[href]; dup {
			return
		}
		seen[href] = struct{}{}
		links = append(links, href)
	})
	return links
}
