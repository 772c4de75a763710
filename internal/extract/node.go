package extract

import (
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// Node is the queryable document capability the extractor depends on.
type Node interface {
	// FindTag returns the first descendant element with the tag name.
	FindTag(tag string) (Node, bool)
	// FindAllTag returns every descendant element with the tag name, in document order.
	FindAllTag(tag string) []Node
	// FindClass returns the first descendant element with the tag name whose
	// class attribute matches pattern.
	FindClass(tag string, pattern *regexp.Regexp) (Node, bool)
	// Children returns the immediate child elements.
	Children() []Node
	// Text returns the visible text, each text run trimmed and joined by a single space.
	Text() string
}

// Parse reads an HTML document into a Node backed by goquery.
func Parse(r io.Reader) (Node, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return selectionNode{sel: doc.Selection}, nil
}

// FromSelection wraps an existing goquery selection.
func FromSelection(sel *goquery.Selection) Node {
	return selectionNode{sel: sel}
}

type selectionNode struct {
	sel *goquery.Selection
}

func (n selectionNode) FindTag(tag string) (Node, bool) {
	return first(n.sel.Find(tag))
}

func (n selectionNode) FindAllTag(tag string) []Node {
	return each(n.sel.Find(tag))
}

func (n selectionNode) FindClass(tag string, pattern *regexp.Regexp) (Node, bool) {
	matches := n.sel.Find(tag).FilterFunction(func(_ int, s *goquery.Selection) bool {
		class, ok := s.Attr("class")
		return ok && classMatches(pattern, class)
	})
	return first(matches)
}

func (n selectionNode) Children() []Node {
	return each(n.sel.Children())
}

func (n selectionNode) Text() string {
	var parts []string
	for _, node := range n.sel.Nodes {
		collectText(node, &parts)
	}
	return strings.Join(parts, " ")
}

func first(sel *goquery.Selection) (Node, bool) {
	if sel.Length() == 0 {
		return nil, false
	}
	return selectionNode{sel: sel.First()}, true
}

func each(sel *goquery.Selection) []Node {
	out := make([]Node, 0, sel.Length())
	sel.Each(func(_ int, s *goquery.Selection) {
		out = append(out, selectionNode{sel: s})
	})
	return out
}

func collectText(node *html.Node, parts *[]string) {
	if node.Type == html.TextNode {
		if text := strings.TrimSpace(node.Data); text != "" {
			*parts = append(*parts, text)
		}
		return
	}
	for child := node.FirstChild; child != nil; child = child.NextSibling {
		collectText(child, parts)
	}
}

// classMatches tests the whole attribute first, then each class token.
func classMatches(pattern *regexp.Regexp, class string) bool {
	if pattern.MatchString(class) {
		return true
	}
	for _, token := range strings.Fields(class) {
		if pattern.MatchString(token) {
			return true
		}
	}
	return false
}
