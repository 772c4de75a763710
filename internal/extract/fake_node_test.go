package extract

import (
	"regexp"
	"strings"
)

// fakeNode is a hand-built tree used to exercise Extract without HTML.
type fakeNode struct {
	tag   string
	class string
	text  string
	kids  []*fakeNode
}

func (n *fakeNode) walk(fn func(*fakeNode) bool) bool {
	for _, k := range n.kids {
		if fn(k) || k.walk(fn) {
			return true
		}
	}
	return false
}

func (n *fakeNode) FindTag(tag string) (Node, bool) {
	var found *fakeNode
	n.walk(func(k *fakeNode) bool {
		if k.tag == tag {
			found = k
			return true
		}
		return false
	})
	return found, found != nil
}

func (n *fakeNode) FindAllTag(tag string) []Node {
	var out []Node
	n.walk(func(k *fakeNode) bool {
		if k.tag == tag {
			out = append(out, k)
		}
		return false
	})
	return out
}

func (n *fakeNode) FindClass(tag string, pattern *regexp.Regexp) (Node, bool) {
	var found *fakeNode
	n.walk(func(k *fakeNode) bool {
		if k.tag == tag && k.class != "" && classMatches(pattern, k.class) {
			found = k
			return true
		}
		return false
	})
	return found, found != nil
}

func (n *fakeNode) Children() []Node {
	out := make([]Node, 0, len(n.kids))
	for _, k := range n.kids {
		out = append(out, k)
	}
	return out
}

func (n *fakeNode) Text() string {
	parts := []string{}
	if t := strings.TrimSpace(n.text); t != "" {
		parts = append(parts, t)
	}
	for _, k := range n.kids {
		if t := k.Text(); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, " ")
}
