// Package dom is the host document plugins see through their DOM API. It is
// an HTML node tree the host UI mirrors; listeners registered on elements
// are fired when the host relays UI events with Dispatch.
package dom

import (
	"bytes"
	"fmt"
	"sort"
	"strings"
	"sync"

	"mdviewer/pkg/plugin"

	"go.uber.org/zap"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Element ids of the fixed host containers.
const (
	ToolbarID = "toolbar"
	ContentID = "content"
)

// Document is the host document.
type Document struct {
	logger *zap.Logger

	mu      sync.RWMutex
	root    *html.Node
	body    *Node
	toolbar *Node
	content *Node
	nodes   map[*html.Node]*Node
}

// NewDocument builds an empty document with the toolbar and content
// containers in place.
func NewDocument(logger *zap.Logger) *Document {
	d := &Document{
		logger: logger.Named("dom"),
		nodes:  make(map[*html.Node]*Node),
	}

	d.root = &html.Node{Type: html.DocumentNode}
	htmlEl := newElementNode("html", nil)
	bodyEl := newElementNode("body", nil)
	d.root.AppendChild(htmlEl)
	htmlEl.AppendChild(bodyEl)

	d.body = d.wrap(bodyEl)
	d.toolbar = d.wrap(newElementNode("div", map[string]string{"id": ToolbarID}))
	d.content = d.wrap(newElementNode("div", map[string]string{"id": ContentID}))
	bodyEl.AppendChild(d.toolbar.n)
	bodyEl.AppendChild(d.content.n)

	return d
}

func newElementNode(tag string, attrs map[string]string) *html.Node {
	n := &html.Node{
		Type:     html.ElementNode,
		Data:     tag,
		DataAtom: atom.Lookup([]byte(tag)),
	}

	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		n.Attr = append(n.Attr, html.Attribute{Key: k, Val: attrs[k]})
	}
	return n
}

func (d *Document) wrap(n *html.Node) *Node {
	if w, ok := d.nodes[n]; ok {
		return w
	}
	w := &Node{doc: d, n: n}
	d.nodes[n] = w
	return w
}

// The document index maps attached nodes to their wrappers. Wrappers of a
// detached subtree are held by the subtree root in Node.detached, so the
// document keeps nothing alive for elements that were removed.

// unindex moves the wrappers of n's subtree from the document index into
// owner.
func (d *Document) unindex(owner *Node, n *html.Node) {
	walk(n, func(n *html.Node) bool {
		if w, ok := d.nodes[n]; ok {
			delete(d.nodes, n)
			owner.hold(n, w)
		}
		return true
	})
}

// reindex puts c and every wrapper held under it back into the document
// index. Wrappers of nodes no longer under c are dropped.
func (d *Document) reindex(c *Node) {
	held := map[*html.Node]*Node{c.n: c}
	walk(c.n, func(n *html.Node) bool {
		w, ok := held[n]
		if !ok {
			return true
		}
		for k, v := range w.detached {
			if _, seen := held[k]; !seen {
				held[k] = v
			}
		}
		w.detached = nil
		d.nodes[n] = w
		return true
	})
}

// adopt hands c, and whatever it holds, to the detached subtree of owner.
func (d *Document) adopt(owner, c *Node) {
	d.unindex(owner, c.n)
	owner.hold(c.n, c)
	for k, v := range c.detached {
		owner.hold(k, v)
	}
	c.detached = nil
}

// forget drops n and its descendants from the document index.
func (d *Document) forget(n *html.Node) {
	walk(n, func(n *html.Node) bool {
		delete(d.nodes, n)
		return true
	})
}

func (d *Document) attached(n *html.Node) bool {
	for p := n; p != nil; p = p.Parent {
		if p == d.root {
			return true
		}
	}
	return false
}

// Indexed returns how many element wrappers the document holds.
func (d *Document) Indexed() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.nodes)
}

// Body returns the body element.
func (d *Document) Body() plugin.Element { return d.body }

// ContentContainer returns the element the rendered markdown lives in.
func (d *Document) ContentContainer() plugin.Element { return d.content }

// Toolbar returns the toolbar container.
func (d *Document) Toolbar() plugin.Element { return d.toolbar }

// CreateElement returns a detached element. It enters the document index
// once appended under an attached element.
func (d *Document) CreateElement(tag string, attrs map[string]string) plugin.Element {
	return &Node{doc: d, n: newElementNode(tag, attrs)}
}

// Query returns the first attached element matching selector, or nil.
func (d *Document) Query(selector string) plugin.Element {
	d.mu.Lock()
	defer d.mu.Unlock()

	if n := d.find(d.root, parseSelector(selector)); n != nil {
		return d.wrap(n)
	}
	return nil
}

// QueryAll returns every attached element matching selector.
func (d *Document) QueryAll(selector string) []plugin.Element {
	d.mu.Lock()
	defer d.mu.Unlock()

	sel := parseSelector(selector)
	var out []plugin.Element
	walk(d.root, func(n *html.Node) bool {
		if n != d.root && sel.matches(n) {
			out = append(out, d.wrap(n))
		}
		return true
	})
	return out
}

// Render serializes the document to HTML.
func (d *Document) Render() (string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var buf bytes.Buffer
	if err := html.Render(&buf, d.root); err != nil {
		return "", fmt.Errorf("failed to render document: %w", err)
	}
	return buf.String(), nil
}

func (d *Document) find(from *html.Node, sel selector) *html.Node {
	var found *html.Node
	walk(from, func(n *html.Node) bool {
		if n != from && sel.matches(n) {
			found = n
			return false
		}
		return true
	})
	return found
}

// walk visits n and its descendants depth-first until visit returns false.
func walk(n *html.Node, visit func(*html.Node) bool) bool {
	if !visit(n) {
		return false
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if !walk(c, visit) {
			return false
		}
	}
	return true
}

// selector supports "#id", ".class" and "tag".
type selector struct {
	id, class, tag string
}

func parseSelector(s string) selector {
	s = strings.TrimSpace(s)
	switch {
	case strings.HasPrefix(s, "#"):
		return selector{id: s[1:]}
	case strings.HasPrefix(s, "."):
		return selector{class: s[1:]}
	default:
		return selector{tag: strings.ToLower(s)}
	}
}

func (s selector) matches(n *html.Node) bool {
	if n.Type != html.ElementNode {
		return false
	}
	switch {
	case s.id != "":
		return attr(n, "id") == s.id
	case s.class != "":
		for _, c := range strings.Fields(attr(n, "class")) {
			if c == s.class {
				return true
			}
		}
		return false
	case s.tag != "":
		return n.Data == s.tag
	}
	return false
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}
