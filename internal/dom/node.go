package dom

import (
	"fmt"
	"strings"

	"mdviewer/pkg/plugin"

	"go.uber.org/zap"
	"golang.org/x/net/html"
)

// Node is an element of a Document.
type Node struct {
	doc       *Document
	n         *html.Node
	listeners map[string][]func()

	// detached holds the wrappers of this subtree while it is removed from
	// the document, so they are released together with the element.
	detached map[*html.Node]*Node
}

var _ plugin.Element = (*Node)(nil)

func (e *Node) ID() string {
	return e.Attr("id")
}

func (e *Node) Tag() string {
	return e.n.Data
}

func (e *Node) Attr(key string) string {
	e.doc.mu.RLock()
	defer e.doc.mu.RUnlock()
	return attr(e.n, key)
}

func (e *Node) SetAttr(key, value string) {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()

	for i, a := range e.n.Attr {
		if a.Key == key {
			e.n.Attr[i].Val = value
			return
		}
	}
	e.n.Attr = append(e.n.Attr, html.Attribute{Key: key, Val: value})
}

// Text returns the concatenated text of the element's descendants.
func (e *Node) Text() string {
	e.doc.mu.RLock()
	defer e.doc.mu.RUnlock()

	var b strings.Builder
	walk(e.n, func(n *html.Node) bool {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		return true
	})
	return b.String()
}

// SetText replaces the element's children with a single text node.
func (e *Node) SetText(text string) {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()

	for c := e.n.FirstChild; c != nil; {
		next := c.NextSibling
		e.n.RemoveChild(c)
		e.doc.forget(c)
		c = next
	}
	e.n.AppendChild(&html.Node{Type: html.TextNode, Data: text})
}

// AppendChild moves child under the element.
func (e *Node) AppendChild(child plugin.Element) error {
	c, ok := child.(*Node)
	if !ok || c.doc != e.doc {
		return fmt.Errorf("element %T does not belong to this document", child)
	}
	if c == e {
		return fmt.Errorf("cannot append element to itself")
	}

	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()

	for p := e.n; p != nil; p = p.Parent {
		if p == c.n {
			return fmt.Errorf("cannot append an ancestor")
		}
	}
	if c.n.Parent != nil {
		c.n.Parent.RemoveChild(c.n)
	}
	e.n.AppendChild(c.n)
	if e.doc.attached(e.n) {
		e.doc.reindex(c)
	} else {
		e.doc.adopt(e, c)
	}
	return nil
}

// Query returns the first descendant matching selector, or nil.
func (e *Node) Query(selector string) plugin.Element {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()

	n := e.doc.find(e.n, parseSelector(selector))
	switch {
	case n == nil:
		return nil
	case e.detached[n] != nil:
		return e.detached[n]
	case e.doc.attached(e.n):
		return e.doc.wrap(n)
	}
	w := &Node{doc: e.doc, n: n}
	e.hold(n, w)
	return w
}

func (e *Node) hold(n *html.Node, w *Node) {
	if e.detached == nil {
		e.detached = make(map[*html.Node]*Node)
	}
	e.detached[n] = w
}

// On registers fn for event.
func (e *Node) On(event string, fn func()) {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()

	if e.listeners == nil {
		e.listeners = make(map[string][]func())
	}
	e.listeners[event] = append(e.listeners[event], fn)
}

// Dispatch runs the listeners for event. A panicking listener is logged and
// the rest still run.
func (e *Node) Dispatch(event string) {
	e.doc.mu.RLock()
	fns := append([]func(){}, e.listeners[event]...)
	e.doc.mu.RUnlock()

	for _, fn := range fns {
		func() {
			defer func() {
				if r := recover(); r != nil {
					e.doc.logger.Error("DOM listener failed",
						zap.String("event", event),
						zap.String("element", e.n.Data),
						zap.Error(fmt.Errorf("panic: %v", r)))
				}
			}()
			fn()
		}()
	}
}

// Remove detaches the element from its parent. The document stops
// referencing the element and its descendants; appending it again restores
// them with their listeners.
func (e *Node) Remove() {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()

	if e.n.Parent != nil {
		e.n.Parent.RemoveChild(e.n)
	}
	e.doc.unindex(e, e.n)
}

// Attached reports whether the element is reachable from the document root.
func (e *Node) Attached() bool {
	e.doc.mu.RLock()
	defer e.doc.mu.RUnlock()
	return e.doc.attached(e.n)
}
