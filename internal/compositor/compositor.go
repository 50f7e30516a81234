// Package compositor merges the three sandbox streams into one HTML document.
//
// The markup is parsed with the HTML5 algorithm, so any input yields a tree.
// The composed head always starts with, in order, the default-background
// style, the sandbox style element and the bootstrap script; the body always
// ends with the sandbox script element. The root element's attributes are
// captured and handed to the bootstrap script because a rendering surface
// typically supplies its own root element.
package compositor

import (
	"bytes"
	"context"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/conneroisu/litterbox/internal/bridge"
	"github.com/conneroisu/litterbox/internal/logging"
)

const (
	// DefaultStyleID marks the default-background style.
	DefaultStyleID = "_defaultStyles"
	// DefaultStyle keeps the surface white until the sandbox style applies.
	DefaultStyle = "body{background-color:white;}"
	// DefaultScriptName is the logical source name of the sandbox script.
	DefaultScriptName = "script.js"

	fallbackMarkup = "<html><head></head><body></body></html>"
)

// Attribute is one captured root attribute, in source order.
type Attribute struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Document is the result of a full composition.
type Document struct {
	HTML           string      `json:"html"`
	RootAttributes []Attribute `json:"rootAttributes"`
	StyleID        string      `json:"styleId"`
	ScriptID       string      `json:"scriptId"`
}

// Attr returns the value of a captured root attribute.
func (d *Document) Attr(name string) (string, bool) {
	for _, attr := range d.RootAttributes {
		if attr.Name == name {
			return attr.Value, true
		}
	}

	return "", false
}

// Compositor composes documents for one preview instance. Its IDs are fixed
// for its lifetime so patches keep addressing the same elements.
type Compositor struct {
	InstanceID string
	ScriptName string

	logger logging.Logger
}

// Option configures a Compositor.
type Option func(*Compositor)

// WithInstanceID overrides the generated instance ID.
func WithInstanceID(id string) Option {
	return func(c *Compositor) {
		if id != "" {
			c.InstanceID = id
		}
	}
}

// WithScriptName sets the source name appended to the sandbox script.
func WithScriptName(name string) Option {
	return func(c *Compositor) {
		if name != "" {
			c.ScriptName = name
		}
	}
}

// WithLogger sets the compositor logger.
func WithLogger(logger logging.Logger) Option {
	return func(c *Compositor) {
		if logger != nil {
			c.logger = logger.WithComponent("compositor")
		}
	}
}

// New creates a compositor with a fresh instance ID.
func New(opts ...Option) *Compositor {
	c := &Compositor{
		InstanceID: NewInstanceID(),
		ScriptName: DefaultScriptName,
		logger:     logging.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}

	return c
}

// NewInstanceID returns a short random identifier.
func NewInstanceID() string {
	id := uuid.New()
	return strings.ReplaceAll(id.String(), "-", "")[:9]
}

// StyleID is the id of the sandbox style element.
func (c *Compositor) StyleID() string { return "sandbox-style-" + c.InstanceID }

// ScriptID is the id of the sandbox script element.
func (c *Compositor) ScriptID() string { return "sandbox-script-" + c.InstanceID }

// StateKey is the session-state key the bootstrap script persists under.
func (c *Compositor) StateKey() string { return "litterbox-state-" + c.InstanceID }

// Compose builds the full document from the three streams. It never fails:
// markup that yields no root element composes as an empty document.
func (c *Compositor) Compose(markup, css, js string) *Document {
	doc, root := parseDocument(markup)
	if root == nil {
		c.logger.Debug(context.Background(), "markup produced no root element; using empty document")
		doc, root = parseDocument(fallbackMarkup)
	}

	attrs := captureAttributes(root)
	removeElementByID(doc, DefaultStyleID)

	head := ensureChild(root, atom.Head, true)
	body := ensureChild(root, atom.Body, false)

	bootstrap := renderBootstrap(bootstrapData{
		RootAttributes: attrs,
		DefaultStyleID: DefaultStyleID,
		StyleID:        c.StyleID(),
		StateKey:       c.StateKey(),
		SetCSSCommand:  bridge.CommandSetCSS,
		AlertCommand:   bridge.CommandAlert,
	})

	// Each prepend lands in front of the previous one.
	prepend(head, newElement(atom.Script, "", escapeRawText(bootstrap, "script")))
	prepend(head, newElement(atom.Style, c.StyleID(), escapeRawText(css, "style")))
	prepend(head, newElement(atom.Style, DefaultStyleID, DefaultStyle))

	script := js + "\n//# sourceURL=" + c.ScriptName
	body.AppendChild(newElement(atom.Script, c.ScriptID(), escapeRawText(script, "script")))

	var buf bytes.Buffer
	if err := html.Render(&buf, doc); err != nil {
		c.logger.Warn(context.Background(), err, "rendering composed document failed; using empty document")
		if markup != fallbackMarkup {
			return c.Compose(fallbackMarkup, css, js)
		}
		buf.Reset()
		buf.WriteString(fallbackMarkup)
	}

	return &Document{
		HTML:           buf.String(),
		RootAttributes: attrs,
		StyleID:        c.StyleID(),
		ScriptID:       c.ScriptID(),
	}
}

func parseDocument(markup string) (*html.Node, *html.Node) {
	doc, err := html.Parse(strings.NewReader(markup))
	if err != nil {
		return nil, nil
	}

	for n := doc.FirstChild; n != nil; n = n.NextSibling {
		if n.Type == html.ElementNode && n.DataAtom == atom.Html {
			return doc, n
		}
	}

	return doc, nil
}

func captureAttributes(root *html.Node) []Attribute {
	attrs := make([]Attribute, 0, len(root.Attr))
	for _, a := range root.Attr {
		name := a.Key
		if a.Namespace != "" {
			name = a.Namespace + ":" + a.Key
		}
		attrs = append(attrs, Attribute{Name: name, Value: a.Val})
	}

	return attrs
}

// ensureChild finds root's head or body, creating it when the parser left
// it out (a frameset document has no body).
func ensureChild(root *html.Node, a atom.Atom, first bool) *html.Node {
	for n := root.FirstChild; n != nil; n = n.NextSibling {
		if n.Type == html.ElementNode && n.DataAtom == a {
			return n
		}
	}

	n := &html.Node{Type: html.ElementNode, DataAtom: a, Data: a.String()}
	if first {
		prepend(root, n)
	} else {
		root.AppendChild(n)
	}

	return n
}

func removeElementByID(doc *html.Node, id string) {
	var matches []*html.Node

	var traverse func(*html.Node)
	traverse = func(n *html.Node) {
		if n.Type == html.ElementNode && attr(n, "id") == id {
			matches = append(matches, n)
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			traverse(c)
		}
	}
	traverse(doc)

	for _, n := range matches {
		n.Parent.RemoveChild(n)
	}
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			return a.Val
		}
	}

	return ""
}

func newElement(a atom.Atom, id, text string) *html.Node {
	n := &html.Node{Type: html.ElementNode, DataAtom: a, Data: a.String()}
	if id != "" {
		n.Attr = []html.Attribute{{Key: "id", Val: id}}
	}
	n.AppendChild(&html.Node{Type: html.TextNode, Data: text})

	return n
}

func prepend(parent, child *html.Node) {
	parent.InsertBefore(child, parent.FirstChild)
}

var rawTextClosers = map[string]*regexp.Regexp{
	"script": regexp.MustCompile(`(?i)</(script)`),
	"style":  regexp.MustCompile(`(?i)</(style)`),
}

// escapeRawText keeps a fragment from closing its raw-text element early.
// "</script" becomes "<\/script", which JavaScript and CSS both read back as
// the same characters inside strings.
func escapeRawText(text, element string) string {
	return rawTextClosers[element].ReplaceAllString(text, `<\/$1`)
}
