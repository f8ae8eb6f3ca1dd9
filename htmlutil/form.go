package htmlutil

import (
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html"
)

// FormField is one input/select/textarea inside a form, in document order.
type FormField struct {
	Name   string
	Value  string
	Type   string // lowercase input type; "select" / "textarea" for those tags
	Hidden bool
}

// Form is the first <form> of a document, captured closely enough to replay
// it: the stateful protocol requires every field to be echoed back unchanged
// on the next submission.
type Form struct {
	Action string
	Fields []FormField
}

// ParseForm parses the first form in the document. Returns an error when
// the document has no form at all.
func ParseForm(r io.Reader) (*Form, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parse form document: %w", err)
	}

	formNode := findFirst(doc, "form")
	if formNode == nil {
		return nil, fmt.Errorf("document contains no form")
	}

	form := &Form{Action: attr(formNode, "action")}

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "input":
				typ := strings.ToLower(attr(n, "type"))
				if typ == "" {
					typ = "text"
				}
				form.Fields = append(form.Fields, FormField{
					Name:   attr(n, "name"),
					Value:  attr(n, "value"),
					Type:   typ,
					Hidden: typ == "hidden",
				})
			case "select":
				form.Fields = append(form.Fields, FormField{
					Name:  attr(n, "name"),
					Value: selectedOption(n),
					Type:  "select",
				})
			case "textarea":
				form.Fields = append(form.Fields, FormField{
					Name:  attr(n, "name"),
					Value: textContent(n),
					Type:  "textarea",
				})
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(formNode)

	return form, nil
}

// StateToken returns the name of the hidden field carrying the session-bound
// form state, or "" when the page has none. The registry's framework names
// its bookkeeping fields with a double-underscore prefix; a hidden field
// whose name mentions "state" counts as well.
func (f *Form) StateToken() string {
	for _, field := range f.Fields {
		if !field.Hidden || field.Name == "" {
			continue
		}
		lower := strings.ToLower(field.Name)
		if strings.HasPrefix(field.Name, "__") || strings.Contains(lower, "state") {
			return field.Name
		}
	}
	return ""
}

// Submits returns the submit-typed fields, in document order.
func (f *Form) Submits() []FormField {
	var out []FormField
	for _, field := range f.Fields {
		if field.Type == "submit" || field.Type == "image" || field.Type == "button" {
			out = append(out, field)
		}
	}
	return out
}

// TextInputs returns the names of plain text/search inputs, in document order.
func (f *Form) TextInputs() []string {
	var out []string
	for _, field := range f.Fields {
		if field.Name == "" {
			continue
		}
		if field.Type == "text" || field.Type == "search" {
			out = append(out, field.Name)
		}
	}
	return out
}

func findFirst(n *html.Node, tag string) *html.Node {
	if n.Type == html.ElementNode && n.Data == tag {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findFirst(c, tag); found != nil {
			return found
		}
	}
	return nil
}

func attr(n *html.Node, name string) string {
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, name) {
			return a.Val
		}
	}
	return ""
}

// selectedOption returns the value of the selected option, defaulting to
// the first option the way a browser would.
func selectedOption(sel *html.Node) string {
	first := ""
	for c := sel.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.ElementNode || c.Data != "option" {
			continue
		}
		value := attr(c, "value")
		if value == "" {
			value = textContent(c)
		}
		if first == "" {
			first = value
		}
		if attr(c, "selected") != "" || hasAttr(c, "selected") {
			return value
		}
	}
	return first
}

func hasAttr(n *html.Node, name string) bool {
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, name) {
			return true
		}
	}
	return false
}

func textContent(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.TrimSpace(b.String())
}
