package htmlutil

import (
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html"
)

// Table is the first result table of a document: header cells (possibly
// empty) and body rows of trimmed cell text.
type Table struct {
	Headers []string
	Rows    [][]string
}

// ParseTable parses the first <table> in the document. A table-less
// document is not an error; it returns a Table with zero rows, because the
// registry renders no table at all for an empty result set.
func ParseTable(r io.Reader) (*Table, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parse table document: %w", err)
	}

	tableNode := findFirst(doc, "table")
	if tableNode == nil {
		return &Table{}, nil
	}

	table := &Table{}

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "tr" {
			ths := cellTexts(n, "th")
			tds := cellTexts(n, "td")
			switch {
			case len(ths) > 0 && len(table.Headers) == 0 && len(table.Rows) == 0:
				table.Headers = ths
			case len(tds) > 0:
				table.Rows = append(table.Rows, tds)
			}
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(tableNode)

	return table, nil
}

// cellTexts collects the trimmed text of the row's direct tag children.
func cellTexts(tr *html.Node, tag string) []string {
	var out []string
	for c := tr.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && c.Data == tag {
			out = append(out, strings.Join(strings.Fields(textContent(c)), " "))
		}
	}
	return out
}
