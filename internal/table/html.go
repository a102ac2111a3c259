package table

import (
	"fmt"
	"io"
	"strings"

	"github.com/ppiankov/deidentify/internal/model"
	"golang.org/x/net/html"
)

// ReadHTML reads the first <table> of an HTML document. The first row is the
// header; <th> and <td> cells are both accepted. Rows of nested tables are not
// included.
func ReadHTML(r io.Reader) (model.Table, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return model.Table{}, fmt.Errorf("parse html: %w", err)
	}

	tbl := findFirst(doc, func(n *html.Node) bool {
		return n.Type == html.ElementNode && n.Data == "table"
	})
	if tbl == nil {
		return model.Table{}, &MalformedTableError{Row: -1, Reason: "no <table> element found"}
	}

	var records [][]string
	for _, tr := range tableRows(tbl) {
		var record []string
		for c := tr.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == html.ElementNode && (c.Data == "td" || c.Data == "th") {
				record = append(record, cellText(c))
			}
		}
		records = append(records, record)
	}

	if len(records) == 0 {
		return model.Table{}, &MalformedTableError{Row: -1, Reason: "missing header row"}
	}
	return model.TableFromRecords(records), nil
}

// tableRows returns the <tr> elements that belong directly to tbl, looking
// through thead/tbody/tfoot but not into nested tables.
func tableRows(tbl *html.Node) []*html.Node {
	var rows []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type != html.ElementNode {
				continue
			}
			switch c.Data {
			case "tr":
				rows = append(rows, c)
			case "thead", "tbody", "tfoot":
				walk(c)
			}
		}
	}
	walk(tbl)
	return rows
}

// cellText returns the text content of a cell with whitespace collapsed
func cellText(n *html.Node) string {
	var buf strings.Builder
	var walk func(*html.Node)
	walk = func(node *html.Node) {
		if node.Type == html.TextNode {
			buf.WriteString(node.Data)
			return
		}
		if node.Type == html.ElementNode && node.Data == "br" {
			buf.WriteString(" ")
		}
		for c := node.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.Join(strings.Fields(buf.String()), " ")
}

// findFirst finds the first node matching a predicate, depth first
func findFirst(n *html.Node, predicate func(*html.Node) bool) *html.Node {
	if predicate(n) {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findFirst(c, predicate); found != nil {
			return found
		}
	}
	return nil
}
