// Package page holds the HTML document a widget renders into.
package page

import (
	"fmt"
	"io"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// DOM is the part of a document the widgets depend on.
//
// note: fault injection point
type DOM interface {
	// Element returns the first element whose id is exactly `id`.
	Element(id string) (Element, bool)
}

type Element interface {
	Text() string
	// SetText replaces all children of the element with a single text node.
	SetText(text string)
}

// Document is a DOM backed by a parsed HTML document.
type Document struct {
	doc *goquery.Document
}

func Load(r io.Reader) (*Document, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return &Document{doc: doc}, nil
}

func (d *Document) Element(id string) (Element, bool) {
	// matched by attribute value instead of "#id" so that ids containing
	// selector syntax are looked up literally
	sel := d.doc.Find("[id]").FilterFunction(func(_ int, s *goquery.Selection) bool {
		return s.AttrOr("id", "") == id
	}).First()
	if sel.Length() == 0 {
		return nil, false
	}
	return element{sel: sel}, true
}

// Render writes the whole document as HTML.
func (d *Document) Render(w io.Writer) error {
	for _, n := range d.doc.Nodes {
		err := html.Render(w, n)
		if err != nil {
			return err
		}
	}
	return nil
}

type element struct {
	sel *goquery.Selection
}

func (e element) Text() string {
	return e.sel.Text()
}

func (e element) SetText(text string) {
	e.sel.SetText(text)
}
