// internal/browser/static.go
package browser

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// StaticSession serves a saved HTML document through the Session interface.
// It backs --from-file runs and tests: geometry comes from width/height
// attributes, scrolling never changes the page, and clicks are no-ops, so a
// crawl over it converges after the first extraction round.
type StaticSession struct {
	doc    *goquery.Document
	source string
}

// NewStaticSessionFromFile parses the HTML document at path.
func NewStaticSessionFromFile(path string) (*StaticSession, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open snapshot %s: %w", path, err)
	}
	defer f.Close()

	doc, err := goquery.NewDocumentFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("parse snapshot %s: %w", path, err)
	}
	return &StaticSession{doc: doc, source: path}, nil
}

// NewStaticSession parses an HTML document from a string.
func NewStaticSession(html string) (*StaticSession, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse snapshot: %w", err)
	}
	return &StaticSession{doc: doc, source: "inline"}, nil
}

// Navigate is a no-op; the document is already loaded.
func (s *StaticSession) Navigate(ctx context.Context, url string) error {
	return ctx.Err()
}

func (s *StaticSession) Query(ctx context.Context, selector string) ([]Element, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var els []Element
	s.doc.Find(selector).Each(func(_ int, sel *goquery.Selection) {
		els = append(els, &staticElement{session: s, sel: sel})
	})
	return els, nil
}

func (s *StaticSession) QueryByText(ctx context.Context, substring string) ([]Element, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var els []Element
	s.doc.Find("body *").Each(func(_ int, sel *goquery.Selection) {
		if strings.Contains(ownText(sel), substring) {
			els = append(els, &staticElement{session: s, sel: sel})
		}
	})
	return els, nil
}

// ScrollBy is a no-op on a static document.
func (s *StaticSession) ScrollBy(ctx context.Context, dy int) error { return ctx.Err() }

// ScrollToBottom is a no-op on a static document.
func (s *StaticSession) ScrollToBottom(ctx context.Context) error { return ctx.Err() }

// PageHeight returns the body's height attribute, zero when absent. The
// constant height tells the driver that scrolling adds nothing.
func (s *StaticSession) PageHeight(ctx context.Context) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if v, ok := s.doc.Find("body").Attr("height"); ok {
		if h, err := strconv.ParseFloat(v, 64); err == nil {
			return h, nil
		}
	}
	return 0, nil
}

func (s *StaticSession) CurrentURL(ctx context.Context) (string, error) {
	return "file://" + s.source, ctx.Err()
}

// DismissOverlays removes matching nodes from the document.
func (s *StaticSession) DismissOverlays(ctx context.Context, selectors ...string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	for _, sel := range selectors {
		s.doc.Find(sel).Remove()
	}
	return nil
}

func (s *StaticSession) Close() error { return nil }

// staticElement wraps a goquery selection of exactly one node.
type staticElement struct {
	session *StaticSession
	sel     *goquery.Selection
}

func (e *staticElement) Text(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return blockText(e.sel), nil
}

func (e *staticElement) HTML(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	h, err := goquery.OuterHtml(e.sel)
	if err != nil {
		return "", err
	}
	return h, nil
}

func (e *staticElement) TagName(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return goquery.NodeName(e.sel), nil
}

func (e *staticElement) Attribute(ctx context.Context, name string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	v, _ := e.sel.Attr(name)
	return v, nil
}

// BoundingBox synthesizes geometry from width/height attributes. Absent
// attributes mean a zero box, which validity checks treat as invisible.
func (e *staticElement) BoundingBox(ctx context.Context) (Geometry, error) {
	if err := ctx.Err(); err != nil {
		return Geometry{}, err
	}
	return Geometry{
		Width:  attrFloat(e.sel, "width"),
		Height: attrFloat(e.sel, "height"),
	}, nil
}

func (e *staticElement) IsVisible(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if _, hidden := e.sel.Attr("hidden"); hidden {
		return false, nil
	}
	if style, ok := e.sel.Attr("style"); ok {
		compact := strings.ReplaceAll(strings.ToLower(style), " ", "")
		if strings.Contains(compact, "display:none") || strings.Contains(compact, "visibility:hidden") {
			return false, nil
		}
	}
	box, _ := e.BoundingBox(ctx)
	return box.Width > 0 && box.Height > 0, nil
}

func (e *staticElement) IsEnabled(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	_, disabled := e.sel.Attr("disabled")
	return !disabled, nil
}

// Click is a no-op; a static page has nothing to react with.
func (e *staticElement) Click(ctx context.Context) error { return ctx.Err() }

func (e *staticElement) ScrollIntoView(ctx context.Context) error { return ctx.Err() }

func (e *staticElement) Parent(ctx context.Context) (Element, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	parent := e.sel.Parent()
	if parent.Length() == 0 {
		return nil, nil
	}
	switch goquery.NodeName(parent) {
	case "body", "html", "#document":
		return nil, nil
	}
	return &staticElement{session: e.session, sel: parent}, nil
}

func (e *staticElement) Find(ctx context.Context, selector string) ([]Element, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var els []Element
	e.sel.Find(selector).Each(func(_ int, sel *goquery.Selection) {
		els = append(els, &staticElement{session: e.session, sel: sel})
	})
	return els, nil
}

func (e *staticElement) Has(ctx context.Context, selector string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return e.sel.Find(selector).Length() > 0, nil
}

// blockTags are elements that force a line break in rendered text.
var blockTags = map[string]bool{
	"div": true, "p": true, "section": true, "article": true, "li": true,
	"ul": true, "ol": true, "table": true, "tr": true, "h1": true, "h2": true,
	"h3": true, "h4": true, "h5": true, "h6": true, "header": true,
	"footer": true, "aside": true, "nav": true, "figure": true,
}

// blockText renders a subtree the way a browser's innerText does: block
// elements produce newlines, inline text concatenates, and blank lines
// collapse. Extraction regexes depend on this line structure.
func blockText(sel *goquery.Selection) string {
	var b strings.Builder
	writeNodeText(sel, &b)

	lines := strings.Split(b.String(), "\n")
	var kept []string
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line != "" {
			kept = append(kept, line)
		}
	}
	return strings.Join(kept, "\n")
}

func writeNodeText(sel *goquery.Selection, b *strings.Builder) {
	sel.Contents().Each(func(_ int, child *goquery.Selection) {
		switch name := goquery.NodeName(child); name {
		case "#text":
			b.WriteString(child.Text())
		case "br":
			b.WriteString("\n")
		case "script", "style", "#comment", "noscript":
			// Skip non-rendered content.
		default:
			if blockTags[name] {
				b.WriteString("\n")
			}
			writeNodeText(child, b)
			if blockTags[name] {
				b.WriteString("\n")
			}
		}
	})
}

// ownText concatenates only the selection's direct text nodes.
func ownText(sel *goquery.Selection) string {
	var b strings.Builder
	sel.Contents().Each(func(_ int, child *goquery.Selection) {
		if goquery.NodeName(child) == "#text" {
			b.WriteString(child.Text())
		}
	})
	return b.String()
}

func attrFloat(sel *goquery.Selection, name string) float64 {
	v, ok := sel.Attr(name)
	if !ok {
		return 0
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return 0
	}
	return f
}
