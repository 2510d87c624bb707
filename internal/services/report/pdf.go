package report

import (
	"bytes"
	"fmt"

	"github.com/go-pdf/fpdf"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	extast "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"

	"github.com/ternarybob/aestimo/internal/models"
)

const (
	noteMargin    = 12.0
	noteFont      = "Helvetica"
	noteFontSize  = 10.0
	noteLineH     = 5.0
	tableFontSize = 8.5
	tableLineH    = 5.5
)

// RenderPDF lays the markdown note out as an A4 document. The core PDF
// fonts cover Latin-1 only, so localized labels pass through the built-in
// translator best-effort.
func (r *Renderer) RenderPDF(bundle *models.AnalysisBundle) ([]byte, error) {
	note, err := r.RenderMarkdown(bundle)
	if err != nil {
		return nil, err
	}

	doc := fpdf.New("P", "mm", "A4", "")
	doc.SetTitle(fmt.Sprintf("%s Research Note", bundle.Input.Ticker), true)
	doc.SetMargins(noteMargin, noteMargin, noteMargin)
	doc.SetAutoPageBreak(true, noteMargin)
	doc.AddPage()
	doc.SetFont(noteFont, "", noteFontSize)

	md := goldmark.New(
		goldmark.WithExtensions(extension.Table, extension.Strikethrough, extension.Linkify),
	)
	tree := md.Parser().Parse(text.NewReader(note))

	walker := &noteWalker{
		doc:    doc,
		source: note,
		tr:     doc.UnicodeTranslatorFromDescriptor(""),
	}
	if err := ast.Walk(tree, walker.walk); err != nil {
		return nil, fmt.Errorf("lay out note: %w", err)
	}

	var buf bytes.Buffer
	if err := doc.Output(&buf); err != nil {
		return nil, fmt.Errorf("write PDF: %w", err)
	}

	if r.logger != nil {
		r.logger.Debug().
			Str("ticker", bundle.Input.Ticker).
			Int("pdf_bytes", buf.Len()).
			Msg("Research note PDF rendered")
	}
	return buf.Bytes(), nil
}

// noteWalker maps the note's markdown AST onto fpdf primitives.
type noteWalker struct {
	doc    *fpdf.Fpdf
	source []byte
	tr     func(string) string

	bold      bool
	italic    bool
	quoted    bool
	listDepth int
}

func (w *noteWalker) walk(n ast.Node, entering bool) (ast.WalkStatus, error) {
	switch n.Kind() {
	case ast.KindHeading:
		w.heading(n.(*ast.Heading), entering)
	case ast.KindParagraph:
		if !entering {
			w.doc.Ln(6)
		}
	case ast.KindText:
		if entering {
			w.text(n.(*ast.Text))
		}
	case ast.KindEmphasis:
		if n.(*ast.Emphasis).Level == 2 {
			w.bold = entering
		} else {
			w.italic = entering
		}
		w.applyFont()
	case ast.KindBlockquote:
		w.quoted = entering
		w.applyFont()
		if entering {
			w.doc.SetLeftMargin(noteMargin + 6)
		} else {
			w.doc.SetLeftMargin(noteMargin)
		}
	case ast.KindList:
		if entering {
			w.listDepth++
		} else {
			w.listDepth--
			if w.listDepth == 0 {
				w.doc.Ln(2)
			}
		}
	case ast.KindListItem:
		if entering {
			w.doc.Ln(noteLineH)
			w.doc.SetX(noteMargin + 2 + float64(w.listDepth)*4)
			w.doc.Write(noteLineH, "- ")
		}
	case ast.KindThematicBreak:
		if entering {
			w.doc.Ln(3)
			pageW, _ := w.doc.GetPageSize()
			w.doc.Line(noteMargin, w.doc.GetY(), pageW-noteMargin, w.doc.GetY())
			w.doc.Ln(3)
		}
	case extast.KindTable:
		if entering {
			w.table(n.(*extast.Table))
			return ast.WalkSkipChildren, nil
		}
	}
	return ast.WalkContinue, nil
}

func (w *noteWalker) applyFont() {
	style := ""
	if w.bold {
		style += "B"
	}
	if w.italic || w.quoted {
		style += "I"
	}
	w.doc.SetFont(noteFont, style, noteFontSize)
}

func (w *noteWalker) heading(n *ast.Heading, entering bool) {
	if !entering {
		w.doc.Ln(7)
		w.applyFont()
		return
	}
	w.doc.Ln(7)
	var size float64
	switch n.Level {
	case 1:
		size = 15
	case 2:
		size = 12
	case 3:
		size = 11
	default:
		size = 10
	}
	w.doc.SetFont(noteFont, "B", size)
}

func (w *noteWalker) text(n *ast.Text) {
	w.doc.Write(noteLineH, w.tr(string(n.Segment.Value(w.source))))
	if n.SoftLineBreak() || n.HardLineBreak() {
		w.doc.Ln(noteLineH)
	}
}

func (w *noteWalker) table(n *extast.Table) {
	rows := w.tableRows(n)
	if len(rows) == 0 || len(rows[0]) == 0 {
		return
	}

	w.doc.Ln(2)
	pageW, pageH := w.doc.GetPageSize()
	printable := pageW - 2*noteMargin
	widths := columnWidths(len(rows[0]), printable)

	for i, row := range rows {
		if w.doc.GetY()+tableLineH > pageH-noteMargin-2 {
			w.doc.AddPage()
		}
		if i == 0 {
			w.doc.SetFont(noteFont, "B", tableFontSize)
			w.doc.SetFillColor(235, 235, 235)
		} else {
			w.doc.SetFont(noteFont, "", tableFontSize)
		}
		for j, width := range widths {
			cell := ""
			if j < len(row) {
				cell = w.fit(w.tr(row[j]), width-2)
			}
			w.doc.CellFormat(width, tableLineH, cell, "1", 0, "L", i == 0, 0, "")
		}
		w.doc.Ln(tableLineH)
	}
	w.doc.Ln(2)
	w.applyFont()
}

// tableRows flattens the table into cell text, header first. The header
// node carries its cells directly; body rows sit beside it.
func (w *noteWalker) tableRows(n *extast.Table) [][]string {
	var rows [][]string
	for child := n.FirstChild(); child != nil; child = child.NextSibling() {
		switch child.Kind() {
		case extast.KindTableHeader, extast.KindTableRow:
			rows = append(rows, w.cells(child))
		}
	}
	return rows
}

func (w *noteWalker) cells(row ast.Node) []string {
	var out []string
	for cell := row.FirstChild(); cell != nil; cell = cell.NextSibling() {
		if cell.Kind() == extast.KindTableCell {
			out = append(out, string(cell.Text(w.source)))
		}
	}
	return out
}

// fit truncates cell text that would overflow its column.
func (w *noteWalker) fit(s string, width float64) string {
	if w.doc.GetStringWidth(s) <= width {
		return s
	}
	runes := []rune(s)
	for len(runes) > 1 && w.doc.GetStringWidth(string(runes)+"...") > width {
		runes = runes[:len(runes)-1]
	}
	return string(runes) + "..."
}

func columnWidths(cols int, printable float64) []float64 {
	widths := make([]float64, cols)
	if cols == 2 {
		widths[0] = printable * 0.42
		widths[1] = printable - widths[0]
		return widths
	}
	per := printable / float64(cols)
	for i := range widths {
		widths[i] = per
	}
	return widths
}
