package render

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/jung-kurt/gofpdf"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/voiceinvoice/voice-invoice/internal/invoice"
)

const (
	lineHeight = 6.0
	margin     = 25.0
)

var (
	columnWidths  = []float64{80, 20, 30, 30}
	columnHeaders = []string{"Description", "Quantity", "Unit Price", "Total"}
)

// PDF renders invoices on A4 with the core Helvetica font.
type PDF struct {
	footer string
}

// NewPDF creates a PDF renderer.
func NewPDF() *PDF {
	return &PDF{footer: "Thank you for your business!"}
}

// Render lays out the header, bill-to block, item table, totals, notes and
// footer of r.
func (p *PDF) Render(r invoice.Record) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(margin, margin, margin)
	pdf.SetAutoPageBreak(true, margin)
	pdf.SetTitle("Invoice "+orNA(r.InvoiceNumber), true)
	pdf.AddPage()

	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pdf.SetFont("Helvetica", "B", 22)
	pdf.CellFormat(0, 12, "INVOICE", "", 1, "L", false, 0, "")
	pdf.Ln(3)

	field := func(label, value string) {
		pdf.SetFont("Helvetica", "B", 11)
		pdf.CellFormat(28, lineHeight, label, "", 0, "L", false, 0, "")
		pdf.SetFont("Helvetica", "", 11)
		pdf.CellFormat(0, lineHeight, tr(value), "", 1, "L", false, 0, "")
	}
	field("Invoice #:", orNA(r.InvoiceNumber))
	field("Date:", orNA(r.InvoiceDate))
	field("Due Date:", orNA(r.DueDate))
	pdf.Ln(8)

	pdf.SetFont("Helvetica", "B", 13)
	pdf.CellFormat(0, 8, "Bill To:", "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 11)
	if name := strings.TrimSpace(lo.FromPtr(r.ClientName)); name != "" {
		pdf.MultiCell(0, lineHeight, tr(name), "", "L", false)
	}
	if addr := strings.TrimSpace(lo.FromPtr(r.ClientAddress)); addr != "" {
		pdf.MultiCell(0, lineHeight, tr(addr), "", "L", false)
	}
	pdf.Ln(8)

	if len(r.Items) > 0 {
		p.itemTable(pdf, tr, r.Items)
		pdf.Ln(4)
	}

	p.totals(pdf, r)
	pdf.Ln(6)

	if notes := strings.TrimSpace(lo.FromPtr(r.Notes)); notes != "" {
		pdf.SetFont("Helvetica", "B", 13)
		pdf.CellFormat(0, 8, "Notes:", "", 1, "L", false, 0, "")
		pdf.SetFont("Helvetica", "", 11)
		pdf.MultiCell(0, lineHeight, tr(notes), "", "L", false)
		pdf.Ln(4)
	}

	pdf.Ln(10)
	pdf.SetFont("Helvetica", "I", 11)
	pdf.CellFormat(0, lineHeight, p.footer, "", 1, "L", false, 0, "")

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("writing pdf: %w", err)
	}
	return buf.Bytes(), nil
}

func (p *PDF) itemTable(pdf *gofpdf.Fpdf, tr func(string) string, items []invoice.LineItem) {
	header := func() {
		pdf.SetFont("Helvetica", "B", 11)
		pdf.SetFillColor(173, 216, 230)
		pdf.SetDrawColor(192, 192, 192)
		for i, h := range columnHeaders {
			align := "R"
			if i == 0 {
				align = "L"
			}
			pdf.CellFormat(columnWidths[i], 8, h, "1", 0, align, true, 0, "")
		}
		pdf.Ln(-1)
		pdf.SetFont("Helvetica", "", 10)
		pdf.SetFillColor(240, 248, 255)
	}
	header()

	_, pageHeight := pdf.GetPageSize()
	for _, item := range items {
		desc := tr(item.Description)
		lines := pdf.SplitLines([]byte(desc), columnWidths[0]-2)
		height := lineHeight * float64(max(1, len(lines)))

		x, y := pdf.GetXY()
		if y+height > pageHeight-margin {
			pdf.AddPage()
			header()
			x, y = pdf.GetXY()
		}

		pdf.MultiCell(columnWidths[0], lineHeight, desc, "1", "L", true)
		pdf.SetXY(x+columnWidths[0], y)
		pdf.CellFormat(columnWidths[1], height, number(item.Quantity, ""), "1", 0, "R", true, 0, "")
		pdf.CellFormat(columnWidths[2], height, number(item.UnitPrice, "$"), "1", 0, "R", true, 0, "")
		pdf.CellFormat(columnWidths[3], height, money(lo.FromPtr(item.Total)), "1", 0, "R", true, 0, "")
		pdf.SetXY(x, y+height)
	}
}

func (p *PDF) totals(pdf *gofpdf.Fpdf, r invoice.Record) {
	labelWidth := columnWidths[0] + columnWidths[1] + columnWidths[2]
	valueWidth := columnWidths[3]

	row := func(label string, amount *float64, bold bool) {
		style := ""
		if bold {
			style = "B"
		}
		pdf.SetFont("Helvetica", style, 11)
		pdf.CellFormat(labelWidth, 7, label, "", 0, "R", false, 0, "")
		pdf.CellFormat(valueWidth, 7, money(lo.FromPtr(amount)), "", 1, "R", false, 0, "")
	}

	row("Subtotal:", r.Subtotal, false)
	row(fmt.Sprintf("Tax (%s%%):", percent(lo.FromPtr(r.TaxRate))), r.TaxAmount, false)
	row("Grand Total:", r.GrandTotal, true)
}

func orNA(s *string) string {
	if v := strings.TrimSpace(lo.FromPtr(s)); v != "" {
		return v
	}
	return "N/A"
}

func number(v *float64, prefix string) string {
	if v == nil {
		return "-"
	}
	return prefix + decimal.NewFromFloat(*v).StringFixed(2)
}

func money(v float64) string {
	return "$" + decimal.NewFromFloat(v).StringFixed(2)
}

// percent formats a fraction as a percentage without trailing zeros: 0.07
// becomes "7", 0.075 becomes "7.5".
func percent(rate float64) string {
	return decimal.NewFromFloat(rate).Mul(decimal.NewFromInt(100)).Round(2).String()
}
