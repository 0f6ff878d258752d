// Package render lays out reconciled invoices as PDF documents and names the
// resulting objects.
package render

import (
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/samber/lo"

	"github.com/voiceinvoice/voice-invoice/internal/invoice"
)

// Renderer turns a reconciled record into document bytes.
type Renderer interface {
	Render(r invoice.Record) ([]byte, error)
}

// AssignNumber returns a copy of r with an invoice number. Existing numbers
// are kept; otherwise the number is INV-<invoice date digits>-<HHMMSS>, using
// today's date when the invoice date carries no digits.
func AssignNumber(r invoice.Record, now time.Time) invoice.Record {
	out := r.Clone()
	if strings.TrimSpace(lo.FromPtr(out.InvoiceNumber)) != "" {
		return out
	}
	date := keepRunes(lo.FromPtr(out.InvoiceDate), unicode.IsDigit)
	if date == "" {
		date = now.Format("20060102")
	}
	out.InvoiceNumber = lo.ToPtr(fmt.Sprintf("INV-%s-%s", date, now.Format("150405")))
	return out
}

// ObjectName builds the blob name for a rendered invoice:
// invoice_<client>_<number>_<yyyymmddHHMMSS>.pdf. The result never contains
// path separators.
func ObjectName(r invoice.Record, now time.Time) string {
	client := strings.ReplaceAll(keepRunes(strings.TrimSpace(lo.FromPtr(r.ClientName)), func(c rune) bool {
		return isAlnum(c) || c == ' ' || c == '_'
	}), " ", "_")
	if client == "" {
		client = "unknown_client"
	}
	number := keepRunes(lo.FromPtr(r.InvoiceNumber), func(c rune) bool {
		return isAlnum(c) || c == '-' || c == '_'
	})
	if number == "" {
		number = "draft"
	}
	return fmt.Sprintf("invoice_%s_%s_%s.pdf", client, number, now.Format("20060102150405"))
}

func isAlnum(c rune) bool {
	return c < unicode.MaxASCII && (unicode.IsLetter(c) || unicode.IsDigit(c))
}

func keepRunes(s string, keep func(rune) bool) string {
	var b strings.Builder
	for _, c := range s {
		if keep(c) {
			b.WriteRune(c)
		}
	}
	return b.String()
}
