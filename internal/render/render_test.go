package render

import (
	"bytes"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/voiceinvoice/voice-invoice/internal/invoice"
)

var _ = Describe("AssignNumber", func() {
	now := time.Date(2026, 10, 15, 14, 3, 9, 0, time.UTC)

	It("derives the number from the invoice date and time of day", func() {
		out := AssignNumber(invoice.Record{InvoiceDate: ptr("2026-10-01")}, now)
		Expect(out.InvoiceNumber).To(HaveValue(Equal("INV-20261001-140309")))
	})

	It("uses today when the invoice date has no digits", func() {
		out := AssignNumber(invoice.Record{InvoiceDate: ptr("next tuesday")}, now)
		Expect(out.InvoiceNumber).To(HaveValue(Equal("INV-20261015-140309")))
	})

	It("keeps an existing number without touching the input", func() {
		in := invoice.Record{InvoiceNumber: ptr("INV-7")}
		out := AssignNumber(in, now)
		Expect(out.InvoiceNumber).To(HaveValue(Equal("INV-7")))

		*out.InvoiceNumber = "changed"
		Expect(*in.InvoiceNumber).To(Equal("INV-7"))
	})
})

var _ = Describe("ObjectName", func() {
	now := time.Date(2026, 10, 15, 14, 3, 9, 0, time.UTC)

	It("joins client, number and timestamp", func() {
		name := ObjectName(invoice.Record{
			ClientName:    ptr("ACME Corp."),
			InvoiceNumber: ptr("INV-20261015-140309"),
		}, now)
		Expect(name).To(Equal("invoice_ACME_Corp_INV-20261015-140309_20261015140309.pdf"))
	})

	It("falls back for missing values", func() {
		Expect(ObjectName(invoice.Record{}, now)).To(Equal("invoice_unknown_client_draft_20261015140309.pdf"))
	})

	It("never yields path separators", func() {
		name := ObjectName(invoice.Record{
			ClientName:    ptr("../../etc"),
			InvoiceNumber: ptr("a/b\\c"),
		}, now)
		Expect(name).NotTo(ContainSubstring("/"))
		Expect(name).NotTo(ContainSubstring("\\"))
		Expect(name).NotTo(ContainSubstring(".."))
	})
})

var _ = Describe("PDF", func() {
	var (
		record invoice.Record
		data   []byte
		err    error
	)

	BeforeEach(func() {
		record = invoice.Record{
			ClientName:    ptr("John Doe"),
			ClientAddress: ptr("123 Elm St, Springfield, IL"),
			InvoiceNumber: ptr("INV-20261015-140309"),
			InvoiceDate:   ptr("2026-10-15"),
			DueDate:       ptr("2026-11-14"),
			Items: []invoice.LineItem{
				{Description: "Laptop", Quantity: ptr(1.0), UnitPrice: ptr(1200.0), Total: ptr(1200.0)},
			},
			Subtotal:   ptr(1200.0),
			TaxRate:    ptr(0.07),
			TaxAmount:  ptr(84.0),
			GrandTotal: ptr(1284.0),
			Notes:      ptr("Net 30, café au lait included"),
		}
	})

	JustBeforeEach(func() {
		data, err = NewPDF().Render(record)
	})

	It("produces a PDF document", func() {
		Expect(err).NotTo(HaveOccurred())
		Expect(bytes.HasPrefix(data, []byte("%PDF-"))).To(BeTrue())
	})

	When("the record is sparse", func() {
		BeforeEach(func() {
			record = invoice.Record{Items: []invoice.LineItem{{Description: "mystery"}}}
		})

		It("still renders", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(bytes.HasPrefix(data, []byte("%PDF-"))).To(BeTrue())
		})
	})

	When("there are many long items", func() {
		BeforeEach(func() {
			record.Items = nil
			for range 60 {
				record.Items = append(record.Items, invoice.LineItem{
					Description: strings.Repeat("consulting services for the quarterly migration ", 3),
					Quantity:    ptr(2.0),
					UnitPrice:   ptr(150.0),
					Total:       ptr(300.0),
				})
			}
		})

		It("breaks across pages", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(bytes.Count(data, []byte("/Type /Page\n"))).To(BeNumerically(">", 1))
		})
	})
})

var _ = Describe("percent", func() {
	DescribeTable("formats rates",
		func(rate float64, want string) {
			Expect(percent(rate)).To(Equal(want))
		},
		Entry("whole", 0.07, "7"),
		Entry("fractional", 0.075, "7.5"),
		Entry("zero", 0.0, "0"),
	)
})
