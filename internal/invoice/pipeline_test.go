package invoice

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/voiceinvoice/voice-invoice/internal/errs"
)

var _ = Describe("Pipeline", func() {
	var (
		pipeline *Pipeline
		input    Input
		out      Record
		err      error
	)

	BeforeEach(func() {
		clock := fixedClock{t: time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC)}
		pipeline = NewPipeline(NewReconciler(DefaultTables(), clock), nil)
	})

	JustBeforeEach(func() {
		out, err = pipeline.Process(input)
	})

	When("the model answers for a known client", func() {
		BeforeEach(func() {
			input = TextInput("Here you go:\n```json\n" +
				`{"client_name":"John Doe","items":[{"description":"Laptop","quantity":1,"unit_price":1200.0}],"tax_rate":0.08}` +
				"\n```")
		})

		It("produces a complete invoice using the client's rate", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(out.ClientAddress).To(HaveValue(Equal("123 Elm St, Springfield, IL")))
			Expect(out.Items[0].Total).To(HaveValue(Equal(1200.0)))
			Expect(out.Subtotal).To(HaveValue(Equal(1200.0)))
			Expect(out.TaxRate).To(HaveValue(Equal(0.07)))
			Expect(out.TaxAmount).To(HaveValue(Equal(84.0)))
			Expect(out.GrandTotal).To(HaveValue(Equal(1284.0)))
			Expect(out.InvoiceDate).To(HaveValue(Equal("2026-10-15")))
			Expect(out.DueDate).To(HaveValue(Equal("2026-11-14")))
		})
	})

	When("the model answers for an unknown client", func() {
		BeforeEach(func() {
			input = TextInput(`{"client_name":"Jane Roe","items":[{"description":"Laptop","quantity":1,"unit_price":1200.0}],"tax_rate":0.08}`)
		})

		It("keeps the default rate", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(out.ClientAddress).To(BeNil())
			Expect(out.TaxAmount).To(HaveValue(Equal(96.0)))
			Expect(out.GrandTotal).To(HaveValue(Equal(1296.0)))
		})
	})

	When("the model output holds no JSON", func() {
		BeforeEach(func() {
			input = TextInput("Sorry, the audio was silent.")
		})

		It("returns the extraction error", func() {
			Expect(errs.Is(err, errs.ErrNoJSONFound)).To(BeTrue())
			Expect(out).To(Equal(Record{}))
		})
	})

	When("the model output carries oversized amounts", func() {
		BeforeEach(func() {
			input = TextInput(`{"items":[{"description":"a","total":1e308},{"description":"b","quantity":1e200,"unit_price":2}]}`)
		})

		It("rejects them as a schema violation", func() {
			Expect(errs.Is(err, errs.ErrSchemaViolation)).To(BeTrue())
			Expect(errs.Violations(err)).To(ConsistOf(
				HaveField("Field", "items[0].total"),
				HaveField("Field", "items[1].quantity"),
			))
		})
	})

	When("a structured record is supplied", func() {
		BeforeEach(func() {
			input = RecordInput(Record{
				ClientName: ptr("ACME Corporation"),
				Items:      []LineItem{{Description: "consulting services", Quantity: ptr(4.0)}},
			})
		})

		It("skips extraction and reconciles", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(out.TaxRate).To(HaveValue(Equal(0.09)))
			Expect(out.Items[0].UnitPrice).To(HaveValue(Equal(150.0)))
			Expect(out.Subtotal).To(HaveValue(Equal(600.0)))
			Expect(out.TaxAmount).To(HaveValue(Equal(54.0)))
			Expect(out.GrandTotal).To(HaveValue(Equal(654.0)))
		})
	})

	When("a structured record is invalid", func() {
		BeforeEach(func() {
			input = RecordInput(Record{Items: []LineItem{{Description: "x", UnitPrice: ptr(-2.0)}}})
		})

		It("returns a schema violation", func() {
			Expect(errs.Is(err, errs.ErrSchemaViolation)).To(BeTrue())
			Expect(errs.Violations(err)).To(ConsistOf(HaveField("Field", "items[0].unit_price")))
		})
	})
})
