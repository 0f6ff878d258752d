package invoice

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/voiceinvoice/voice-invoice/internal/errs"
)

var _ = Describe("NewLineItem", func() {
	var (
		description string
		quantity    *float64
		unitPrice   *float64
		item        LineItem
		err         error
	)

	BeforeEach(func() {
		description = "Laptop"
		quantity = ptr(2.0)
		unitPrice = ptr(19.99)
	})

	JustBeforeEach(func() {
		item, err = NewLineItem(description, quantity, unitPrice)
	})

	When("all fields are valid", func() {
		It("computes the advisory total", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(item.Total).To(HaveValue(Equal(39.98)))
		})

		It("does not share the caller's pointers", func() {
			*quantity = 5
			Expect(*item.Quantity).To(Equal(2.0))
		})
	})

	When("quantity is negative", func() {
		BeforeEach(func() {
			quantity = ptr(-1.0)
		})

		It("fails with a schema violation naming quantity", func() {
			Expect(errs.Is(err, errs.ErrSchemaViolation)).To(BeTrue())
			Expect(errs.Violations(err)).To(ConsistOf(
				HaveField("Field", "quantity"),
			))
		})
	})

	When("unit price is zero", func() {
		BeforeEach(func() {
			unitPrice = ptr(0.0)
		})

		It("rejects it", func() {
			Expect(errs.Violations(err)).To(ConsistOf(HaveField("Field", "unit_price")))
		})
	})

	When("unit price is above the amount cap", func() {
		BeforeEach(func() {
			unitPrice = ptr(MaxAmount * 10)
		})

		It("rejects it", func() {
			Expect(errs.Violations(err)).To(ConsistOf(HaveField("Field", "unit_price")))
		})
	})

	When("several fields are invalid", func() {
		BeforeEach(func() {
			description = ""
			quantity = ptr(0.0)
			unitPrice = ptr(-3.0)
		})

		It("lists every violated field", func() {
			Expect(errs.Violations(err)).To(ConsistOf(
				HaveField("Field", "description"),
				HaveField("Field", "quantity"),
				HaveField("Field", "unit_price"),
			))
		})
	})

	When("unit price is omitted", func() {
		BeforeEach(func() {
			unitPrice = nil
		})

		It("accepts the partial item without a total", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(item.UnitPrice).To(BeNil())
			Expect(item.Total).To(BeNil())
		})
	})
})

var _ = Describe("NewRecord", func() {
	var (
		input Record
		rec   Record
		err   error
	)

	JustBeforeEach(func() {
		rec, err = NewRecord(input)
	})

	When("the record is valid", func() {
		BeforeEach(func() {
			input = Record{
				ClientName: ptr("Jane Roe"),
				TaxRate:    ptr(0.1),
				Items: []LineItem{
					{Description: "Widget", Quantity: ptr(3.0), UnitPrice: ptr(10.0)},
				},
			}
		})

		It("fills advisory totals", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(rec.Items[0].Total).To(HaveValue(Equal(30.0)))
			Expect(rec.Subtotal).To(HaveValue(Equal(30.0)))
			Expect(rec.TaxAmount).To(HaveValue(Equal(3.0)))
			Expect(rec.GrandTotal).To(HaveValue(Equal(33.0)))
		})

		It("leaves the input untouched", func() {
			Expect(input.Subtotal).To(BeNil())
			Expect(input.Items[0].Total).To(BeNil())
		})
	})

	When("the tax rate is out of range and an item is invalid", func() {
		BeforeEach(func() {
			input = Record{
				TaxRate: ptr(1.5),
				Items: []LineItem{
					{Description: "ok", Quantity: ptr(1.0)},
					{Description: "bad", Quantity: ptr(-1.0)},
				},
			}
		})

		It("reports both with item paths", func() {
			Expect(errs.Is(err, errs.ErrSchemaViolation)).To(BeTrue())
			Expect(errs.Violations(err)).To(ConsistOf(
				HaveField("Field", "tax_rate"),
				HaveField("Field", "items[1].quantity"),
			))
		})
	})

	When("everything optional is missing", func() {
		BeforeEach(func() {
			input = Record{}
		})

		It("is accepted with zero totals", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(rec.Subtotal).To(HaveValue(Equal(0.0)))
			Expect(rec.GrandTotal).To(HaveValue(Equal(0.0)))
		})
	})
})

var _ = Describe("Record.Clone", func() {
	It("copies every pointer and item", func() {
		orig := Record{
			ClientName: ptr("A"),
			TaxRate:    ptr(0.2),
			Items:      []LineItem{{Description: "x", Quantity: ptr(1.0)}},
		}
		c := orig.Clone()
		Expect(c).To(Equal(orig))

		*c.ClientName = "B"
		*c.Items[0].Quantity = 9
		c.Items[0].Description = "y"

		Expect(*orig.ClientName).To(Equal("A"))
		Expect(*orig.Items[0].Quantity).To(Equal(1.0))
		Expect(orig.Items[0].Description).To(Equal("x"))
	})
})
