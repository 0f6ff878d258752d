package invoice

import (
	"reflect"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/go-playground/validator/v10"
	"github.com/samber/lo"

	"github.com/voiceinvoice/voice-invoice/internal/errs"
)

// DefaultTaxRate applies when a payload does not mention tax_rate at all.
const DefaultTaxRate = 0.08

// MaxAmount bounds every quantity, price and total a record may carry.
const MaxAmount = 1e12

// DateLayout is the ISO date format used for invoice and due dates.
const DateLayout = "2006-01-02"

// LineItem is one billed line. Quantity, UnitPrice and Total are optional so
// that the reconciler can tell "not supplied" apart from zero. Amounts are
// capped at MaxAmount in magnitude.
type LineItem struct {
	Description string   `json:"description" validate:"required"`
	Quantity    *float64 `json:"quantity" validate:"omitnil,gt=0,lte=1000000000000"`
	UnitPrice   *float64 `json:"unit_price" validate:"omitnil,gt=0,lte=1000000000000"`
	Total       *float64 `json:"total" validate:"omitnil,gte=-1000000000000,lte=1000000000000"`
}

// Record is the structured invoice produced by the pipeline.
type Record struct {
	ClientName    *string    `json:"client_name"`
	ClientAddress *string    `json:"client_address"`
	InvoiceNumber *string    `json:"invoice_number"`
	InvoiceDate   *string    `json:"invoice_date"`
	DueDate       *string    `json:"due_date"`
	Items         []LineItem `json:"items" validate:"dive"`
	Subtotal      *float64   `json:"subtotal" validate:"omitnil,gte=-1000000000000,lte=1000000000000"`
	TaxRate       *float64   `json:"tax_rate" validate:"omitnil,gte=0,lte=1"`
	TaxAmount     *float64   `json:"tax_amount" validate:"omitnil,gte=-1000000000000,lte=1000000000000"`
	GrandTotal    *float64   `json:"grand_total" validate:"omitnil,gte=-1000000000000,lte=1000000000000"`
	Notes         *string    `json:"notes"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// NewLineItem builds a validated line item. The advisory total is filled in
// when both quantity and unit price are known.
func NewLineItem(description string, quantity, unitPrice *float64) (LineItem, error) {
	item := LineItem{
		Description: description,
		Quantity:    cloneFloat(quantity),
		UnitPrice:   cloneFloat(unitPrice),
	}
	if err := item.Validate(); err != nil {
		return LineItem{}, err
	}
	if item.Quantity != nil && item.UnitPrice != nil {
		item.Total = lo.ToPtr(lineTotal(*item.Quantity, *item.UnitPrice))
	}
	return item, nil
}

// Validate checks every field constraint of the item.
func (li LineItem) Validate() error {
	return structViolations(li)
}

// NewRecord validates r and returns a copy with advisory totals filled in.
// The reconciler recomputes every derived value; the ones set here only keep
// a freshly constructed record self-consistent.
func NewRecord(r Record) (Record, error) {
	if err := r.Validate(); err != nil {
		return Record{}, err
	}
	return r.withAdvisoryTotals(), nil
}

// Validate checks every field of the record and of each item, reporting all
// violations at once.
func (r Record) Validate() error {
	return structViolations(r)
}

func (r Record) withAdvisoryTotals() Record {
	out := r.Clone()
	for i := range out.Items {
		item := &out.Items[i]
		if item.Total == nil && item.Quantity != nil && item.UnitPrice != nil {
			item.Total = lo.ToPtr(lineTotal(*item.Quantity, *item.UnitPrice))
		}
	}
	applyTotals(&out)
	return out
}

// Clone returns a deep copy of r.
func (r Record) Clone() Record {
	out := Record{
		ClientName:    cloneString(r.ClientName),
		ClientAddress: cloneString(r.ClientAddress),
		InvoiceNumber: cloneString(r.InvoiceNumber),
		InvoiceDate:   cloneString(r.InvoiceDate),
		DueDate:       cloneString(r.DueDate),
		Subtotal:      cloneFloat(r.Subtotal),
		TaxRate:       cloneFloat(r.TaxRate),
		TaxAmount:     cloneFloat(r.TaxAmount),
		GrandTotal:    cloneFloat(r.GrandTotal),
		Notes:         cloneString(r.Notes),
	}
	if r.Items != nil {
		out.Items = make([]LineItem, len(r.Items))
		for i, item := range r.Items {
			out.Items[i] = LineItem{
				Description: item.Description,
				Quantity:    cloneFloat(item.Quantity),
				UnitPrice:   cloneFloat(item.UnitPrice),
				Total:       cloneFloat(item.Total),
			}
		}
	}
	return out
}

func structViolations(s any) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return errs.SchemaViolation([]errs.FieldViolation{{Field: "record", Message: err.Error()}})
	}
	violations := make([]errs.FieldViolation, 0, len(verrs))
	for _, fe := range verrs {
		violations = append(violations, errs.FieldViolation{
			Field:   fieldPath(fe.Namespace()),
			Message: constraintMessage(fe),
		})
	}
	return errs.SchemaViolation(violations)
}

// fieldPath drops the root type name: "Record.items[0].quantity" becomes
// "items[0].quantity".
func fieldPath(ns string) string {
	if i := strings.Index(ns, "."); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

func constraintMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "gt":
		return "must be greater than " + fe.Param()
	case "gte":
		return "must be at least " + fe.Param()
	case "lte":
		return "must be at most " + fe.Param()
	default:
		return "failed " + fe.Tag() + " constraint"
	}
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	return lo.ToPtr(*s)
}

func cloneFloat(f *float64) *float64 {
	if f == nil {
		return nil
	}
	return lo.ToPtr(*f)
}

// isBlank treats nil and whitespace-only strings as unset.
func isBlank(s *string) bool {
	return s == nil || strings.TrimSpace(*s) == ""
}
