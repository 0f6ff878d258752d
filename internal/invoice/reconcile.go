package invoice

import (
	"strings"
	"time"

	"github.com/samber/lo"
)

// DueDays is the payment term used when a record has no due date.
const DueDays = 30

// Clock provides the processing date.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

// Now returns time.Now.
func (SystemClock) Now() time.Time {
	return time.Now()
}

// Reconciler fills missing fields from the lookup tables and recomputes
// every derived value. It holds no mutable state and is safe for concurrent
// use.
type Reconciler struct {
	lookup Lookup
	clock  Clock
}

// NewReconciler creates a Reconciler. A nil clock means SystemClock.
func NewReconciler(lookup Lookup, clock Clock) *Reconciler {
	if clock == nil {
		clock = SystemClock{}
	}
	return &Reconciler{lookup: lookup, clock: clock}
}

// Reconcile returns a copy of r in which the client address, tax rate and
// unit prices are filled from the lookup tables where missing, and all
// totals and dates satisfy the record invariants. It never fails and never
// modifies r.
func (rc *Reconciler) Reconcile(r Record) Record {
	lookup := rc.lookup
	if s, ok := lookup.(Snapshotter); ok {
		lookup = s.Snapshot()
	}
	out := r.Clone()

	rc.fillClient(&out, lookup)

	for i := range out.Items {
		item := &out.Items[i]
		if item.UnitPrice == nil && strings.TrimSpace(item.Description) != "" && lookup != nil {
			if match, ok := lookup.MatchCatalog(item.Description); ok {
				item.UnitPrice = lo.ToPtr(match.UnitPrice)
			}
		}
		switch {
		case item.Quantity != nil && item.UnitPrice != nil:
			item.Total = lo.ToPtr(lineTotal(*item.Quantity, *item.UnitPrice))
		case item.Total == nil:
			item.Total = lo.ToPtr(0.0)
		}
	}

	applyTotals(&out)
	rc.fillDates(&out)
	return out
}

// fillClient copies the address of a known client when none was given. The
// tax rate is taken from the client only while it is unset or equal to
// DefaultTaxRate, so an explicit 0.08 is indistinguishable from "not given".
func (rc *Reconciler) fillClient(r *Record, lookup Lookup) {
	if isBlank(r.ClientName) || lookup == nil {
		return
	}
	client, ok := lookup.LookupClient(*r.ClientName)
	if !ok {
		return
	}
	if isBlank(r.ClientAddress) {
		r.ClientAddress = lo.ToPtr(client.Address)
	}
	if r.TaxRate == nil || *r.TaxRate == DefaultTaxRate {
		r.TaxRate = lo.ToPtr(client.DefaultTaxRate)
	}
}

func (rc *Reconciler) fillDates(r *Record) {
	now := rc.clock.Now()
	if isBlank(r.InvoiceDate) {
		r.InvoiceDate = lo.ToPtr(now.Format(DateLayout))
	}
	if isBlank(r.DueDate) {
		base, err := time.Parse(DateLayout, strings.TrimSpace(*r.InvoiceDate))
		if err != nil {
			base = now
		}
		r.DueDate = lo.ToPtr(base.AddDate(0, 0, DueDays).Format(DateLayout))
	}
}
