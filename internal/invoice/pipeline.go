// Package invoice turns model output or caller payloads into validated,
// internally consistent invoice records.
//
// The flow is Extract (locate and decode the JSON embedded in model text),
// then Reconcile (fill gaps from the lookup tables and recompute every
// derived value). Pipeline sequences both and is the only entry point the
// HTTP layer uses. Nothing in this package performs I/O.
package invoice

import (
	"log/slog"

	"github.com/samber/lo"

	"github.com/voiceinvoice/voice-invoice/internal/errs"
)

// Input is either raw model text or an already structured record.
type Input struct {
	text   string
	record *Record
}

// TextInput wraps raw model output.
func TextInput(raw string) Input {
	return Input{text: raw}
}

// RecordInput wraps a structured record; extraction is skipped for it.
func RecordInput(r Record) Input {
	rc := r.Clone()
	return Input{record: &rc}
}

// Pipeline runs extraction and reconciliation.
type Pipeline struct {
	reconciler *Reconciler
	logger     *slog.Logger
}

// NewPipeline creates a Pipeline.
func NewPipeline(reconciler *Reconciler, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{reconciler: reconciler, logger: logger}
}

// Process dispatches on the input form. It is the entry point the service
// layer uses.
func (p *Pipeline) Process(in Input) (Record, error) {
	if in.record != nil {
		return p.ProcessRecord(*in.record)
	}
	return p.ProcessText(in.text)
}

// ProcessText extracts a record from raw model output and reconciles it.
// Extraction failures are returned unchanged.
func (p *Pipeline) ProcessText(raw string) (Record, error) {
	rec, err := Extract(raw)
	if err != nil {
		p.logger.Warn("Extraction failed",
			"kind", errs.KindOf(err),
			"raw_length", len(raw),
			"error", err,
		)
		return Record{}, err
	}
	p.logger.Debug("Extracted invoice", "items", len(rec.Items), "client", lo.FromPtr(rec.ClientName))
	return p.reconcile(rec), nil
}

// ProcessRecord validates a caller-supplied record and reconciles it.
func (p *Pipeline) ProcessRecord(r Record) (Record, error) {
	rec, err := NewRecord(r)
	if err != nil {
		p.logger.Warn("Record rejected", "error", err)
		return Record{}, err
	}
	return p.reconcile(rec), nil
}

func (p *Pipeline) reconcile(r Record) Record {
	out := p.reconciler.Reconcile(r)
	p.logger.Debug("Reconciled invoice",
		"client", lo.FromPtr(out.ClientName),
		"items", len(out.Items),
		"subtotal", *out.Subtotal,
		"tax_amount", *out.TaxAmount,
		"grand_total", *out.GrandTotal,
		"invoice_date", *out.InvoiceDate,
		"due_date", *out.DueDate,
	)
	return out
}
