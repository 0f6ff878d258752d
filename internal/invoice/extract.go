package invoice

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/samber/lo"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/voiceinvoice/voice-invoice/internal/errs"
)

// fencedJSON matches a code fence explicitly tagged as JSON. The closing
// fence is optional so truncated model output still yields a candidate.
var fencedJSON = regexp.MustCompile("(?is)```json[ \\t]*\\r?\\n?(.*?)(?:```|\\z)")

// recordSchema checks JSON types only. Value constraints (positive
// quantities, tax rate range) belong to the record validator so that every
// violation is reported the same way.
const recordSchema = `{
  "type": "object",
  "properties": {
    "client_name":    {"type": ["string", "null"]},
    "client_address": {"type": ["string", "null"]},
    "invoice_number": {"type": ["string", "null"]},
    "invoice_date":   {"type": ["string", "null"]},
    "due_date":       {"type": ["string", "null"]},
    "notes":          {"type": ["string", "null"]},
    "subtotal":       {"type": ["number", "null"]},
    "tax_rate":       {"type": ["number", "null"]},
    "tax_amount":     {"type": ["number", "null"]},
    "grand_total":    {"type": ["number", "null"]},
    "items": {
      "type": ["array", "null"],
      "items": {
        "type": "object",
        "properties": {
          "description": {"type": ["string", "null"]},
          "quantity":    {"type": ["number", "null"]},
          "unit_price":  {"type": ["number", "null"]},
          "total":       {"type": ["number", "null"]}
        }
      }
    }
  }
}`

var compiledRecordSchema = jsonschema.MustCompileString("record.json", recordSchema)

// LocateJSON finds the JSON object embedded in raw model output. A fenced
// ```json block wins over a bare object; otherwise the outermost balanced
// {...} span starting at the first brace is returned.
func LocateJSON(raw string) (string, error) {
	for _, m := range fencedJSON.FindAllStringSubmatch(raw, -1) {
		if span, ok, _ := balancedObject(m[1]); ok {
			return span, nil
		}
	}

	span, ok, found := balancedObject(raw)
	switch {
	case ok:
		return span, nil
	case found:
		return "", errs.MalformedJSON(span, errors.New("unbalanced braces"))
	default:
		return "", errs.NoJSONFound(raw)
	}
}

// balancedObject scans s from its first '{' and returns the span up to the
// matching '}'. Braces inside string literals are ignored. When the object
// never closes, found is true and span holds the unterminated remainder.
func balancedObject(s string) (span string, ok, found bool) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false, false
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1], true, true
			}
		}
	}
	return s[start:], false, true
}

// Extract locates, decodes and validates the invoice embedded in raw model
// output. No semantic interpretation happens here; dates stay lexical.
func Extract(raw string) (Record, error) {
	span, err := LocateJSON(raw)
	if err != nil {
		return Record{}, err
	}
	return DecodeRecord([]byte(span))
}

// DecodeRecord maps a JSON object onto a Record by exact key name. Unknown
// keys are ignored and missing optional keys stay unset, except tax_rate
// which defaults to DefaultTaxRate when the key is absent (an explicit null
// leaves it unset).
func DecodeRecord(data []byte) (Record, error) {
	var doc any
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&doc); err != nil {
		return Record{}, errs.MalformedJSON(string(data), err)
	}
	if dec.More() {
		return Record{}, errs.MalformedJSON(string(data), errors.New("trailing data after JSON value"))
	}

	obj, isObject := doc.(map[string]any)
	if !isObject {
		return Record{}, errs.SchemaViolation([]errs.FieldViolation{{Field: "record", Message: "must be a JSON object"}})
	}
	if err := compiledRecordSchema.Validate(doc); err != nil {
		return Record{}, schemaTypeViolations(err)
	}

	var r Record
	if err := json.Unmarshal(data, &r); err != nil {
		return Record{}, errs.MalformedJSON(string(data), err)
	}
	if _, present := obj["tax_rate"]; !present {
		r.TaxRate = lo.ToPtr(DefaultTaxRate)
	}
	if r.Items == nil {
		r.Items = []LineItem{}
	}

	return NewRecord(r)
}

func schemaTypeViolations(err error) error {
	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return errs.SchemaViolation([]errs.FieldViolation{{Field: "record", Message: err.Error()}})
	}

	var violations []errs.FieldViolation
	var walk func(*jsonschema.ValidationError)
	walk = func(e *jsonschema.ValidationError) {
		if len(e.Causes) == 0 {
			violations = append(violations, errs.FieldViolation{
				Field:   pointerToPath(e.InstanceLocation),
				Message: e.Message,
			})
			return
		}
		for _, c := range e.Causes {
			walk(c)
		}
	}
	walk(ve)
	return errs.SchemaViolation(violations)
}

// pointerToPath turns "/items/0/quantity" into "items[0].quantity".
func pointerToPath(ptr string) string {
	ptr = strings.TrimPrefix(ptr, "/")
	if ptr == "" {
		return "record"
	}
	var b strings.Builder
	for i, seg := range strings.Split(ptr, "/") {
		seg = strings.ReplaceAll(strings.ReplaceAll(seg, "~1", "/"), "~0", "~")
		if isIndex(seg) {
			fmt.Fprintf(&b, "[%s]", seg)
			continue
		}
		if i > 0 {
			b.WriteByte('.')
		}
		b.WriteString(seg)
	}
	return b.String()
}

func isIndex(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
