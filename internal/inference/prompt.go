package inference

import (
	"fmt"
	"strings"
)

const systemPrompt = `You extract structured invoice data from spoken requests. Your output MUST be a single valid JSON object matching the provided schema. Do not include any other text or explanation outside the JSON. Extract every available detail and leave out what was not said.`

const recordSchema = `{
  "client_name": "string (e.g., John Doe, ACME Corp)",
  "client_address": "string (e.g., 123 Main St, Anytown, CA)",
  "invoice_number": "string (optional, e.g., INV-2025-001)",
  "invoice_date": "YYYY-MM-DD (optional)",
  "due_date": "YYYY-MM-DD (optional)",
  "items": [
    {
      "description": "string (e.g., Laptop, Consulting Services)",
      "quantity": "number (e.g., 1, 2.5)",
      "unit_price": "number (optional, e.g., 1200.00, 75.50)"
    }
  ],
  "tax_rate": "number between 0 and 1 (optional, e.g., 0.08)",
  "notes": "string (optional, any additional notes)"
}`

// Prompt builds the user message for an invoicing request. The transcript is
// appended when the caller supplied one.
func Prompt(transcript string) string {
	var b strings.Builder
	b.WriteString("Here is an invoice request. Extract the details into a JSON object.\n")
	b.WriteString("If no invoice or due date is mentioned, omit them. ")
	b.WriteString("If a field is not mentioned, omit it or set it to null. ")
	b.WriteString("Quantities and prices must be numbers, not strings.\n\n")
	fmt.Fprintf(&b, "Schema:\n%s\n", recordSchema)
	if t := strings.TrimSpace(transcript); t != "" {
		fmt.Fprintf(&b, "\nInvoice request: %s\n", t)
	}
	return b.String()
}
