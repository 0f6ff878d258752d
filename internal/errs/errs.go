// Package errs defines the failure kinds shared by the invoice pipeline and
// its collaborators, and how each kind is surfaced to HTTP callers.
package errs

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/cockroachdb/errors"
)

// Kind is a machine-readable failure category.
type Kind string

const (
	KindSchemaViolation      Kind = "schema_violation"
	KindNoJSONFound          Kind = "no_json_found"
	KindMalformedJSON        Kind = "malformed_json"
	KindInferenceUnavailable Kind = "inference_unavailable"
	KindInferenceFailed      Kind = "inference_failed"
	KindNotFound             Kind = "not_found"
	KindBadInput             Kind = "bad_input"
	KindInternal             Kind = "internal"
)

// Reference errors. Concrete failures are marked with one of these so that
// errors.Is keeps working through any amount of wrapping.
var (
	ErrSchemaViolation      = errors.New("schema violation")
	ErrNoJSONFound          = errors.New("no json found")
	ErrMalformedJSON        = errors.New("malformed json")
	ErrInferenceUnavailable = errors.New("inference unavailable")
	ErrInferenceFailed      = errors.New("inference failed")
	ErrNotFound             = errors.New("not found")
	ErrBadInput             = errors.New("bad input")
)

var kinds = []struct {
	ref    error
	kind   Kind
	status int
}{
	{ErrSchemaViolation, KindSchemaViolation, http.StatusBadRequest},
	{ErrNoJSONFound, KindNoJSONFound, http.StatusBadRequest},
	{ErrMalformedJSON, KindMalformedJSON, http.StatusBadRequest},
	{ErrBadInput, KindBadInput, http.StatusBadRequest},
	{ErrNotFound, KindNotFound, http.StatusNotFound},
	{ErrInferenceUnavailable, KindInferenceUnavailable, http.StatusServiceUnavailable},
	{ErrInferenceFailed, KindInferenceFailed, http.StatusBadGateway},
}

// FieldViolation names one field that failed its declared constraint.
type FieldViolation struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (v FieldViolation) String() string {
	return fmt.Sprintf("%s %s", v.Field, v.Message)
}

// ViolationError lists every offending field of a rejected record.
type ViolationError struct {
	Violations []FieldViolation
}

func (e *ViolationError) Error() string {
	parts := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		parts = append(parts, v.String())
	}
	return "invalid fields: " + strings.Join(parts, "; ")
}

// SchemaViolation builds a SchemaViolation failure.
func SchemaViolation(violations []FieldViolation) error {
	return errors.Mark(&ViolationError{Violations: violations}, ErrSchemaViolation)
}

// NoJSONFound reports that raw contained no JSON object. The raw text is
// attached as a detail for diagnosis.
func NoJSONFound(raw string) error {
	err := errors.New("no JSON object found in model output")
	return errors.WithDetail(errors.Mark(err, ErrNoJSONFound), raw)
}

// MalformedJSON reports that the candidate span could not be decoded.
func MalformedJSON(span string, cause error) error {
	err := errors.Wrap(cause, "decoding JSON object")
	return errors.WithDetail(errors.Mark(err, ErrMalformedJSON), span)
}

// BadInput reports a caller mistake outside of record validation.
func BadInput(format string, args ...any) error {
	return errors.Mark(errors.Newf(format, args...), ErrBadInput)
}

// NotFound reports a missing blob or resource.
func NotFound(format string, args ...any) error {
	return errors.Mark(errors.Newf(format, args...), ErrNotFound)
}

// InferenceUnavailable wraps err (which may be nil) as InferenceUnavailable.
func InferenceUnavailable(err error, msg string) error {
	if err == nil {
		return errors.Mark(errors.New(msg), ErrInferenceUnavailable)
	}
	return errors.Mark(errors.Wrap(err, msg), ErrInferenceUnavailable)
}

// InferenceFailed wraps err as InferenceFailed unless it already carries an
// inference kind.
func InferenceFailed(err error, msg string) error {
	if errors.Is(err, ErrInferenceFailed) || errors.Is(err, ErrInferenceUnavailable) {
		return err
	}
	if err == nil {
		return errors.Mark(errors.New(msg), ErrInferenceFailed)
	}
	return errors.Mark(errors.Wrap(err, msg), ErrInferenceFailed)
}

// Is reports whether err matches reference.
func Is(err, reference error) bool {
	return errors.Is(err, reference)
}

// Violations returns the field violations carried by err, if any.
func Violations(err error) []FieldViolation {
	var ve *ViolationError
	if errors.As(err, &ve) {
		return ve.Violations
	}
	return nil
}

// Raw returns the raw text or span attached to err for diagnosis.
func Raw(err error) string {
	return strings.Join(errors.GetAllDetails(err), "\n")
}

// KindOf classifies err.
func KindOf(err error) Kind {
	for _, k := range kinds {
		if errors.Is(err, k.ref) {
			return k.kind
		}
	}
	return KindInternal
}

// HTTPStatus maps err to the status code callers should see.
func HTTPStatus(err error) int {
	for _, k := range kinds {
		if errors.Is(err, k.ref) {
			return k.status
		}
	}
	return http.StatusInternalServerError
}
