package ruuvi

import "fmt"

// DecodeError is implemented by every decoder failure value. Kind is stable
// and used as the metrics label for per-kind error counters.
type DecodeError interface {
	error
	Kind() string
}

// UnsupportedFormatError reports a payload whose format tag is not handled
type UnsupportedFormatError struct {
	Format byte
}

func (e *UnsupportedFormatError) Error() string {
	return fmt.Sprintf("unsupported data format 0x%02x", e.Format)
}

func (e *UnsupportedFormatError) Kind() string { return "unsupported_format" }

// TruncatedPayloadError reports a payload shorter than its format requires
type TruncatedPayloadError struct {
	Expected int
	Actual   int
}

func (e *TruncatedPayloadError) Error() string {
	return fmt.Sprintf("truncated payload: expected %d bytes, got %d", e.Expected, e.Actual)
}

func (e *TruncatedPayloadError) Kind() string { return "truncated_payload" }

// OutOfRangeError reports a field whose decoded value is a sentinel or falls
// outside the accepted measurement range
type OutOfRangeError struct {
	Field string
	Value float64
}

func (e *OutOfRangeError) Error() string {
	return fmt.Sprintf("field %s out of range: %g", e.Field, e.Value)
}

func (e *OutOfRangeError) Kind() string { return "out_of_range" }

// EnvelopeError reports a gateway envelope that could not be parsed or that
// contradicts the payload
type EnvelopeError struct {
	Reason string
}

func (e *EnvelopeError) Error() string {
	return fmt.Sprintf("envelope parse failure: %s", e.Reason)
}

func (e *EnvelopeError) Kind() string { return "envelope_parse_failure" }
