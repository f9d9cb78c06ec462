package store

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"

	"github.com/lib/pq"
)

// Kind classifies a store failure; the writer's retry policy keys off it
type Kind string

const (
	KindConnectionLost       Kind = "connection_lost"
	KindTimeout              Kind = "timeout"
	KindConstraintViolated   Kind = "constraint_violated"
	KindSerializationFailure Kind = "serialization_failure"
	KindUnavailable          Kind = "unavailable"
	KindUnknown              Kind = "unknown"
)

// Error is the classified form of any failure crossing the store boundary
type Error struct {
	Kind  Kind
	Field string // offending column for constraint violations
	cause error
}

func (e *Error) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("store error (%s, field %s): %v", e.Kind, e.Field, e.cause)
	}
	if e.cause == nil {
		return fmt.Sprintf("store error (%s)", e.Kind)
	}
	return fmt.Sprintf("store error (%s): %v", e.Kind, e.cause)
}

func (e *Error) Unwrap() error {
	return e.cause
}

// Transient reports whether retrying the same operation can succeed
func (e *Error) Transient() bool {
	switch e.Kind {
	case KindConnectionLost, KindTimeout, KindSerializationFailure, KindUnavailable:
		return true
	}
	return false
}

// Classify maps a raw database error to a store Error. Already-classified
// errors pass through unchanged.
func Classify(err error) *Error {
	var storeErr *Error
	if errors.As(err, &storeErr) {
		return storeErr
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Kind: KindTimeout, cause: err}
	}
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, io.EOF) {
		return &Error{Kind: KindConnectionLost, cause: err}
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch {
		case pqErr.Code == "23514": // check_violation
			return &Error{Kind: KindConstraintViolated, Field: constraintField(pqErr), cause: err}
		case pqErr.Code.Class() == "23": // other integrity violations
			return &Error{Kind: KindConstraintViolated, Field: constraintField(pqErr), cause: err}
		case pqErr.Code == "40001" || pqErr.Code == "40P01": // serialization, deadlock
			return &Error{Kind: KindSerializationFailure, cause: err}
		case pqErr.Code == "57014": // query_canceled (statement_timeout)
			return &Error{Kind: KindTimeout, cause: err}
		case pqErr.Code.Class() == "08": // connection exceptions
			return &Error{Kind: KindConnectionLost, cause: err}
		case pqErr.Code.Class() == "53" || pqErr.Code == "57P03": // resources, cannot_connect_now
			return &Error{Kind: KindUnavailable, cause: err}
		}
		return &Error{Kind: KindUnknown, cause: err}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return &Error{Kind: KindTimeout, cause: err}
		}
		return &Error{Kind: KindConnectionLost, cause: err}
	}

	return &Error{Kind: KindUnknown, cause: err}
}

// constraintField recovers the column name from a CHECK constraint named
// sensor_data_<column>_check, falling back to the reported column
func constraintField(pqErr *pq.Error) string {
	name := pqErr.Constraint
	if strings.HasPrefix(name, "sensor_data_") && strings.HasSuffix(name, "_check") {
		return strings.TrimSuffix(strings.TrimPrefix(name, "sensor_data_"), "_check")
	}
	if pqErr.Column != "" {
		return pqErr.Column
	}
	return name
}
