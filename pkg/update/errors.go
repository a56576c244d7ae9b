package update

import (
	"fmt"

	"github.com/ajitpratap0/bulkflow/pkg/bulkerrors"
)

// ConcurrencyError reports that a batch affected a different number of
// rows than it had commands. Entries lists every entry of the batch.
type ConcurrencyError struct {
	Expected int64
	Actual   int64
	Entries  []*Entry
	cause    *bulkerrors.Error
}

// NewConcurrencyError builds the error for a batch.
func NewConcurrencyError(expected, actual int64, entries []*Entry) *ConcurrencyError {
	return &ConcurrencyError{
		Expected: expected,
		Actual:   actual,
		Entries:  entries,
		cause: bulkerrors.New(bulkerrors.ErrorTypeConflict, "database operation affected an unexpected number of rows").
			WithDetail("expected", expected).
			WithDetail("actual", actual),
	}
}

func (e *ConcurrencyError) Error() string {
	return fmt.Sprintf("database operation expected to affect %d row(s) but actually affected %d row(s); data may have been modified or deleted since entities were loaded",
		e.Expected, e.Actual)
}

// Unwrap exposes the conflict-typed cause to bulkerrors.IsType.
func (e *ConcurrencyError) Unwrap() error {
	return e.cause
}
