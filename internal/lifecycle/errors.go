package lifecycle

import (
	"fmt"

	"go.uber.org/multierr"
)

// Failure is one id that failed during a commit.
type Failure struct {
	ID  string
	Err error
}

// BatchError lists the ids that failed during a commit. Ids not listed
// were applied.
type BatchError struct {
	Op       string
	Failures []Failure
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("%s: %d failed: %v", e.Op, len(e.Failures), e.combined())
}

// Unwrap exposes the per-id errors to errors.Is and errors.As.
func (e *BatchError) Unwrap() []error {
	return multierr.Errors(e.combined())
}

func (e *BatchError) combined() error {
	var err error
	for _, f := range e.Failures {
		err = multierr.Append(err, fmt.Errorf("%s: %w", f.ID, f.Err))
	}
	return err
}

// IDs returns the failed ids in commit order.
func (e *BatchError) IDs() []string {
	ids := make([]string, len(e.Failures))
	for i, f := range e.Failures {
		ids[i] = f.ID
	}
	return ids
}
