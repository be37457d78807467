package sync

import (
	"errors"
	"fmt"
)

var (
	ErrTargetUnreachable = errors.New("target unreachable")
	ErrExportFailed      = errors.New("export failed")
	ErrWriteFailed       = errors.New("write failed")
)

// ItemFailure records a single action that could not be applied. The
// manifest entry for the item is left as it was.
type ItemFailure struct {
	Action ActionKind
	ID     string
	Path   string
	Err    error
}

func (f *ItemFailure) Error() string {
	return fmt.Sprintf("%s %s (%s): %v", f.Action, f.Path, f.ID, f.Err)
}

func (f *ItemFailure) Unwrap() error {
	return f.Err
}
