package emergency

import (
	"errors"
	"fmt"
)

// ErrNotFound is matched by every NotFoundError.
var ErrNotFound = errors.New("case not found")

// NotFoundError is the only failure the ledger reports. Lookups by access
// code leave ID empty so the code never ends up in an error message.
type NotFoundError struct {
	ID           string
	ByAccessCode bool
}

func (e *NotFoundError) Error() string {
	if e.ByAccessCode {
		return "no case matches the access code"
	}
	return fmt.Sprintf("case %q not found", e.ID)
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}
