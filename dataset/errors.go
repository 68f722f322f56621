package dataset

import (
	"errors"
	"fmt"
)

// Error taxonomy for the open pipeline. ErrUnsupportedProtocol lives in
// the storage package, next to the code that parses URLs; everything
// else is raised here.
var (
	// ErrUnsupportedFormat marks a file-like URL whose extension maps
	// to no known format
	ErrUnsupportedFormat = errors.New("unsupported dataset format")

	// ErrUnauthorizedChunkAccess marks an icechunk dataset referencing
	// an external chunk prefix with no configured credential policy
	ErrUnauthorizedChunkAccess = errors.New("virtual chunk access not authorized")

	// ErrVersionedStoreUnavailable marks an icechunk open attempted
	// without a versioned-store implementation in the runtime
	ErrVersionedStoreUnavailable = errors.New("versioned store support not available")

	// ErrVariableNotFound marks a request for a variable absent from
	// the catalogue
	ErrVariableNotFound = errors.New("variable not found")

	// ErrInvalidTimeSelector marks a time selector that cannot be
	// resolved against the dataset
	ErrInvalidTimeSelector = errors.New("invalid time selector")
)

// OpenError wraps an underlying storage or format failure while opening
// a dataset. It distinguishes backend failures from bad-input errors,
// which surface as the sentinel errors above.
type OpenError struct {
	Src string
	Err error
}

func (e *OpenError) Error() string {
	return fmt.Sprintf("opening dataset %s: %v", e.Src, e.Err)
}

func (e *OpenError) Unwrap() error {
	return e.Err
}
