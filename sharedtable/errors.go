package sharedtable

import "errors"

var (
	// ErrUnsupportedVirtualTable is returned when the create-table request
	// factory has no physical template for a virtual table.
	ErrUnsupportedVirtualTable = errors.New("virtual table is not supported by any physical template")

	// ErrInvalidMapping is returned when a virtual table is structurally
	// incompatible with its physical target: a missing or mismatched key, a
	// non-string physical hash key, or two virtual LSIs claiming the same
	// physical LSI.
	ErrInvalidMapping = errors.New("invalid virtual to physical table mapping")

	// ErrUnmappableIndex is returned when no physical secondary index of the
	// matching kind is compatible with a virtual secondary index.
	ErrUnmappableIndex = errors.New("no compatible physical secondary index")

	// ErrUnsupportedPredicate is returned for key conditions other than
	// equality, and for rewrite targets that are not implemented.
	ErrUnsupportedPredicate = errors.New("unsupported key condition")
)
