package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for region construction and sub-region derivation.
// Callers should match them with errors.Is; returned errors are wrapped
// with the region, category or file that triggered them.
var (
	// ErrInvalidHeader indicates a grid header with non-positive dimensions or cell size.
	ErrInvalidHeader = errors.New("domain: invalid grid header")

	// ErrShapeMismatch indicates a data array whose shape disagrees with its header.
	ErrShapeMismatch = errors.New("domain: array shape does not match grid")

	// ErrConfiguration indicates a sub-region operation the region was not set up for.
	ErrConfiguration = errors.New("domain: region configuration error")

	// ErrNestingUnsupported is returned when deriving a sub-region from a sub-region.
	ErrNestingUnsupported = fmt.Errorf("%w: only one level of sub-region nesting is supported", ErrConfiguration)

	// ErrCategoryNotFound indicates a category id with no cells in the parent mask.
	ErrCategoryNotFound = errors.New("domain: category not present in parent mask")

	// ErrEmptyWindow indicates a bounding box that selects no parent grid cells.
	ErrEmptyWindow = errors.New("domain: bounding box selects no grid cells")

	// ErrDuplicateCategory indicates two sub-region names mapped to the same id.
	ErrDuplicateCategory = errors.New("domain: duplicate sub-region category id")
)
