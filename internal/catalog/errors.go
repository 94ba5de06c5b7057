package catalog

import "errors"

// Catalog errors.
var (
	ErrMachineryNotFound = errors.New("machinery not found")
	ErrInvalidStatus     = errors.New("invalid machinery status")
)
