package movements

import "errors"

// Movement errors.
var (
	ErrEmptyBatch         = errors.New("batch has no operations")
	ErrBatchTooLarge      = errors.New("batch too large")
	ErrInvalidPayload     = errors.New("invalid operation payload")
	ErrMaterialNotFound   = errors.New("material not found")
	ErrMachineryNotFound  = errors.New("machinery not found")
	ErrInsufficientStock  = errors.New("insufficient stock")
	ErrDuplicateOperation = errors.New("duplicate operation id in batch")
)
